package model

import "time"

// PinDataType classifies the value stored on a virtual pin.
type PinDataType string

const (
	DataTypeString  PinDataType = "STRING"
	DataTypeInteger PinDataType = "INTEGER"
	DataTypeFloat   PinDataType = "FLOAT"
	DataTypeBoolean PinDataType = "BOOLEAN"
)

// VirtualPin holds the current value of one logical data channel on a device.
// Exactly one row exists per (device, pin) pair; writes are upserts.
type VirtualPin struct {
	DeviceID    int64       `gorm:"primaryKey;autoIncrement:false" json:"deviceId"`
	PinNumber   int         `gorm:"primaryKey;autoIncrement:false" json:"pinNumber"`
	Value       string      `gorm:"not null" json:"value"`
	DataType    PinDataType `gorm:"size:16;not null" json:"dataType"`
	LastUpdated time.Time   `gorm:"not null" json:"lastUpdated"`
}

// PinHistory is the append-only log of pin writes. Rows are never updated or
// deleted by this service; retention is someone else's problem.
type PinHistory struct {
	ID         int64       `gorm:"autoIncrement;primaryKey" json:"id"`
	DeviceID   int64       `gorm:"not null;index:idx_pin_history_device_recorded" json:"deviceId"`
	PinNumber  int         `gorm:"not null" json:"pinNumber"`
	Value      string      `gorm:"not null" json:"value"`
	DataType   PinDataType `gorm:"size:16;not null" json:"dataType"`
	RecordedAt time.Time   `gorm:"not null;index:idx_pin_history_device_recorded" json:"recordedAt"`
}
