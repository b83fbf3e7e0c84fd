package model

import "time"

// DeviceEvent is an application-level event reported by a device, either as a
// log-event frame over the socket or through the webhook endpoint.
type DeviceEvent struct {
	ID         int64     `gorm:"autoIncrement;primaryKey" json:"id"`
	DeviceID   int64     `gorm:"not null;index" json:"deviceId"`
	EventCode  string    `gorm:"size:128;not null" json:"eventCode"`
	Data       string    `gorm:"type:text" json:"data"`
	RecordedAt time.Time `gorm:"not null" json:"recordedAt"`
}
