package model

import "time"

// DeviceStatus is the connectivity/administrative state of a device.
type DeviceStatus string

const (
	StatusOnline      DeviceStatus = "ONLINE"
	StatusOffline     DeviceStatus = "OFFLINE"
	StatusMaintenance DeviceStatus = "MAINTENANCE"
	StatusError       DeviceStatus = "ERROR"
	StatusDisabled    DeviceStatus = "DISABLED"
)

// Device represents a connected (or known) hardware device.
// Status is derived from connectivity evidence, never set directly by clients.
type Device struct {
	ID        int64        `gorm:"primaryKey" json:"id"`
	AuthToken string       `gorm:"uniqueIndex;size:64;not null" json:"-"`
	Name      string       `gorm:"size:256;not null" json:"name"`
	Status    DeviceStatus `gorm:"size:32;not null;default:OFFLINE" json:"status"`
	LastPing  *time.Time   `json:"lastPing"`
	Model     string       `gorm:"size:128" json:"model"`
	Firmware  string       `gorm:"size:64" json:"firmware"`
	IPAddress string       `gorm:"size:64" json:"ipAddress"`
	Metadata  string       `gorm:"type:text" json:"metadata"` // free-form JSON blob
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	// Associations
	Pins []VirtualPin `gorm:"foreignKey:DeviceID" json:"-"`
}
