package model

import "time"

// CommandStatus tracks the lifecycle of a requested device command.
// This service only ever records PENDING; delivery over the socket is
// fire-and-forget, so nothing here advances the status afterwards.
type CommandStatus string

const (
	CommandPending CommandStatus = "PENDING"
)

// Command is a requested action against a device.
type Command struct {
	ID        int64         `gorm:"autoIncrement;primaryKey" json:"id"`
	DeviceID  int64         `gorm:"not null;index" json:"deviceId"`
	Type      string        `gorm:"size:64;not null" json:"type"`
	Payload   string        `gorm:"type:text" json:"payload"`
	Status    CommandStatus `gorm:"size:16;not null;default:PENDING" json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}
