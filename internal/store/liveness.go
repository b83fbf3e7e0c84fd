package store

import (
	"time"

	"devicehub-backend/internal/model"
)

// EffectiveStatus derives the user-visible status of a device from its
// connectivity evidence. This is the single liveness rule: every consumer
// (HTTP detail endpoint, gateway handshake, background sweep) goes through
// here so there is one freshness window, not several.
//
// Administrative states win over connectivity: a DISABLED or MAINTENANCE
// device is reported as such regardless of ping freshness.
func EffectiveStatus(d *model.Device, now time.Time, window time.Duration) model.DeviceStatus {
	switch d.Status {
	case model.StatusDisabled, model.StatusMaintenance, model.StatusError:
		return d.Status
	}
	if d.LastPing != nil && now.Sub(*d.LastPing) <= window {
		return model.StatusOnline
	}
	return model.StatusOffline
}
