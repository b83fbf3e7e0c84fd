package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"devicehub-backend/internal/model"
)

func TestEffectiveStatus(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Second

	ping := func(age time.Duration) *time.Time {
		ts := now.Add(-age)
		return &ts
	}

	tests := []struct {
		name   string
		device model.Device
		want   model.DeviceStatus
	}{
		{"fresh ping is online", model.Device{Status: model.StatusOnline, LastPing: ping(5 * time.Second)}, model.StatusOnline},
		{"ping on the boundary is online", model.Device{Status: model.StatusOnline, LastPing: ping(30 * time.Second)}, model.StatusOnline},
		{"stale ping is offline", model.Device{Status: model.StatusOnline, LastPing: ping(31 * time.Second)}, model.StatusOffline},
		{"no ping ever is offline", model.Device{Status: model.StatusOnline}, model.StatusOffline},
		{"stored OFFLINE with fresh ping reads online", model.Device{Status: model.StatusOffline, LastPing: ping(time.Second)}, model.StatusOnline},
		{"disabled wins over fresh ping", model.Device{Status: model.StatusDisabled, LastPing: ping(time.Second)}, model.StatusDisabled},
		{"maintenance wins over fresh ping", model.Device{Status: model.StatusMaintenance, LastPing: ping(time.Second)}, model.StatusMaintenance},
		{"error wins over fresh ping", model.Device{Status: model.StatusError, LastPing: ping(time.Second)}, model.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EffectiveStatus(&tt.device, now, window))
		})
	}
}
