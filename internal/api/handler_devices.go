package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"devicehub-backend/internal/model"
	"devicehub-backend/internal/store"
)

// deviceResponse is the device detail shape with connectivity-derived status.
type deviceResponse struct {
	model.Device
	Status model.DeviceStatus `json:"status"`
	Pins   []model.VirtualPin `json:"pins"`
}

// GetDevice handles GET /api/devices/:id. The reported status always comes
// from the canonical liveness rule, never from the raw column alone.
func (h *Handler) GetDevice(c *gin.Context) {
	device, ok := h.deviceFromPath(c)
	if !ok {
		return
	}

	var pins []model.VirtualPin
	if err := h.store.DB().WithContext(c.Request.Context()).
		Where("device_id = ?", device.ID).
		Order("pin_number").
		Find(&pins).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load pins"})
		return
	}

	c.JSON(http.StatusOK, deviceResponse{
		Device: *device,
		Status: store.EffectiveStatus(device, time.Now().UTC(), h.liveness),
		Pins:   pins,
	})
}

// GetHistory handles GET /api/devices/:id/history?pin&hours&limit.
func (h *Handler) GetHistory(c *gin.Context) {
	device, ok := h.deviceFromPath(c)
	if !ok {
		return
	}

	var filter store.HistoryFilter
	if raw := c.Query("pin"); raw != "" {
		pin, err := strconv.Atoi(raw)
		if err != nil || pin < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pin"})
			return
		}
		filter.Pin = &pin
	}
	if raw := c.Query("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours"})
			return
		}
		filter.Hours = hours
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = limit
	}

	rows, err := h.store.PinHistory(c.Request.Context(), device.ID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deviceId": device.ID, "history": rows})
}
