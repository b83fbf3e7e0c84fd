package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"devicehub-backend/internal/gateway"
	"devicehub-backend/internal/model"
	"devicehub-backend/internal/store"
)

// deviceFromPath resolves the :id path parameter into a device, writing the
// error response itself when resolution fails.
func (h *Handler) deviceFromPath(c *gin.Context) (*model.Device, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid device ID"})
		return nil, false
	}
	device, err := h.store.DeviceByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "device not found"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to look up device"})
		}
		return nil, false
	}
	return device, true
}

// sendResult maps a protocol handler result onto the HTTP response.
func sendResult(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true})
	case errors.Is(err, gateway.ErrDeviceNotConnected):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device not connected"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to deliver command"})
	}
}

type digitalWriteRequest struct {
	Pin   *int `json:"pin" binding:"required"`
	Value *int `json:"value" binding:"required"`
}

// DigitalWrite handles POST /api/devices/:id/hardware/digital-write.
func (h *Handler) DigitalWrite(c *gin.Context) {
	var req digitalWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pin and value are required"})
		return
	}
	// Digital levels are strictly 0/1; anything else never reaches the
	// protocol handler.
	if *req.Value != 0 && *req.Value != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be 0 or 1"})
		return
	}

	device, ok := h.deviceFromPath(c)
	if !ok {
		return
	}

	h.recordCommand(c, device.ID, "digital_write", fmt.Sprintf(`{"pin":%d,"value":%d}`, *req.Pin, *req.Value))
	sendResult(c, h.gateway.SendDigitalWrite(device.AuthToken, *req.Pin, *req.Value))
}

type virtualWriteRequest struct {
	Pin   *int `json:"pin" binding:"required"`
	Value any  `json:"value" binding:"required"`
}

// VirtualWrite handles POST /api/devices/:id/hardware/virtual-write.
func (h *Handler) VirtualWrite(c *gin.Context) {
	var req virtualWriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pin and value are required"})
		return
	}

	device, ok := h.deviceFromPath(c)
	if !ok {
		return
	}

	value := stringifyValue(req.Value)
	h.recordCommand(c, device.ID, "virtual_write", fmt.Sprintf(`{"pin":%d,"value":%q}`, *req.Pin, value))
	sendResult(c, h.gateway.SendVirtualWrite(device.AuthToken, *req.Pin, value))
}

type readRequest struct {
	Pin  *int   `json:"pin" binding:"required"`
	Type string `json:"type"`
}

// HardwareRead handles POST /api/devices/:id/hardware/read. The optional
// type field selects digital or virtual; virtual is the default.
func (h *Handler) HardwareRead(c *gin.Context) {
	var req readRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pin is required"})
		return
	}
	if req.Type != "" && req.Type != "digital" && req.Type != "virtual" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be digital or virtual"})
		return
	}

	device, ok := h.deviceFromPath(c)
	if !ok {
		return
	}

	if req.Type == "digital" {
		h.recordCommand(c, device.ID, "digital_read", fmt.Sprintf(`{"pin":%d}`, *req.Pin))
		sendResult(c, h.gateway.SendDigitalRead(device.AuthToken, *req.Pin))
		return
	}
	h.recordCommand(c, device.ID, "virtual_read", fmt.Sprintf(`{"pin":%d}`, *req.Pin))
	sendResult(c, h.gateway.SendVirtualRead(device.AuthToken, *req.Pin))
}

type sendCommandRequest struct {
	Command string `json:"command" binding:"required"`
	Pin     *int   `json:"pin" binding:"required"`
	Value   any    `json:"value"`
}

// HardwareSend handles POST /api/devices/:id/hardware/send, the generic
// passthrough form.
func (h *Handler) HardwareSend(c *gin.Context) {
	var req sendCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command and pin are required"})
		return
	}

	device, ok := h.deviceFromPath(c)
	if !ok {
		return
	}

	value := stringifyValue(req.Value)
	h.recordCommand(c, device.ID, req.Command, fmt.Sprintf(`{"pin":%d,"value":%q}`, *req.Pin, value))
	sendResult(c, h.gateway.SendHardwareCommand(device.AuthToken, req.Command, *req.Pin, value))
}

// recordCommand persists the requested action as PENDING. Delivery is
// fire-and-forget, so the record is evidence of intent, not of receipt.
func (h *Handler) recordCommand(c *gin.Context, deviceID int64, cmdType, payload string) {
	// A failed audit write must not block the command itself.
	if err := h.store.RecordCommand(c.Request.Context(), deviceID, cmdType, payload); err != nil {
		log.Printf("failed to record %s command for device %d: %v", cmdType, deviceID, err)
	}
}
