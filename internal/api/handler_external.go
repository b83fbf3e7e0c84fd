package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"devicehub-backend/internal/model"
	"devicehub-backend/internal/protocol"
	"devicehub-backend/internal/store"
)

// deviceFromTokenQuery resolves the token query parameter for the
// third-party-style endpoints.
func (h *Handler) deviceFromTokenQuery(c *gin.Context) (*model.Device, bool) {
	token := c.Query("token")
	if token == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return nil, false
	}
	device, err := h.store.DeviceByToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown token"})
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to look up device"})
		}
		return nil, false
	}
	return device, true
}

// ExternalGet handles GET /api/external/get?token&pin: read a pin's last
// value by device token.
func (h *Handler) ExternalGet(c *gin.Context) {
	device, ok := h.deviceFromTokenQuery(c)
	if !ok {
		return
	}

	pin, err := strconv.Atoi(c.Query("pin"))
	if err != nil || pin < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pin"})
		return
	}

	row, err := h.store.LatestPin(c.Request.Context(), device.ID, pin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read pin"})
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "pin has no value"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pin":         row.PinNumber,
		"value":       row.Value,
		"dataType":    row.DataType,
		"lastUpdated": row.LastUpdated,
	})
}

// ExternalUpdate handles GET /api/external/update?token&pin&value: a
// third-party-style write that behaves exactly like a device pin report.
func (h *Handler) ExternalUpdate(c *gin.Context) {
	device, ok := h.deviceFromTokenQuery(c)
	if !ok {
		return
	}

	pin, err := strconv.Atoi(c.Query("pin"))
	if err != nil || pin < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid pin"})
		return
	}
	value, present := c.GetQuery("value")
	if !present {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}

	now := time.Now().UTC()
	dataType := protocol.InferDataType(value)
	if err := h.gateway.PublishPinUpdate(c.Request.Context(), device.ID, pin, value, dataType, now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store pin value"})
		return
	}
	if err := h.store.MarkOnline(c.Request.Context(), device.ID, c.ClientIP(), now); err != nil {
		log.Printf("external update: failed to mark device %d online: %v", device.ID, err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// webhookRequest is the tagged union of payloads the webhook accepts: a pin
// report, an event, or both at once. Anything else is a validation error.
type webhookRequest struct {
	Pin       *int   `json:"pin"`
	Value     any    `json:"value"`
	EventCode string `json:"eventCode"`
	Data      any    `json:"data"`
}

// ExternalWebhook handles POST /api/external/webhook?token. Processing
// failures are logged rather than silently discarded; the external response
// deliberately stays terse.
func (h *Handler) ExternalWebhook(c *gin.Context) {
	device, ok := h.deviceFromTokenQuery(c)
	if !ok {
		return
	}

	var req webhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook payload"})
		return
	}

	hasPin := req.Pin != nil && req.Value != nil
	hasEvent := req.EventCode != ""
	if !hasPin && !hasEvent {
		c.JSON(http.StatusBadRequest, gin.H{"error": "payload must carry pin+value or eventCode"})
		return
	}

	now := time.Now().UTC()

	if hasPin {
		value := stringifyValue(req.Value)
		if err := h.gateway.PublishPinUpdate(c.Request.Context(), device.ID, *req.Pin, value, protocol.InferDataType(value), now); err != nil {
			log.Printf("webhook: failed to store pin %d for device %d: %v", *req.Pin, device.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
			return
		}
	}
	if hasEvent {
		if err := h.gateway.PublishDeviceEvent(c.Request.Context(), device.ID, req.EventCode, stringifyValue(req.Data), now); err != nil {
			log.Printf("webhook: failed to record event %q for device %d: %v", req.EventCode, device.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process webhook"})
			return
		}
	}
	if err := h.store.MarkOnline(c.Request.Context(), device.ID, c.ClientIP(), now); err != nil {
		log.Printf("webhook: failed to mark device %d online: %v", device.ID, err)
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
