package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"devicehub-backend/internal/protocol"
	"devicehub-backend/internal/store"
)

type dataReportRequest struct {
	DeviceToken string `json:"deviceToken" binding:"required"`
	PinNumber   *int   `json:"pinNumber" binding:"required"`
	Value       any    `json:"value" binding:"required"`
	DataType    string `json:"dataType"`
}

// ReportData handles POST /api/devices/data: a passive pin report over plain
// HTTP. The effects are identical to the same value arriving as a socket
// frame (upsert, history append, broadcast), plus the report itself counts
// as liveness evidence, so the device is marked ONLINE.
func (h *Handler) ReportData(c *gin.Context) {
	var req dataReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "deviceToken, pinNumber and value are required"})
		return
	}

	device, err := h.store.DeviceByToken(c.Request.Context(), req.DeviceToken)
	if err != nil {
		if errors.Is(err, store.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown device token"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up device"})
		}
		return
	}

	now := time.Now().UTC()
	value := stringifyValue(req.Value)
	dataType := protocol.ParseDataType(req.DataType, value)

	if err := h.gateway.PublishPinUpdate(c.Request.Context(), device.ID, *req.PinNumber, value, dataType, now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store pin value"})
		return
	}
	if err := h.store.MarkOnline(c.Request.Context(), device.ID, c.ClientIP(), now); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update device status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"deviceId": device.ID,
		"pin":      *req.PinNumber,
		"dataType": dataType,
	})
}

// stringifyValue renders a JSON value as the wire-protocol string form.
// Numbers keep their natural formatting: 100 stays "100", 23.5 stays "23.5".
func stringifyValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	default:
		data, _ := json.Marshal(val)
		return string(data)
	}
}
