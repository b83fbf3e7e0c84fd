package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"devicehub-backend/config"
	"devicehub-backend/internal/gateway"
	"devicehub-backend/internal/model"
	"devicehub-backend/internal/store"
)

// newTestAPI wires the handlers onto a bare router, no middleware, backed by
// an in-memory database. No device socket is connected, so hardware commands
// surface the not-connected path unless a test dials one in.
func newTestAPI(t *testing.T) (*gin.Engine, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&model.Device{},
		&model.VirtualPin{},
		&model.PinHistory{},
		&model.DeviceEvent{},
		&model.Command{},
	))

	s := store.NewGormStore(db)
	gw := gateway.New(config.GatewayConfig{
		FreshnessWindow: 30 * time.Second,
		SendBufferSize:  32,
		MaxMessageBytes: 4096,
	}, s, nil)
	handler := NewHandler(s, gw, nil, 30*time.Second)

	r := gin.New()
	r.POST("/api/devices/:id/hardware/digital-write", handler.DigitalWrite)
	r.POST("/api/devices/:id/hardware/virtual-write", handler.VirtualWrite)
	r.POST("/api/devices/:id/hardware/read", handler.HardwareRead)
	r.POST("/api/devices/:id/hardware/send", handler.HardwareSend)
	r.POST("/api/devices/data", handler.ReportData)
	r.GET("/api/devices/:id", handler.GetDevice)
	r.GET("/api/devices/:id/history", handler.GetHistory)
	r.GET("/api/external/get", handler.ExternalGet)
	r.GET("/api/external/update", handler.ExternalUpdate)
	r.POST("/api/external/webhook", handler.ExternalWebhook)
	return r, s
}

func seedAPIDevice(t *testing.T, s store.Store, id int64, token string, status model.DeviceStatus) {
	t.Helper()
	require.NoError(t, s.DB().Create(&model.Device{
		ID:        id,
		AuthToken: token,
		Name:      "Test Device",
		Status:    status,
	}).Error)
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestGetDevice(t *testing.T) {
	r, s := newTestAPI(t)

	stale := time.Now().UTC().Add(-5 * time.Minute)
	require.NoError(t, s.DB().Create(&model.Device{
		ID: 1, AuthToken: "tok-device-00001", Name: "Sensor", Status: model.StatusOnline, LastPing: &stale,
	}).Error)
	require.NoError(t, s.UpsertPin(context.Background(), 1, 3, "42", model.DataTypeInteger, time.Now().UTC()))

	t.Run("stale ping reads offline", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/devices/1", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		// Stored ONLINE, but the ping is outside the freshness window.
		assert.Equal(t, "OFFLINE", body["status"])
		pins := body["pins"].([]any)
		require.Len(t, pins, 1)
	})

	t.Run("token never leaks", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/devices/1", "")
		assert.NotContains(t, w.Body.String(), "tok-device-00001")
	})

	t.Run("unknown device", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/devices/99", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/devices/banana", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetHistory(t *testing.T) {
	r, s := newTestAPI(t)
	seedAPIDevice(t, s, 1, "tok-device-00001", model.StatusOnline)
	now := time.Now().UTC()
	require.NoError(t, s.UpsertPin(context.Background(), 1, 1, "a", model.DataTypeString, now.Add(-time.Minute)))
	require.NoError(t, s.UpsertPin(context.Background(), 1, 2, "b", model.DataTypeString, now))

	t.Run("happy path", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/devices/1/history?pin=1", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		history := body["history"].([]any)
		assert.Len(t, history, 1)
	})

	t.Run("invalid pin", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/devices/1/history?pin=-1", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid hours", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/devices/1/history?hours=abc", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/devices/1/history?limit=-5", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestReportData(t *testing.T) {
	r, s := newTestAPI(t)
	seedAPIDevice(t, s, 1, "tok-device-00001", model.StatusOffline)

	t.Run("report stores value and marks online", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/devices/data",
			`{"deviceToken":"tok-device-00001","pinNumber":9,"value":23.5}`)
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "FLOAT", body["dataType"])

		pin, err := s.LatestPin(context.Background(), 1, 9)
		require.NoError(t, err)
		require.NotNil(t, pin)
		assert.Equal(t, "23.5", pin.Value)
		assert.Equal(t, model.DataTypeFloat, pin.DataType)

		device, err := s.DeviceByID(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOnline, device.Status)
		require.NotNil(t, device.LastPing)

		history, err := s.PinHistory(context.Background(), 1, store.HistoryFilter{})
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("explicit data type wins over inference", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/devices/data",
			`{"deviceToken":"tok-device-00001","pinNumber":10,"value":"1","dataType":"BOOLEAN"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "BOOLEAN", decodeBody(t, w)["dataType"])
	})

	t.Run("unknown token", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/devices/data",
			`{"deviceToken":"nope","pinNumber":1,"value":"x"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/devices/data", `{"deviceToken":"tok-device-00001"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDigitalWrite(t *testing.T) {
	r, s := newTestAPI(t)
	seedAPIDevice(t, s, 1, "tok-device-00001", model.StatusOnline)

	t.Run("value out of range", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/devices/1/hardware/digital-write", `{"pin":3,"value":2}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("device not connected", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/devices/1/hardware/digital-write", `{"pin":3,"value":1}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		// Intent is still on record even though delivery failed.
		var cmd model.Command
		require.NoError(t, s.DB().First(&cmd).Error)
		assert.Equal(t, "digital_write", cmd.Type)
		assert.Equal(t, model.CommandPending, cmd.Status)
	})

	t.Run("unknown device", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/devices/99/hardware/digital-write", `{"pin":3,"value":1}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHardwareRead(t *testing.T) {
	r, s := newTestAPI(t)
	seedAPIDevice(t, s, 1, "tok-device-00001", model.StatusOnline)

	t.Run("bad type", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/devices/1/hardware/read", `{"pin":1,"type":"analog"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("virtual default, device not connected", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/devices/1/hardware/read", `{"pin":1}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestExternalEndpoints(t *testing.T) {
	r, s := newTestAPI(t)
	seedAPIDevice(t, s, 1, "tok-device-00001", model.StatusOffline)

	t.Run("get with no value yet", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/external/get?token=tok-device-00001&pin=4", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("update then get round trip", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/external/update?token=tok-device-00001&pin=4&value=72", "")
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(r, http.MethodGet, "/api/external/get?token=tok-device-00001&pin=4", "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "72", body["value"])
		assert.Equal(t, "INTEGER", body["dataType"])
	})

	t.Run("update counts as liveness evidence", func(t *testing.T) {
		device, err := s.DeviceByID(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOnline, device.Status)
	})

	t.Run("missing token", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/external/get?pin=4", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown token", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/external/get?token=nope&pin=4", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("update without value", func(t *testing.T) {
		w := doJSON(r, http.MethodGet, "/api/external/update?token=tok-device-00001&pin=4", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestExternalWebhook(t *testing.T) {
	r, s := newTestAPI(t)
	seedAPIDevice(t, s, 1, "tok-device-00001", model.StatusOffline)

	t.Run("pin payload", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/external/webhook?token=tok-device-00001",
			`{"pin":2,"value":true}`)
		require.Equal(t, http.StatusOK, w.Code)

		pin, err := s.LatestPin(context.Background(), 1, 2)
		require.NoError(t, err)
		require.NotNil(t, pin)
		assert.Equal(t, "true", pin.Value)
		assert.Equal(t, model.DataTypeBoolean, pin.DataType)
	})

	t.Run("event payload", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/external/webhook?token=tok-device-00001",
			`{"eventCode":"low_battery","data":"12"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var event model.DeviceEvent
		require.NoError(t, s.DB().First(&event).Error)
		assert.Equal(t, "low_battery", event.EventCode)
	})

	t.Run("neither pin nor event", func(t *testing.T) {
		w := doJSON(r, http.MethodPost, "/api/external/webhook?token=tok-device-00001", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
