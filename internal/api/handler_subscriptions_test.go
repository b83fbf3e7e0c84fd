package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devicehub-backend/internal/model"
	"devicehub-backend/internal/store"
)

func newSubscriptionAPI(t *testing.T) (*gin.Engine, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r, s := newTestAPI(t)
	require.NoError(t, s.DB().AutoMigrate(&model.PushSubscription{}))

	handler := NewHandler(s, nil, &webpush.Options{VAPIDPublicKey: "test-public-key"}, 30*time.Second)
	r.GET("/api/subscriptions", handler.GetSubscription)
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.DELETE("/api/subscriptions", handler.DeleteSubscription)
	r.GET("/api/vapid_public_key", handler.GetVAPIDPublicKey)
	return r, s
}

func TestPutSubscriptionEmptyBody(t *testing.T) {
	router, _ := newSubscriptionAPI(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"invalid request"}`, w.Body.String())
}

func TestSubscriptionRoundTrip(t *testing.T) {
	router, s := newSubscriptionAPI(t)
	seedAPIDevice(t, s, 1, "tok-device-00001", model.StatusOnline)
	seedAPIDevice(t, s, 2, "tok-device-00002", model.StatusOnline)

	endpoint := "https://push.example.com/send/abc==123"

	w := doJSON(router, http.MethodPut, "/api/subscriptions",
		`{"endpoint":"`+endpoint+`","p256dh":"key","auth":"secret","subscribed_devices":[1,2]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	// Watched device set is replaced, not merged.
	w = doJSON(router, http.MethodPut, "/api/subscriptions",
		`{"endpoint":"`+endpoint+`","p256dh":"key","auth":"secret","subscribed_devices":[2]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodGet, "/api/subscriptions?endpoint="+endpoint, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_devices":[2]}`, w.Body.String())

	w = doJSON(router, http.MethodDelete, "/api/subscriptions", `{"endpoint":"`+endpoint+`"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	var count int64
	require.NoError(t, s.DB().Model(&model.PushSubscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetSubscriptionNotFound(t *testing.T) {
	router, _ := newSubscriptionAPI(t)
	w := doJSON(router, http.MethodGet, "/api/subscriptions?endpoint=https://push.example.com/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetVAPIDPublicKey(t *testing.T) {
	router, _ := newSubscriptionAPI(t)

	w := doJSON(router, http.MethodGet, "/api/vapid_public_key", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"test-public-key"}`, w.Body.String())
}

func TestGetVAPIDPublicKeyUnconfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewHandler(nil, nil, nil, 30*time.Second)
	r := gin.New()
	r.GET("/api/vapid_public_key", handler.GetVAPIDPublicKey)

	w := doJSON(r, http.MethodGet, "/api/vapid_public_key", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
