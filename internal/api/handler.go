package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"devicehub-backend/internal/gateway"
	"devicehub-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	gateway  *gateway.Gateway
	webpush  *webpush.Options
	liveness time.Duration
}

// NewHandler creates a new API handler. The gateway carries the protocol
// handler and broadcast hub; liveness is the canonical freshness window.
func NewHandler(s store.Store, gw *gateway.Gateway, webpushOptions *webpush.Options, liveness time.Duration) *Handler {
	return &Handler{
		store:    s,
		gateway:  gw,
		webpush:  webpushOptions,
		liveness: liveness,
	}
}
