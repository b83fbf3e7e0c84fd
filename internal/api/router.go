package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"devicehub-backend/config"
	"devicehub-backend/internal/gateway"
	"devicehub-backend/internal/mw"
	"devicehub-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.Config, s store.Store, gw *gateway.Gateway, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, gw, webpushOptions, cfg.Gateway.FreshnessWindow)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	// Device and client socket endpoint; not rate limited, connections are
	// long-lived.
	r.GET("/ws", gw.HandleWS)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Hardware command surface
		api.POST("/devices/:id/hardware/digital-write", handler.DigitalWrite)
		api.POST("/devices/:id/hardware/virtual-write", handler.VirtualWrite)
		api.POST("/devices/:id/hardware/read", handler.HardwareRead)
		api.POST("/devices/:id/hardware/send", handler.HardwareSend)

		// Passive HTTP ingestion
		api.POST("/devices/data", handler.ReportData)

		// Reads
		api.GET("/devices/:id", handler.GetDevice)
		api.GET("/devices/:id/history", caching, handler.GetHistory)

		// Third-party integration surface
		api.GET("/external/get", handler.ExternalGet)
		api.GET("/external/update", handler.ExternalUpdate)
		api.POST("/external/webhook", handler.ExternalWebhook)

		// Push subscriptions
		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
