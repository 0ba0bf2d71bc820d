package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"venue-backend/internal/metrics"
	"venue-backend/internal/mw"
)

// RouterConfig carries the middleware settings from the server config.
type RouterConfig struct {
	RateLimitPerSec float64
	RateLimitBurst  int
	CacheTTL        time.Duration
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg RouterConfig, log *zap.Logger, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Observability(log, m))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/devices", h.ListDevices)
		api.POST("/devices", h.CreateDevice)
		api.GET("/devices/:id", h.GetDevice)
		api.PATCH("/devices/:id", h.UpdateDevice)
		api.DELETE("/devices/:id", h.DeleteDevice)
		api.POST("/devices/:id/start", h.StartSession)
		api.POST("/devices/:id/end", h.EndSession)
		api.POST("/devices/:id/reset", h.ResetDevice)
		api.PUT("/devices/:id/session-kind", h.SetSessionKind)

		api.GET("/snacks", h.ListSnacks)
		api.POST("/snacks", h.CreateSnack)
		api.GET("/snacks/:id", h.GetSnack)
		api.PATCH("/snacks/:id", h.UpdateSnack)
		api.DELETE("/snacks/:id", h.DeleteSnack)
		api.POST("/snacks/:id/stock", h.AdjustStock)

		api.GET("/orders", h.ListOrders)
		api.POST("/orders", h.CreateOrder)
		api.GET("/orders/:id", h.GetOrder)
		api.DELETE("/orders/:id", h.CancelOrder)
		api.POST("/orders/:id/items", h.AddOrderItem)

		// Session records never change once written.
		api.GET("/sessions", h.ListSessions)
		api.GET("/sessions/:id", caching, h.GetSession)
		api.GET("/stats", caching, h.GetStats)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
