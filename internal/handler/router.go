package handler

import (
	"net/http"

	"github.com/GoPolymarket/burngate/internal/config"
	"github.com/GoPolymarket/burngate/internal/middleware"
	"github.com/GoPolymarket/burngate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Engine      *service.Engine
	Events      *service.EventService
	Actors      *service.ActorRegistry
	Idempotency middleware.IdempotencyStore
	// Health reports dependency status for /health. Optional.
	Health func() gin.H
}

// NewRouter 组装中间件链和所有路由
func NewRouter(cfg *config.Config, deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Global Middleware
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.RequestLogMiddleware())

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok", "service": "burngate", "policy_version": deps.Engine.Policy().Version}
		if deps.Health != nil {
			for k, v := range deps.Health() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	idem := deps.Idempotency
	if idem == nil {
		idem = middleware.NewInMemIdempotencyStore()
	}

	revenue := NewRevenueHandler(deps.Engine)
	buyback := NewBuybackHandler(deps.Engine)
	treasury := NewTreasuryHandler(deps.Engine)
	admin := NewAdminHandler(deps.Engine)
	events := NewEventHandler(deps.Events)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg, deps.Actors))
	v1.Use(middleware.RateLimitMiddleware(deps.Actors))
	v1.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly))
	v1.Use(middleware.IdempotencyMiddleware(idem))
	{
		v1.POST("/revenue", revenue.Ingest)
		v1.GET("/revenue", revenue.List)
		v1.GET("/revenue/:source", revenue.Get)

		v1.POST("/buyback/execute", buyback.Execute)
		v1.POST("/buyback/emergency", buyback.Emergency)
		v1.GET("/buyback/pressure", buyback.Pressure)
		v1.GET("/buyback/thresholds", buyback.Thresholds)
		v1.GET("/buyback/stats", buyback.Stats)

		v1.POST("/treasury/deposit", treasury.Deposit)
		v1.POST("/treasury/distribute", treasury.Distribute)
		v1.POST("/treasury/distribute/adaptive", treasury.DistributeAdaptive)
		v1.GET("/treasury/stats", treasury.Stats)
		v1.GET("/treasury/rebalance", treasury.CheckRebalance)
		v1.POST("/treasury/rebalance", treasury.Rebalance)

		v1.GET("/events", events.List)
	}

	adminGroup := v1.Group("/admin")
	adminGroup.Use(middleware.AdminMiddleware(cfg))
	{
		adminGroup.GET("/policy", admin.Policy)
		adminGroup.PUT("/thresholds/:index", admin.UpdateThreshold)
		adminGroup.PUT("/addresses", admin.UpdateAddresses)
		adminGroup.POST("/roles", admin.GrantRole)
		adminGroup.DELETE("/roles", admin.RevokeRole)
		adminGroup.GET("/roles/:address", admin.Roles)
	}

	return r
}
