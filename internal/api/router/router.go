// Package router sets up the API routes for the application.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/pullwise/pullwise/internal/api/handler"
	"github.com/pullwise/pullwise/internal/api/middleware"
	"github.com/pullwise/pullwise/internal/config"
	"github.com/pullwise/pullwise/internal/reliability"
	"github.com/pullwise/pullwise/internal/store"
)

// Setup configures all API routes
func Setup(r *gin.Engine, e handler.ReviewEngine, cfg *config.Config, breakers *reliability.BreakerManager, limiter *reliability.RateLimiter, s store.Store) {
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger(&middleware.LoggerConfig{
		AccessLog: cfg.Logging.AccessLog,
	}))
	r.Use(middleware.RequestID())
	r.Use(middleware.ErrorHandler(cfg.Server.Debug))

	healthHandler := handler.NewHealthHandler(breakers, limiter, s)

	// Health endpoint (public)
	r.GET("/health", healthHandler.GetHealth)

	v1 := r.Group("/api/v1")

	// Webhook route: secret validation plus per-client rate limiting
	webhookHandler := handler.NewWebhookHandler(e)
	v1.POST("/pr-webhook",
		middleware.RateLimit(limiter),
		middleware.WebhookAuth(cfg.Server.WebhookSecret),
		webhookHandler.HandlePRWebhook)

	// Reliability visibility (public, read only)
	v1.GET("/reliability/health", healthHandler.GetReliabilityHealth)

	// Admin routes
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminAuth(cfg.Server.AdminKey))
	{
		admin.POST("/breakers/reset", healthHandler.ResetBreaker)
	}
}
