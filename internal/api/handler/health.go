package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/reliability"
	"github.com/pullwise/pullwise/internal/store"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
	"github.com/pullwise/pullwise/pkg/logger"
)

// reviewStatsWindow bounds the recent-review report
const reviewStatsWindow = 24 * time.Hour

// HealthHandler exposes liveness and reliability-substrate visibility
type HealthHandler struct {
	breakers *reliability.BreakerManager
	limiter  *reliability.RateLimiter
	store    store.Store
}

// NewHealthHandler creates a health handler
func NewHealthHandler(breakers *reliability.BreakerManager, limiter *reliability.RateLimiter, s store.Store) *HealthHandler {
	return &HealthHandler{breakers: breakers, limiter: limiter, store: s}
}

// GetHealth handles GET /health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": consts.Version,
		"uptime":  consts.GetUptime().String(),
	})
}

// GetReliabilityHealth handles GET /api/v1/reliability/health. A degraded
// status means at least one circuit is not closed.
func (h *HealthHandler) GetReliabilityHealth(c *gin.Context) {
	breakers := h.breakers.List()

	status := "ok"
	for _, b := range breakers {
		if b.State != "closed" {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"breakers": breakers,
		"rate_limiter": gin.H{
			"active_clients": h.limiter.ActiveClients(),
		},
		"cache":   h.cacheReport(),
		"reviews": h.reviewReport(),
	})
}

// cacheReport summarizes response-cache effectiveness. Failures degrade to an
// empty report so a storage hiccup does not take the endpoint down.
func (h *HealthHandler) cacheReport() gin.H {
	entries, hits, err := h.store.Cache().Stats()
	if err != nil {
		logger.Warn("Failed to read cache stats", zap.Error(err))
		return gin.H{}
	}
	ratio := 0.0
	if total := hits + entries; total > 0 {
		// each entry cost one miss to create
		ratio = float64(hits) / float64(total)
	}
	return gin.H{
		"entries":    entries,
		"total_hits": hits,
		"hit_ratio":  ratio,
	}
}

// reviewReport summarizes review outcomes over the last 24h from
// idempotency records
func (h *HealthHandler) reviewReport() gin.H {
	counts, err := h.store.Idempotency().CountByStatusSince(time.Now().Add(-reviewStatsWindow))
	if err != nil {
		logger.Warn("Failed to read review stats", zap.Error(err))
		return gin.H{}
	}
	completed := counts[model.IdempotencyCompleted]
	failed := counts[model.IdempotencyFailed]
	rate := 0.0
	if total := completed + failed; total > 0 {
		rate = float64(failed) / float64(total)
	}
	return gin.H{
		"window":       reviewStatsWindow.String(),
		"completed":    completed,
		"failed":       failed,
		"in_progress":  counts[model.IdempotencyPending],
		"failure_rate": rate,
	}
}

// resetBreakerRequest is the breaker-reset payload; an empty service resets
// every breaker
type resetBreakerRequest struct {
	Service string `json:"service"`
}

// ResetBreaker handles POST /api/v1/admin/breakers/reset
func (h *HealthHandler) ResetBreaker(c *gin.Context) {
	var req resetBreakerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    pkgerrors.ErrCodeValidation,
			"message": "Malformed request body",
		})
		return
	}

	if req.Service == "" {
		h.breakers.ResetAll()
	} else {
		h.breakers.Reset(req.Service)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "reset",
		"breakers": h.breakers.List(),
	})
}
