// Package handler provides HTTP handlers for the API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/internal/model"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
	"github.com/pullwise/pullwise/pkg/logger"
	"github.com/pullwise/pullwise/pkg/telemetry"
)

// ReviewEngine is the slice of the engine the webhook handler needs
type ReviewEngine interface {
	// CheckDuplicate returns the idempotency record already covering the
	// event, or nil when the delivery is fresh
	CheckDuplicate(event *model.PREvent) (*model.IdempotencyRecord, error)
	HandlePREvent(ctx context.Context, event *model.PREvent) error
}

// WebhookHandler handles PR webhook deliveries
type WebhookHandler struct {
	engine ReviewEngine
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(e ReviewEngine) *WebhookHandler {
	return &WebhookHandler{engine: e}
}

// HandlePRWebhook handles POST /api/v1/pr-webhook. Validation and the
// duplicate check run synchronously; the review itself runs in the
// background and the delivery is acknowledged with 202.
func (h *WebhookHandler) HandlePRWebhook(c *gin.Context) {
	start := time.Now()

	var event model.PREvent
	if err := c.ShouldBindJSON(&event); err != nil {
		telemetry.GetMetrics().RecordWebhook(c.Request.Context(), "malformed", time.Since(start).Seconds())
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    pkgerrors.ErrCodeValidation,
			"message": "Malformed webhook payload",
		})
		return
	}
	if err := event.Validate(); err != nil {
		telemetry.GetMetrics().RecordWebhook(c.Request.Context(), "invalid", time.Since(start).Seconds())
		logger.Warn("Webhook validation failed",
			zap.Int(logger.FieldPRID, event.PRID),
			zap.String(logger.FieldRepository, logger.TruncateField(event.RepositoryName)),
			zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    pkgerrors.ErrCodeValidation,
			"message": "Invalid webhook payload: " + err.Error(),
		})
		return
	}

	dup, err := h.engine.CheckDuplicate(&event)
	if err != nil {
		c.Error(err)
		return
	}
	if dup != nil {
		telemetry.GetMetrics().RecordWebhook(c.Request.Context(), "duplicate", time.Since(start).Seconds())
		c.JSON(http.StatusConflict, gin.H{
			"code":           pkgerrors.ErrCodeDuplicateEvent,
			"message":        "Delivery already processed",
			"status":         dup.Status,
			"result_summary": dup.ResultSummary,
		})
		return
	}

	logger.Info("Webhook accepted",
		zap.String("event_type", string(event.EventType)),
		zap.Int(logger.FieldPRID, event.PRID),
		zap.String(logger.FieldRepository, event.RepositoryName),
		zap.String("source_commit", event.SourceCommit))

	// the engine applies its own overall timeout; the delivery is already
	// acknowledged by the time the review finishes
	go func(ev model.PREvent) {
		if err := h.engine.HandlePREvent(context.Background(), &ev); err != nil {
			if appErr, ok := pkgerrors.AsAppError(err); ok && appErr.Code == pkgerrors.ErrCodeDuplicateEvent {
				logger.Info("Concurrent delivery coalesced",
					zap.Int(logger.FieldPRID, ev.PRID),
					zap.String(logger.FieldRepository, ev.RepositoryName))
				return
			}
			logger.Error("Review failed",
				zap.Int(logger.FieldPRID, ev.PRID),
				zap.String(logger.FieldRepository, ev.RepositoryName),
				zap.Error(err))
		}
	}(event)

	telemetry.GetMetrics().RecordWebhook(c.Request.Context(), "accepted", time.Since(start).Seconds())
	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
		"pr_id":  event.PRID,
	})
}
