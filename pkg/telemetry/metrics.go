package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/pkg/logger"
)

const (
	// MeterName is the default meter name for the application
	MeterName = "github.com/pullwise/pullwise"
)

// Metrics holds all application metrics
type Metrics struct {
	// Review metrics
	ReviewsTotal   metric.Int64Counter
	ReviewDuration metric.Float64Histogram
	ActiveReviews  metric.Int64UpDownCounter
	IssuesFound    metric.Int64Counter

	// AI metrics
	AICallsTotal metric.Int64Counter
	AITokensUsed metric.Int64Counter
	AICostUSD    metric.Float64Counter

	// Reliability metrics
	CacheLookups    metric.Int64Counter
	BreakerTrips    metric.Int64Counter
	IdempotencyHits metric.Int64Counter
	RateLimited     metric.Int64Counter

	// Webhook metrics
	WebhooksTotal   metric.Int64Counter
	WebhookDuration metric.Float64Histogram
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// GetMetrics returns the global metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		var err error
		globalMetrics, err = initMetrics()
		if err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			// Return empty metrics to avoid nil pointer
			globalMetrics = &Metrics{}
		}
	})
	return globalMetrics
}

// initMetrics initializes all application metrics
func initMetrics() (*Metrics, error) {
	meter := otel.Meter(MeterName)
	m := &Metrics{}

	var err error

	m.ReviewsTotal, err = meter.Int64Counter(
		"pullwise_reviews_total",
		metric.WithDescription("Total number of PR reviews"),
		metric.WithUnit("{review}"),
	)
	if err != nil {
		return nil, err
	}

	m.ReviewDuration, err = meter.Float64Histogram(
		"pullwise_review_duration_seconds",
		metric.WithDescription("Duration of PR reviews in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 480),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveReviews, err = meter.Int64UpDownCounter(
		"pullwise_active_reviews",
		metric.WithDescription("Number of currently active reviews"),
		metric.WithUnit("{review}"),
	)
	if err != nil {
		return nil, err
	}

	m.IssuesFound, err = meter.Int64Counter(
		"pullwise_issues_found_total",
		metric.WithDescription("Total number of review issues by severity"),
		metric.WithUnit("{issue}"),
	)
	if err != nil {
		return nil, err
	}

	m.AICallsTotal, err = meter.Int64Counter(
		"pullwise_ai_calls_total",
		metric.WithDescription("Total number of AI review calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	m.AITokensUsed, err = meter.Int64Counter(
		"pullwise_ai_tokens_total",
		metric.WithDescription("Total tokens consumed by AI review calls"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	m.AICostUSD, err = meter.Float64Counter(
		"pullwise_ai_cost_usd_total",
		metric.WithDescription("Estimated AI cost in USD"),
	)
	if err != nil {
		return nil, err
	}

	m.CacheLookups, err = meter.Int64Counter(
		"pullwise_cache_lookups_total",
		metric.WithDescription("Response cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	m.BreakerTrips, err = meter.Int64Counter(
		"pullwise_breaker_transitions_total",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	m.IdempotencyHits, err = meter.Int64Counter(
		"pullwise_idempotency_hits_total",
		metric.WithDescription("Duplicate webhook deliveries short-circuited"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	m.RateLimited, err = meter.Int64Counter(
		"pullwise_rate_limited_total",
		metric.WithDescription("Webhook requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.WebhooksTotal, err = meter.Int64Counter(
		"pullwise_webhooks_total",
		metric.WithDescription("Total webhook deliveries by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.WebhookDuration, err = meter.Float64Histogram(
		"pullwise_webhook_duration_seconds",
		metric.WithDescription("Duration of webhook handling in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120, 480),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Metrics initialized successfully")
	return m, nil
}

// RecordReviewStarted records that a review has started
func (m *Metrics) RecordReviewStarted(ctx context.Context, repository string) {
	if m.ReviewsTotal != nil {
		m.ReviewsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("repository", repository)),
		)
	}
	if m.ActiveReviews != nil {
		m.ActiveReviews.Add(ctx, 1)
	}
}

// RecordReviewCompleted records that a review has completed
func (m *Metrics) RecordReviewCompleted(ctx context.Context, status string, durationSeconds float64) {
	if m.ActiveReviews != nil {
		m.ActiveReviews.Add(ctx, -1)
	}
	if m.ReviewDuration != nil {
		m.ReviewDuration.Record(ctx, durationSeconds,
			metric.WithAttributes(attribute.String("status", status)),
		)
	}
}

// RecordIssues records issues found by severity
func (m *Metrics) RecordIssues(ctx context.Context, severity string, count int64) {
	if m.IssuesFound == nil {
		return
	}
	m.IssuesFound.Add(ctx, count,
		metric.WithAttributes(attribute.String("severity", severity)),
	)
}

// RecordAICall records one AI call with its accounting
func (m *Metrics) RecordAICall(ctx context.Context, success bool, tokens int64, costUSD float64) {
	if m.AICallsTotal != nil {
		m.AICallsTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.Bool("success", success)),
		)
	}
	if m.AITokensUsed != nil && tokens > 0 {
		m.AITokensUsed.Add(ctx, tokens)
	}
	if m.AICostUSD != nil && costUSD > 0 {
		m.AICostUSD.Add(ctx, costUSD)
	}
}

// RecordCacheLookup records a cache lookup outcome ("hit" or "miss")
func (m *Metrics) RecordCacheLookup(ctx context.Context, outcome string) {
	if m.CacheLookups == nil {
		return
	}
	m.CacheLookups.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)),
	)
}

// RecordBreakerTransition records a circuit breaker state change
func (m *Metrics) RecordBreakerTransition(ctx context.Context, service, from, to string) {
	if m.BreakerTrips == nil {
		return
	}
	m.BreakerTrips.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("service", service),
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordIdempotencyHit records a deduplicated webhook delivery
func (m *Metrics) RecordIdempotencyHit(ctx context.Context, repository string) {
	if m.IdempotencyHits == nil {
		return
	}
	m.IdempotencyHits.Add(ctx, 1,
		metric.WithAttributes(attribute.String("repository", repository)),
	)
}

// RecordRateLimited records a rejected webhook request
func (m *Metrics) RecordRateLimited(ctx context.Context) {
	if m.RateLimited == nil {
		return
	}
	m.RateLimited.Add(ctx, 1)
}

// RecordWebhook records a webhook delivery and its handling duration
func (m *Metrics) RecordWebhook(ctx context.Context, outcome string, durationSeconds float64) {
	if m.WebhooksTotal != nil {
		m.WebhooksTotal.Add(ctx, 1,
			metric.WithAttributes(attribute.String("outcome", outcome)),
		)
	}
	if m.WebhookDuration != nil {
		m.WebhookDuration.Record(ctx, durationSeconds)
	}
}
