package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetMetrics(t *testing.T) {
	m := GetMetrics()
	assert.NotNil(t, m)

	// Same instance on repeated calls
	assert.Same(t, m, GetMetrics())
}

func TestMetricsRecordersTolerateNilInstruments(t *testing.T) {
	// An empty Metrics struct (failed init) must not panic
	m := &Metrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordReviewStarted(ctx, "repoA")
		m.RecordReviewCompleted(ctx, "completed", 1.5)
		m.RecordIssues(ctx, "critical", 2)
		m.RecordAICall(ctx, true, 1200, 0.03)
		m.RecordCacheLookup(ctx, "hit")
		m.RecordBreakerTransition(ctx, "openai", "closed", "open")
		m.RecordIdempotencyHit(ctx, "repoA")
		m.RecordRateLimited(ctx)
		m.RecordWebhook(ctx, "accepted", 0.2)
	})
}

func TestNewDisabled(t *testing.T) {
	tel, err := New(Config{Enabled: false})
	assert.NoError(t, err)
	assert.NotNil(t, tel)
	assert.NoError(t, tel.Shutdown(context.Background()))
}
