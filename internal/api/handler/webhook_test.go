package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pullwise/pullwise/internal/api/middleware"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/reliability"
)

type fakeEngine struct {
	mu        sync.Mutex
	duplicate *model.IdempotencyRecord
	handled   []model.PREvent
	done      chan struct{}
}

func (f *fakeEngine) CheckDuplicate(*model.PREvent) (*model.IdempotencyRecord, error) {
	return f.duplicate, nil
}

func (f *fakeEngine) HandlePREvent(_ context.Context, event *model.PREvent) error {
	f.mu.Lock()
	f.handled = append(f.handled, *event)
	f.mu.Unlock()
	if f.done != nil {
		close(f.done)
	}
	return nil
}

func (f *fakeEngine) handledCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handled)
}

func validPayload() map[string]any {
	return map[string]any{
		"event_type":      "created",
		"pr_id":           42,
		"repository_id":   "repo-1",
		"repository_name": "repoA",
		"title":           "add feature",
		"source_branch":   "refs/heads/feature",
		"target_branch":   "refs/heads/main",
		"source_commit":   "abc123",
	}
}

func postWebhook(r *gin.Engine, payload any, headers map[string]string) *httptest.ResponseRecorder {
	data, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/pr-webhook", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func webhookRouter(e ReviewEngine, secret string, limiter *reliability.RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewWebhookHandler(e)
	handlers := []gin.HandlerFunc{}
	if limiter != nil {
		handlers = append(handlers, middleware.RateLimit(limiter))
	}
	handlers = append(handlers, middleware.WebhookAuth(secret), h.HandlePRWebhook)
	r.POST("/pr-webhook", handlers...)
	return r
}

func TestHandlePRWebhook_Accepted(t *testing.T) {
	e := &fakeEngine{done: make(chan struct{})}
	r := webhookRouter(e, "", nil)

	w := postWebhook(r, validPayload(), nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "accepted")

	select {
	case <-e.done:
	case <-time.After(2 * time.Second):
		t.Fatal("review was never started")
	}
	assert.Equal(t, 1, e.handledCount())
}

func TestHandlePRWebhook_InvalidPayload(t *testing.T) {
	e := &fakeEngine{}
	r := webhookRouter(e, "", nil)

	payload := validPayload()
	payload["source_branch"] = "refs/heads/../../etc"
	w := postWebhook(r, payload, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, e.handledCount())
}

func TestHandlePRWebhook_MalformedJSON(t *testing.T) {
	r := webhookRouter(&fakeEngine{}, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/pr-webhook", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePRWebhook_Duplicate(t *testing.T) {
	e := &fakeEngine{duplicate: &model.IdempotencyRecord{
		Status:        model.IdempotencyCompleted,
		ResultSummary: "issues=3 recommendation=comment strategy=single_pass",
	}}
	r := webhookRouter(e, "", nil)

	w := postWebhook(r, validPayload(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 0, e.handledCount())

	// the conflict response carries the original delivery's outcome
	var body struct {
		Status        string `json:"status"`
		ResultSummary string `json:"result_summary"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "completed", body.Status)
	assert.Equal(t, "issues=3 recommendation=comment strategy=single_pass", body.ResultSummary)
}

func TestHandlePRWebhook_SecretValidation(t *testing.T) {
	e := &fakeEngine{}
	r := webhookRouter(e, "0123456789abcdef", nil)

	w := postWebhook(r, validPayload(), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(r, validPayload(), map[string]string{"X-Webhook-Secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(r, validPayload(), map[string]string{"X-Webhook-Secret": "0123456789abcdef"})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestHandlePRWebhook_RateLimited(t *testing.T) {
	e := &fakeEngine{duplicate: &model.IdempotencyRecord{Status: model.IdempotencyCompleted}} // avoid spawning reviews
	limiter := reliability.NewRateLimiter(2, 60)
	r := webhookRouter(e, "", limiter)

	require.Equal(t, http.StatusConflict, postWebhook(r, validPayload(), nil).Code)
	require.Equal(t, http.StatusConflict, postWebhook(r, validPayload(), nil).Code)

	w := postWebhook(r, validPayload(), nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
