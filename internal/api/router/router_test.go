package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/pullwise/pullwise/internal/config"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/reliability"
	"github.com/pullwise/pullwise/internal/store"
)

type noopEngine struct{}

func (noopEngine) CheckDuplicate(*model.PREvent) (*model.IdempotencyRecord, error) {
	return nil, nil
}
func (noopEngine) HandlePREvent(context.Context, *model.PREvent) error { return nil }

func setupTestRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := config.Default()
	s, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)
	Setup(r, noopEngine{}, cfg,
		reliability.NewBreakerManager(0, 0),
		reliability.NewRateLimiter(0, 0), s)
	return r
}

func TestRoutes(t *testing.T) {
	r := setupTestRouter(t)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/v1/reliability/health", http.StatusOK},
		// empty body fails validation before anything else
		{http.MethodPost, "/api/v1/pr-webhook", http.StatusBadRequest},
		// admin key unset disables the endpoint
		{http.MethodPost, "/api/v1/admin/breakers/reset", http.StatusForbidden},
		{http.MethodGet, "/nonexistent", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, w.Code, "%s %s", tt.method, tt.path)
	}
}

func TestRequestIDHeader(t *testing.T) {
	r := setupTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
