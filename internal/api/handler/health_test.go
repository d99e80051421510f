package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pullwise/pullwise/internal/api/middleware"
	"github.com/pullwise/pullwise/internal/reliability"
	"github.com/pullwise/pullwise/internal/store"
)

func healthRouter(t *testing.T, breakers *reliability.BreakerManager, adminKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	s, cleanup := store.SetupTestDB(t)
	t.Cleanup(cleanup)
	h := NewHealthHandler(breakers, reliability.NewRateLimiter(0, 0), s)
	r.GET("/health", h.GetHealth)
	r.GET("/reliability/health", h.GetReliabilityHealth)
	r.POST("/admin/breakers/reset", middleware.AdminAuth(adminKey), h.ResetBreaker)
	return r
}

func TestGetHealth(t *testing.T) {
	r := healthRouter(t, reliability.NewBreakerManager(0, 0), "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestGetReliabilityHealth(t *testing.T) {
	breakers := reliability.NewBreakerManager(2, time.Minute)
	r := healthRouter(t, breakers, "")

	// trip the openai breaker
	for i := 0; i < 2; i++ {
		_, _ = breakers.Execute("openai", func() (interface{}, error) {
			return nil, errors.New("down")
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/reliability/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status   string                      `json:"status"`
		Breakers []reliability.BreakerStatus `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	require.Len(t, body.Breakers, 1)
	assert.Equal(t, "open", body.Breakers[0].State)

	// empty stores still produce the cache and review reports
	assert.Contains(t, w.Body.String(), `"cache"`)
	assert.Contains(t, w.Body.String(), `"failure_rate"`)
}

func TestResetBreaker(t *testing.T) {
	breakers := reliability.NewBreakerManager(1, time.Minute)
	r := healthRouter(t, breakers, "admin-key")

	_, _ = breakers.Execute("openai", func() (interface{}, error) {
		return nil, errors.New("down")
	})

	payload, _ := json.Marshal(map[string]string{"service": "openai"})

	// missing then wrong key
	req := httptest.NewRequest(http.MethodPost, "/admin/breakers/reset", bytes.NewReader(payload))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/breakers/reset", bytes.NewReader(payload))
	req.Header.Set("X-Admin-Key", "wrong")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// correct key resets the breaker
	req = httptest.NewRequest(http.MethodPost, "/admin/breakers/reset", bytes.NewReader(payload))
	req.Header.Set("X-Admin-Key", "admin-key")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, breakers.List())
}

func TestResetBreaker_DisabledWithoutKey(t *testing.T) {
	r := healthRouter(t, reliability.NewBreakerManager(0, 0), "")
	req := httptest.NewRequest(http.MethodPost, "/admin/breakers/reset", bytes.NewReader([]byte("{}")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
