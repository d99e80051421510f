// Package reliability holds the substrate that keeps the review pipeline
// alive when dependencies misbehave: circuit breakers, the response cache,
// webhook deduplication, and inbound rate limiting.
package reliability

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
	"github.com/pullwise/pullwise/pkg/logger"
	"github.com/pullwise/pullwise/pkg/telemetry"
)

// BreakerStatus is one breaker's externally visible state
type BreakerStatus struct {
	Service             string `json:"service"`
	State               string `json:"state"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	TotalFailures       uint32 `json:"total_failures"`
	TotalSuccesses      uint32 `json:"total_successes"`
}

// BreakerManager lazily creates one circuit breaker per logical service
// name. Breakers live for the process lifetime.
type BreakerManager struct {
	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
	threshold uint32
	timeout   time.Duration
}

// NewBreakerManager creates a manager with the given trip threshold and
// open timeout. Zero values fall back to the defaults.
func NewBreakerManager(threshold int, timeout time.Duration) *BreakerManager {
	if threshold <= 0 {
		threshold = consts.BreakerFailureThreshold
	}
	if timeout <= 0 {
		timeout = consts.BreakerOpenTimeout
	}
	return &BreakerManager{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		threshold: uint32(threshold),
		timeout:   timeout,
	}
}

// Execute runs fn under the breaker for the named service. An open breaker
// (or a rejected half-open probe) maps to a service-unavailable error
// without invoking fn.
func (m *BreakerManager) Execute(service string, fn func() (interface{}, error)) (interface{}, error) {
	cb := m.get(service)
	out, err := cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, pkgerrors.ErrServiceUnavailable(service)
	}
	return out, err
}

// List returns the state of every breaker created so far
func (m *BreakerManager) List() []BreakerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]BreakerStatus, 0, len(m.breakers))
	for name, cb := range m.breakers {
		counts := cb.Counts()
		statuses = append(statuses, BreakerStatus{
			Service:             name,
			State:               cb.State().String(),
			ConsecutiveFailures: counts.ConsecutiveFailures,
			TotalFailures:       counts.TotalFailures,
			TotalSuccesses:      counts.TotalSuccesses,
		})
	}
	return statuses
}

// Reset discards the named breaker so the next call starts closed
func (m *BreakerManager) Reset(service string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.breakers[service]; ok {
		delete(m.breakers, service)
		logger.Info("Circuit breaker reset", zap.String("service", service))
	}
}

// ResetAll discards every breaker
func (m *BreakerManager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name := range m.breakers {
		delete(m.breakers, name)
	}
	logger.Info("All circuit breakers reset")
}

func (m *BreakerManager) get(service string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[service]; ok {
		return cb
	}

	threshold := m.threshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: service,
		// One probe at a time in half-open
		MaxRequests: 1,
		Timeout:     m.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change",
				zap.String("service", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			telemetry.GetMetrics().RecordBreakerTransition(context.Background(), name, from.String(), to.String())
		},
	})
	m.breakers[service] = cb
	return cb
}
