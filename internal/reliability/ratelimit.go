package reliability

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/pkg/logger"
)

// RateLimiter applies per-client sliding-window admission control on the
// webhook endpoint. The window is RateLimitWindowSeconds wide; each client
// gets maxPerWindow requests within it.
type RateLimiter struct {
	mu           sync.Mutex
	clients      map[string][]time.Time
	window       time.Duration
	maxPerWindow int
}

// NewRateLimiter creates a limiter; non-positive arguments use the defaults
func NewRateLimiter(maxPerWindow int, windowSeconds int) *RateLimiter {
	if maxPerWindow <= 0 {
		maxPerWindow = consts.RateLimitRequestsPerMin
	}
	if windowSeconds <= 0 {
		windowSeconds = consts.RateLimitWindowSeconds
	}
	return &RateLimiter{
		clients:      make(map[string][]time.Time),
		window:       time.Duration(windowSeconds) * time.Second,
		maxPerWindow: maxPerWindow,
	}
}

// ClientID derives the limiter key: first token of X-Forwarded-For when
// present, otherwise the direct peer address.
func ClientID(forwardedFor, remoteAddr string) string {
	if forwardedFor != "" {
		first := strings.TrimSpace(strings.SplitN(forwardedFor, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	return remoteAddr
}

// Allow admits or rejects a request at the given instant. On rejection the
// second return value is the Retry-After duration: the time until the
// oldest in-window timestamp leaves the window.
func (l *RateLimiter) Allow(clientID string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	stamps := l.clients[clientID]

	// Drop timestamps that left the window
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.maxPerWindow {
		l.clients[clientID] = kept
		retryAfter := kept[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	l.clients[clientID] = append(kept, now)

	if len(l.clients) > consts.RateLimitMaxClients {
		l.pruneLocked(cutoff)
	}
	return true, 0
}

// ActiveClients returns the number of tracked clients
func (l *RateLimiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// pruneLocked drops clients with no activity inside the window
func (l *RateLimiter) pruneLocked(cutoff time.Time) {
	before := len(l.clients)
	for id, stamps := range l.clients {
		active := false
		for _, ts := range stamps {
			if ts.After(cutoff) {
				active = true
				break
			}
		}
		if !active {
			delete(l.clients, id)
		}
	}
	logger.Debug("Rate limiter pruned stale clients",
		zap.Int("before", before), zap.Int("after", len(l.clients)))
}
