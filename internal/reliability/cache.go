package reliability

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/store"
	"github.com/pullwise/pullwise/pkg/idgen"
	"github.com/pullwise/pullwise/pkg/logger"
	"github.com/pullwise/pullwise/pkg/telemetry"
)

// ResponseCache is the content-addressed cache of AI review outputs.
// Entries are keyed by the hash of everything that affects the model's
// answer and expire after the configured TTL.
type ResponseCache struct {
	store store.CacheStore
	ttl   time.Duration

	// writeLimiter bounds table writes; overflow skips the write, the
	// review itself is unaffected
	writeLimiter *rate.Limiter
}

// NewResponseCache creates a cache with the given TTL in days
func NewResponseCache(cs store.CacheStore, ttlDays int) *ResponseCache {
	if ttlDays <= 0 {
		ttlDays = consts.CacheTTLDays
	}
	perSecond := rate.Limit(float64(consts.CacheMaxWritesPerMinute) / 60.0)
	return &ResponseCache{
		store:        cs,
		ttl:          time.Duration(ttlDays) * 24 * time.Hour,
		writeLimiter: rate.NewLimiter(perSecond, consts.CacheMaxWritesPerMinute),
	}
}

// Key derives the cache key from the prompt-relevant inputs
func (c *ResponseCache) Key(prompt, modelID, temperaturePolicy string) string {
	return idgen.ContentHash(prompt, modelID, temperaturePolicy)
}

// Lookup returns the cached result for the key, or nil on miss. Expired or
// unparsable entries count as misses. The hit-count update is best-effort
// under a short budget and never fails the lookup.
func (c *ResponseCache) Lookup(ctx context.Context, repository, key string) *model.ReviewResult {
	entry, err := c.store.Get(repository, key)
	if err != nil {
		logger.Warn("Cache lookup failed", zap.Error(err))
		telemetry.GetMetrics().RecordCacheLookup(ctx, "miss")
		return nil
	}
	if entry == nil || entry.Expired(time.Now()) {
		telemetry.GetMetrics().RecordCacheLookup(ctx, "miss")
		return nil
	}

	var result model.ReviewResult
	if err := json.Unmarshal([]byte(entry.ReviewJSON), &result); err != nil {
		logger.Warn("Cache entry does not parse, treating as miss",
			zap.String(logger.FieldRepository, repository), zap.Error(err))
		telemetry.GetMetrics().RecordCacheLookup(ctx, "miss")
		return nil
	}
	if err := result.Validate(); err != nil {
		logger.Warn("Cache entry fails validation, treating as miss",
			zap.String(logger.FieldRepository, repository), zap.Error(err))
		telemetry.GetMetrics().RecordCacheLookup(ctx, "miss")
		return nil
	}

	hitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), consts.CacheWriteTimeout)
	defer cancel()
	if err := c.recordHit(hitCtx, repository, key); err != nil {
		logger.Warn("Cache hit update failed", zap.Error(err))
	}

	telemetry.GetMetrics().RecordCacheLookup(ctx, "hit")
	return &result
}

// Store writes a review result under the key. Writes beyond the per-minute
// budget are skipped with a warning.
func (c *ResponseCache) Store(ctx context.Context, repository, key, filePath string, result *model.ReviewResult) {
	if !c.writeLimiter.Allow() {
		logger.Warn("Cache write rate exceeded, skipping write",
			zap.String(logger.FieldRepository, repository))
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		logger.Warn("Cache serialization failed", zap.Error(err))
		return
	}
	entry := &model.CacheEntry{
		Repository:  repository,
		ContentHash: key,
		ReviewJSON:  string(data),
		FilePath:    filePath,
		TokensUsed:  result.TokensUsed,
		CostUSD:     result.EstimatedCostUSD,
		ExpiresAt:   time.Now().Add(c.ttl),
	}
	if err := c.store.Put(entry); err != nil {
		logger.Warn("Cache write failed", zap.Error(err))
	}
}

func (c *ResponseCache) recordHit(ctx context.Context, repository, key string) error {
	done := make(chan error, 1)
	go func() {
		done <- c.store.RecordHit(repository, key, time.Now().UTC())
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
