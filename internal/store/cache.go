package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pullwise/pullwise/internal/model"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
)

// CacheStore defines operations for cached AI review responses
type CacheStore interface {
	Get(repository, contentHash string) (*model.CacheEntry, error)
	Put(entry *model.CacheEntry) error
	RecordHit(repository, contentHash string, at time.Time) error
	DeleteExpired(now time.Time) (int64, error)

	// Stats returns the live entry count and the sum of hit counters
	Stats() (entries int64, hits int64, err error)
}

type cacheStore struct {
	db *gorm.DB
}

func newCacheStore(db *gorm.DB) CacheStore {
	return &cacheStore{db: db}
}

func (s *cacheStore) Get(repository, contentHash string) (*model.CacheEntry, error) {
	var entry model.CacheEntry
	err := s.db.Where("repository = ? AND content_hash = ?", repository, contentHash).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to query cache entry", err)
	}
	return &entry, nil
}

func (s *cacheStore) Put(entry *model.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeValidation, "invalid cache entry", err)
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "repository"}, {Name: "content_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"review_json", "file_path", "tokens_used", "cost_usd", "expires_at", "updated_at",
		}),
	}).Create(entry).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to write cache entry", err)
	}
	return nil
}

func (s *cacheStore) RecordHit(repository, contentHash string, at time.Time) error {
	err := s.db.Model(&model.CacheEntry{}).
		Where("repository = ? AND content_hash = ?", repository, contentHash).
		Updates(map[string]interface{}{
			"hit_count":   gorm.Expr("hit_count + 1"),
			"last_hit_at": at,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to record cache hit", err)
	}
	return nil
}

func (s *cacheStore) DeleteExpired(now time.Time) (int64, error) {
	result := s.db.Where("expires_at < ?", now).Delete(&model.CacheEntry{})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to delete expired cache entries", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *cacheStore) Stats() (int64, int64, error) {
	var entries int64
	if err := s.db.Model(&model.CacheEntry{}).Count(&entries).Error; err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to count cache entries", err)
	}
	// COALESCE keeps SUM from returning NULL on an empty table
	var hits int64
	err := s.db.Model(&model.CacheEntry{}).
		Select("COALESCE(SUM(hit_count), 0)").
		Scan(&hits).Error
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to sum cache hits", err)
	}
	return entries, hits, nil
}
