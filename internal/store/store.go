// Package store provides the data access layer. It abstracts database
// operations behind per-table interfaces so the orchestrator and the
// reliability substrate never touch GORM directly.
package store

import "gorm.io/gorm"

// Store aggregates all data store interfaces
type Store interface {
	Idempotency() IdempotencyStore
	Cache() CacheStore
	Feedback() FeedbackStore
	History() HistoryStore

	// DB returns the underlying database connection for advanced operations.
	// Use sparingly - prefer using specific store methods.
	DB() *gorm.DB

	// Transaction executes operations within a database transaction
	Transaction(fn func(Store) error) error
}

// gormStore implements Store interface using GORM
type gormStore struct {
	db          *gorm.DB
	idempotency IdempotencyStore
	cache       CacheStore
	feedback    FeedbackStore
	history     HistoryStore
}

// NewStore creates a new Store instance with GORM backend
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:          db,
		idempotency: newIdempotencyStore(db),
		cache:       newCacheStore(db),
		feedback:    newFeedbackStore(db),
		history:     newHistoryStore(db),
	}
}

func (s *gormStore) Idempotency() IdempotencyStore {
	return s.idempotency
}

func (s *gormStore) Cache() CacheStore {
	return s.cache
}

func (s *gormStore) Feedback() FeedbackStore {
	return s.feedback
}

func (s *gormStore) History() HistoryStore {
	return s.history
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) Transaction(fn func(Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}
