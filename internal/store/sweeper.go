package store

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/pkg/logger"
)

// SweepSchedule is the cron schedule for TTL cleanup (daily at 3 AM)
const SweepSchedule = "0 3 * * *"

// SweeperService deletes expired idempotency records and cache entries on a
// schedule. Rows carry their own expires_at; SQLite has no native TTL.
type SweeperService struct {
	store   Store
	cron    *cron.Cron
	entryID cron.EntryID
	mu      sync.Mutex
}

// NewSweeperService creates a new TTL sweeper
func NewSweeperService(store Store) *SweeperService {
	return &SweeperService{
		store: store,
		cron:  cron.New(),
	}
}

// Start schedules and starts the sweeper
func (s *SweeperService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(SweepSchedule, s.sweep)
	if err != nil {
		logger.Error("Failed to schedule TTL sweep", zap.Error(err))
		return err
	}
	s.entryID = entryID
	s.cron.Start()

	logger.Info("TTL sweeper started", zap.String("schedule", SweepSchedule))
	return nil
}

// Stop stops the sweeper
func (s *SweeperService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("TTL sweeper stopped")
}

// RunOnce performs a single sweep, exposed for startup and tests
func (s *SweeperService) RunOnce() {
	s.sweep()
}

func (s *SweeperService) sweep() {
	now := time.Now().UTC()

	idem, err := s.store.Idempotency().DeleteExpired(now)
	if err != nil {
		logger.Error("Idempotency sweep failed", zap.Error(err))
	}
	cache, err := s.store.Cache().DeleteExpired(now)
	if err != nil {
		logger.Error("Cache sweep failed", zap.Error(err))
	}

	logger.Info("TTL sweep completed",
		zap.Int64("idempotency_deleted", idem),
		zap.Int64("cache_deleted", cache))
}
