package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/pkg/logger"
)

// HarvestSchedule is the cron schedule for feedback collection (hourly)
const HarvestSchedule = "0 * * * *"

// harvestRunTimeout bounds one scheduled harvest run
const harvestRunTimeout = 10 * time.Minute

// Service runs the harvester on a schedule
type Service struct {
	harvester  *Harvester
	cron       *cron.Cron
	entryID    cron.EntryID
	maxRetries int
	retryDelay time.Duration
	mu         sync.Mutex
}

// NewService creates the scheduled harvest service
func NewService(h *Harvester) *Service {
	return &Service{
		harvester:  h,
		cron:       cron.New(),
		maxRetries: consts.TimerMaxRetries,
		retryDelay: consts.TimerRetryDelay,
	}
}

// SetRetryPolicy overrides how often a failed harvest run is retried
func (s *Service) SetRetryPolicy(maxRetries int, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxRetries = maxRetries
	s.retryDelay = delay
}

// Start schedules and starts the harvest service
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(HarvestSchedule, s.run)
	if err != nil {
		logger.Error("Failed to schedule feedback harvest", zap.Error(err))
		return err
	}
	s.entryID = entryID
	s.cron.Start()

	logger.Info("Feedback harvest service started", zap.String("schedule", HarvestSchedule))
	return nil
}

// Stop stops the harvest service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Info("Feedback harvest service stopped")
}

// RunOnce performs a single harvest, exposed for startup and tests
func (s *Service) RunOnce() {
	s.run()
}

func (s *Service) run() {
	s.mu.Lock()
	maxRetries, retryDelay := s.maxRetries, s.retryDelay
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), harvestRunTimeout)
	defer cancel()

	attempt := 0
	_, err := backoff.Retry(ctx, func() (int, error) {
		attempt++
		collected, err := s.harvester.CollectRecentFeedback(ctx)
		if err != nil {
			logger.Warn("Feedback harvest attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return 0, err
		}
		return collected, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(retryDelay)),
		backoff.WithMaxTries(uint(maxRetries)+1),
	)
	if err != nil {
		logger.Error("Feedback harvest failed",
			zap.Int("attempts", attempt),
			zap.Error(err))
	}
}
