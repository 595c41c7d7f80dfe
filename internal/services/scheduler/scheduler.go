package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// DirectoryRefresher re-downloads the corp-code directory
type DirectoryRefresher interface {
	RefreshDirectory(ctx context.Context) (int, error)
}

// runTimeout bounds a single scheduled refresh
const runTimeout = 10 * time.Minute

// Scheduler refreshes the corp-code directory on a cron schedule
type Scheduler struct {
	refresher DirectoryRefresher
	cron      *cron.Cron
	logger    arbor.ILogger
}

// NewScheduler creates a new directory refresh scheduler
func NewScheduler(refresher DirectoryRefresher, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		cron:      cron.New(),
		logger:    logger,
	}
}

// Start registers the refresh job and starts the cron loop.
// An empty schedule leaves the scheduler idle.
func (s *Scheduler) Start(schedule string) error {
	if schedule == "" {
		s.logger.Info().Msg("Directory refresh schedule disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Msg("Directory refresh scheduler started")

	return nil
}

// Stop stops the scheduler and waits for a running refresh to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Directory refresh scheduler stopped")
}

// RunNow triggers an immediate refresh
func (s *Scheduler) RunNow() {
	s.logger.Info().Msg("Triggering immediate directory refresh")
	go s.run()
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()
	count, err := s.refresher.RefreshDirectory(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("Scheduled directory refresh failed")
		return
	}

	s.logger.Info().
		Int("corporations", count).
		Dur("duration", time.Since(start)).
		Msg("Scheduled directory refresh completed")
}
