package dispatch

import (
	"context"
	"log/slog"
	"time"
)

// SweepEnqueuer publishes retention sweeps.
type SweepEnqueuer interface {
	EnqueueRetentionSweep(ctx context.Context, maxAgeHours int) error
}

// Scheduler enqueues a retention sweep at a fixed interval.
type Scheduler struct {
	enqueuer    SweepEnqueuer
	interval    time.Duration
	maxAgeHours int
	logger      *slog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(enqueuer SweepEnqueuer, interval time.Duration, maxAgeHours int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		enqueuer:    enqueuer,
		interval:    interval,
		maxAgeHours: maxAgeHours,
		logger:      logger,
	}
}

// Run blocks until ctx is cancelled. A non-positive interval disables it.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("retention sweep scheduler disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.enqueuer.EnqueueRetentionSweep(ctx, s.maxAgeHours); err != nil {
				s.logger.Error("failed to enqueue retention sweep", slog.String("error", err.Error()))
				continue
			}
			s.logger.Info("retention sweep enqueued", slog.Int("max_age_hours", s.maxAgeHours))
		}
	}
}
