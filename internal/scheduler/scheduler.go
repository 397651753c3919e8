package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// StatsRefresher re-materializes stale statistics snapshots.
type StatsRefresher interface {
	RefreshStale(ctx context.Context) error
}

// Scheduler runs the periodic stats refresh.
type Scheduler struct {
	cron     *cron.Cron
	stats    StatsRefresher
	schedule string
	logger   *slog.Logger
}

func New(stats StatsRefresher, schedule string, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:     c,
		stats:    stats,
		schedule: schedule,
		logger:   logger,
	}
}

// Start registers the refresh job and starts the cron loop.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.schedule, s.refresh); err != nil {
		s.logger.Error("failed to schedule stats refresh", "error", err)
	} else {
		s.logger.Info("scheduled stats refresh", "schedule", s.schedule)
	}
	s.cron.Start()
}

func (s *Scheduler) refresh() {
	if err := s.stats.RefreshStale(context.Background()); err != nil {
		s.logger.Error("stats refresh run failed", "error", err)
	}
}

// Stop gracefully stops the cron loop.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
