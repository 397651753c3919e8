package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/boostgrid/backend/internal/metrics"
	"github.com/boostgrid/backend/internal/models"
	"github.com/boostgrid/backend/internal/repository"
)

// OrderRepo provides the raw per-window aggregates.
type OrderRepo interface {
	CountPeriod(ctx context.Context, accountID uuid.UUID, platform string, from, to time.Time) (repository.PeriodCounts, error)
}

// SnapshotRepo is the cached snapshot store.
type SnapshotRepo interface {
	Get(ctx context.Context, accountID uuid.UUID, platform string, timeframe models.Timeframe) (*models.OrderStats, error)
	Upsert(ctx context.Context, s *models.OrderStats) error
	ListStale(ctx context.Context, cutoffMinutes int) ([]*models.OrderStats, error)
}

// Service serves cached order statistics and recomputes them when the
// snapshot is stale or a background job asks for it.
type Service struct {
	orders    OrderRepo
	snapshots SnapshotRepo
	staleness time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(orders OrderRepo, snapshots SnapshotRepo, staleness time.Duration, logger *slog.Logger) *Service {
	return &Service{
		orders:    orders,
		snapshots: snapshots,
		staleness: staleness,
		logger:    logger,
		now:       time.Now,
	}
}

// Get returns the snapshot for (account, platform, timeframe), serving
// the cached row while it is fresh and recomputing otherwise. A platform
// the account never ordered on yields nil.
func (s *Service) Get(ctx context.Context, accountID uuid.UUID, platform string, timeframe models.Timeframe) (*models.OrderStats, error) {
	if _, err := timeframe.Window(); err != nil {
		return nil, err
	}
	snapshot, err := s.snapshots.Get(ctx, accountID, platform, timeframe)
	if err != nil {
		return nil, err
	}
	if snapshot != nil && s.now().Sub(snapshot.LastCalculatedAt) < s.staleness {
		return snapshot, nil
	}
	return s.Recompute(ctx, accountID, platform, timeframe)
}

// Recompute rebuilds one snapshot from the order table: the current
// window against the immediately preceding equal-length window.
func (s *Service) Recompute(ctx context.Context, accountID uuid.UUID, platform string, timeframe models.Timeframe) (*models.OrderStats, error) {
	window, err := timeframe.Window()
	if err != nil {
		return nil, err
	}
	now := s.now()

	current, err := s.orders.CountPeriod(ctx, accountID, platform, now.Add(-window), now)
	if err != nil {
		return nil, err
	}
	previous, err := s.orders.CountPeriod(ctx, accountID, platform, now.Add(-2*window), now.Add(-window))
	if err != nil {
		return nil, err
	}
	if current.Total == 0 && previous.Total == 0 {
		return nil, nil
	}

	curSpend, _ := current.Spend.Float64()
	prevSpend, _ := previous.Spend.Float64()
	snapshot := &models.OrderStats{
		ID:               uuid.New(),
		AccountID:        accountID,
		Platform:         platform,
		Timeframe:        timeframe,
		ActiveOrders:     current.Active,
		CompletedOrders:  current.Completed,
		TotalOrders:      current.Total,
		TotalSpend:       current.Spend,
		ActiveGrowth:     growth(float64(previous.Active), float64(current.Active)),
		CompletedGrowth:  growth(float64(previous.Completed), float64(current.Completed)),
		TotalGrowth:      growth(float64(previous.Total), float64(current.Total)),
		SpendGrowth:      growth(prevSpend, curSpend),
		LastCalculatedAt: now,
	}
	if err := s.snapshots.Upsert(ctx, snapshot); err != nil {
		return nil, err
	}
	metrics.StatsRecomputesTotal.Inc()
	return snapshot, nil
}

// RecomputeAll refreshes every timeframe for (account, platform). Used
// by the background job enqueued on order creation.
func (s *Service) RecomputeAll(ctx context.Context, accountID uuid.UUID, platform string) error {
	for _, timeframe := range []models.Timeframe{models.TimeframeDay, models.TimeframeWeek, models.TimeframeMonth} {
		if _, err := s.Recompute(ctx, accountID, platform, timeframe); err != nil {
			return err
		}
	}
	return nil
}

// RefreshStale recomputes every snapshot older than the staleness
// window. Wired to the cron schedule.
func (s *Service) RefreshStale(ctx context.Context) error {
	stale, err := s.snapshots.ListStale(ctx, int(s.staleness.Minutes()))
	if err != nil {
		return err
	}
	for _, snapshot := range stale {
		if _, err := s.Recompute(ctx, snapshot.AccountID, snapshot.Platform, snapshot.Timeframe); err != nil {
			s.logger.Error("stats refresh failed",
				"account_id", snapshot.AccountID,
				"platform", snapshot.Platform,
				"timeframe", snapshot.Timeframe,
				"error", err)
			continue
		}
	}
	s.logger.Info("stale stats refreshed", "count", len(stale))
	return nil
}

// growth is percent change between windows. A previous window of zero
// reads as 100% growth when anything appeared, 0% otherwise.
func growth(prev, cur float64) float64 {
	if prev == 0 {
		if cur > 0 {
			return 100
		}
		return 0
	}
	return (cur - prev) / prev * 100
}
