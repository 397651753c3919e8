package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boostgrid/backend/internal/models"
)

type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

// Get returns the snapshot for (account, platform, timeframe), or nil when
// none has been calculated yet.
func (r *StatsRepo) Get(ctx context.Context, accountID uuid.UUID, platform string, timeframe models.Timeframe) (*models.OrderStats, error) {
	var s models.OrderStats
	err := r.pool.QueryRow(ctx, `
		SELECT id, account_id, platform, timeframe, active_orders, completed_orders, total_orders,
			total_spend, active_growth, completed_growth, total_growth, spend_growth, last_calculated_at
		FROM order_stats WHERE account_id = $1 AND platform = $2 AND timeframe = $3
	`, accountID, platform, timeframe).Scan(
		&s.ID, &s.AccountID, &s.Platform, &s.Timeframe, &s.ActiveOrders, &s.CompletedOrders,
		&s.TotalOrders, &s.TotalSpend, &s.ActiveGrowth, &s.CompletedGrowth, &s.TotalGrowth,
		&s.SpendGrowth, &s.LastCalculatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Upsert writes a snapshot keyed by (account, platform, timeframe). A
// snapshot is an independent record, so this can run concurrently with
// order creation without corrupting anything.
func (r *StatsRepo) Upsert(ctx context.Context, s *models.OrderStats) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO order_stats (id, account_id, platform, timeframe, active_orders, completed_orders,
			total_orders, total_spend, active_growth, completed_growth, total_growth, spend_growth, last_calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (account_id, platform, timeframe) DO UPDATE SET
			active_orders = EXCLUDED.active_orders,
			completed_orders = EXCLUDED.completed_orders,
			total_orders = EXCLUDED.total_orders,
			total_spend = EXCLUDED.total_spend,
			active_growth = EXCLUDED.active_growth,
			completed_growth = EXCLUDED.completed_growth,
			total_growth = EXCLUDED.total_growth,
			spend_growth = EXCLUDED.spend_growth,
			last_calculated_at = EXCLUDED.last_calculated_at
	`, s.ID, s.AccountID, s.Platform, s.Timeframe, s.ActiveOrders, s.CompletedOrders,
		s.TotalOrders, s.TotalSpend, s.ActiveGrowth, s.CompletedGrowth, s.TotalGrowth,
		s.SpendGrowth, s.LastCalculatedAt)
	return err
}

// ListStale returns snapshots older than the cutoff, for the periodic
// refresh job.
func (r *StatsRepo) ListStale(ctx context.Context, cutoff int) ([]*models.OrderStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, platform, timeframe, active_orders, completed_orders, total_orders,
			total_spend, active_growth, completed_growth, total_growth, spend_growth, last_calculated_at
		FROM order_stats
		WHERE last_calculated_at < now() - make_interval(mins => $1)
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.OrderStats
	for rows.Next() {
		var s models.OrderStats
		if err := rows.Scan(&s.ID, &s.AccountID, &s.Platform, &s.Timeframe, &s.ActiveOrders,
			&s.CompletedOrders, &s.TotalOrders, &s.TotalSpend, &s.ActiveGrowth, &s.CompletedGrowth,
			&s.TotalGrowth, &s.SpendGrowth, &s.LastCalculatedAt); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}
