package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/boostgrid/backend/internal/models"
)

type OrderRepo struct {
	pool *pgxpool.Pool
}

func NewOrderRepo(pool *pgxpool.Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

const orderColumns = `id, account_id, platform, service, target_url, quantity, remaining_quantity, status, speed, amount, created_at, updated_at`

// CreateTx inserts an order inside the coordinator's transaction.
func (r *OrderRepo) CreateTx(ctx context.Context, tx pgx.Tx, o *models.Order) error {
	return tx.QueryRow(ctx, `
		INSERT INTO orders (id, account_id, platform, service, target_url, quantity, remaining_quantity, status, speed, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, o.ID, o.AccountID, o.Platform, o.Service, o.TargetURL, o.Quantity, o.RemainingQuantity, o.Status, o.Speed, o.Amount).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE id = $1
	`, id))
}

func (r *OrderRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// PeriodCounts holds the order aggregates for one statistics window.
type PeriodCounts struct {
	Active    int
	Completed int
	Total     int
	Spend     decimal.Decimal
}

// CountPeriod aggregates an account's orders for one platform in
// [from, to). Used by the statistics aggregator for the current and the
// preceding window.
func (r *OrderRepo) CountPeriod(ctx context.Context, accountID uuid.UUID, platform string, from, to time.Time) (PeriodCounts, error) {
	var c PeriodCounts
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*),
			COALESCE(SUM(amount), 0)
		FROM orders
		WHERE account_id = $1 AND platform = $2 AND created_at >= $3 AND created_at < $4
	`, accountID, platform, from, to).Scan(&c.Active, &c.Completed, &c.Total, &c.Spend)
	return c, err
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var o models.Order
	err := row.Scan(&o.ID, &o.AccountID, &o.Platform, &o.Service, &o.TargetURL, &o.Quantity, &o.RemainingQuantity, &o.Status, &o.Speed, &o.Amount, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
