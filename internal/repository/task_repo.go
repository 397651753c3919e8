package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boostgrid/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `id, account_id, order_id, type, platform, target_url, quantity, completed_count, rate, status, created_at, updated_at`

// CreateTx inserts a task inside the coordinator's transaction, paired
// with its order.
func (r *TaskRepo) CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error {
	return tx.QueryRow(ctx, `
		INSERT INTO tasks (id, account_id, order_id, type, platform, target_url, quantity, completed_count, rate, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, t.ID, t.AccountID, t.OrderID, t.Type, t.Platform, t.TargetURL, t.Quantity, t.CompletedCount, t.Rate, t.Status).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks WHERE id = $1
	`, id))
}

// ListAvailable returns tasks still needing units, excluding the given
// account's own tasks. Doers browse this to pick work.
func (r *TaskRepo) ListAvailable(ctx context.Context, excludeAccountID uuid.UUID, limit, offset int) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE account_id != $1 AND status IN ('pending', 'processing') AND completed_count < quantity
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, excludeAccountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// IncrementCompleted bumps the completed-unit counter and flips the task
// to completed once every unit is done. Runs inside the completion
// transaction so the counter and the payout commit together. The counter
// never passes quantity: pgx.ErrNoRows means the ordered volume was
// already delivered and the caller must roll the payout back.
func (r *TaskRepo) IncrementCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	ct, err := tx.Exec(ctx, `
		UPDATE tasks SET
			completed_count = completed_count + 1,
			status = CASE WHEN completed_count + 1 >= quantity THEN 'completed' ELSE 'processing' END,
			updated_at = now()
		WHERE id = $1 AND completed_count < quantity
	`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.AccountID, &t.OrderID, &t.Type, &t.Platform, &t.TargetURL, &t.Quantity, &t.CompletedCount, &t.Rate, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
