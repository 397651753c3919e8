package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boostgrid/backend/internal/models"
)

type ExecutionRepo struct {
	pool *pgxpool.Pool
}

func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const executionColumns = `id, task_id, executor_id, status, earnings, proof, started_at, completed_at, cooldown_ends_at`

// Create inserts a pending execution. The partial unique index
// task_executions_one_pending on (executor_id, task_id) WHERE
// status = 'pending' backstops the one-open-execution rule when two
// starts race past the pending check; callers translate the 23505.
func (r *ExecutionRepo) Create(ctx context.Context, e *models.TaskExecution) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO task_executions (id, task_id, executor_id, status, earnings, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING started_at
	`, e.ID, e.TaskID, e.ExecutorID, e.Status, e.Earnings, e.StartedAt).Scan(&e.StartedAt)
}

// GetPending returns the open execution for (executor, task), or nil when
// none exists. At most one can exist per pair.
func (r *ExecutionRepo) GetPending(ctx context.Context, executorID, taskID uuid.UUID) (*models.TaskExecution, error) {
	e, err := scanExecution(r.pool.QueryRow(ctx, `
		SELECT `+executionColumns+` FROM task_executions
		WHERE executor_id = $1 AND task_id = $2 AND status = 'pending'
	`, executorID, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// GetLatestCompleted returns the most recent completed execution for the
// pair, or nil. Drives the cooldown and repeatability checks.
func (r *ExecutionRepo) GetLatestCompleted(ctx context.Context, executorID, taskID uuid.UUID) (*models.TaskExecution, error) {
	e, err := scanExecution(r.pool.QueryRow(ctx, `
		SELECT `+executionColumns+` FROM task_executions
		WHERE executor_id = $1 AND task_id = $2 AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1
	`, executorID, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// CompleteTx marks the execution completed inside the payout transaction,
// freezing earnings and proof and stamping the cooldown window. The update
// is guarded on the pending status so that when two settles race, only the
// first one lands; pgx.ErrNoRows means the row was no longer pending.
func (r *ExecutionRepo) CompleteTx(ctx context.Context, tx pgx.Tx, e *models.TaskExecution) error {
	ct, err := tx.Exec(ctx, `
		UPDATE task_executions SET
			status = $2, earnings = $3, proof = $4, completed_at = $5, cooldown_ends_at = $6
		WHERE id = $1 AND status = 'pending'
	`, e.ID, e.Status, e.Earnings, e.Proof, e.CompletedAt, e.CooldownEndsAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ExecutionRepo) ListByExecutorID(ctx context.Context, executorID uuid.UUID, limit, offset int) ([]*models.TaskExecution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+` FROM task_executions
		WHERE executor_id = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3
	`, executorID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TaskExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func scanExecution(row pgx.Row) (*models.TaskExecution, error) {
	var e models.TaskExecution
	err := row.Scan(&e.ID, &e.TaskID, &e.ExecutorID, &e.Status, &e.Earnings, &e.Proof, &e.StartedAt, &e.CompletedAt, &e.CooldownEndsAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
