package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/boostgrid/backend/internal/metrics"
	"github.com/boostgrid/backend/internal/models"
)

// ErrNotFound is returned when the task does not exist, or when a
// completion finds no pending execution to settle.
var ErrNotFound = errors.New("task not found")

// ErrSelfExecution is returned when an account tries to work its own task.
var ErrSelfExecution = errors.New("cannot execute your own task")

// ErrAlreadyCompleted is returned when the task is exhausted, or when a
// non-repeatable task was already done by this executor.
var ErrAlreadyCompleted = errors.New("task already completed")

// ErrInCooldown is returned when the executor's cooldown for this task
// has not elapsed yet.
var ErrInCooldown = errors.New("task in cooldown")

// ErrInvalidState is returned when the executor already has an open
// execution for the task.
var ErrInvalidState = errors.New("invalid execution state")

type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type TaskRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListAvailable(ctx context.Context, excludeAccountID uuid.UUID, limit, offset int) ([]*models.Task, error)
	IncrementCompleted(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

type ExecutionRepo interface {
	Create(ctx context.Context, e *models.TaskExecution) error
	GetPending(ctx context.Context, executorID, taskID uuid.UUID) (*models.TaskExecution, error)
	GetLatestCompleted(ctx context.Context, executorID, taskID uuid.UUID) (*models.TaskExecution, error)
	CompleteTx(ctx context.Context, tx pgx.Tx, e *models.TaskExecution) error
	ListByExecutorID(ctx context.Context, executorID uuid.UUID, limit, offset int) ([]*models.TaskExecution, error)
}

// Crediter pays the executor inside the completion transaction.
type Crediter interface {
	CreditEarningsTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, details json.RawMessage) (*models.Transaction, error)
}

// Publisher emits task.completed events after commit. May be nil.
type Publisher interface {
	PublishTaskCompleted(ctx context.Context, e *models.TaskExecution, t *models.Task) error
}

// Service drives the execution lifecycle: start guards (ownership,
// repeatability, cooldown), and completion, which pays the frozen rate
// and advances the task counter atomically.
type Service struct {
	db         TxBeginner
	tasks      TaskRepo
	executions ExecutionRepo
	ledger     Crediter
	publisher  Publisher
	cooldown   time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(db TxBeginner, tasks TaskRepo, executions ExecutionRepo, crediter Crediter, publisher Publisher, cooldown time.Duration, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		tasks:      tasks,
		executions: executions,
		ledger:     crediter,
		publisher:  publisher,
		cooldown:   cooldown,
		logger:     logger,
		now:        time.Now,
	}
}

// Available lists tasks the executor can pick up, excluding their own.
func (s *Service) Available(ctx context.Context, executorID uuid.UUID, limit, offset int) ([]*models.Task, error) {
	return s.tasks.ListAvailable(ctx, executorID, limit, offset)
}

// History lists the executor's past and in-flight executions.
func (s *Service) History(ctx context.Context, executorID uuid.UUID, limit, offset int) ([]*models.TaskExecution, error) {
	return s.executions.ListByExecutorID(ctx, executorID, limit, offset)
}

// Start opens a pending execution for the executor after checking every
// eligibility rule. The payout rate is NOT frozen here; it is read from
// the task at completion time.
func (s *Service) Start(ctx context.Context, executorID, taskID uuid.UUID) (*models.TaskExecution, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if task.AccountID == executorID {
		return nil, ErrSelfExecution
	}
	if task.Status == models.TaskStatusCompleted || task.CompletedCount >= task.Quantity {
		return nil, ErrAlreadyCompleted
	}

	pending, err := s.executions.GetPending(ctx, executorID, taskID)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		// One in-flight execution per (executor, task).
		return nil, ErrInvalidState
	}

	last, err := s.executions.GetLatestCompleted(ctx, executorID, taskID)
	if err != nil {
		return nil, err
	}
	if last != nil {
		if !task.Type.Repeatable() {
			return nil, ErrAlreadyCompleted
		}
		if last.CooldownEndsAt != nil && s.now().Before(*last.CooldownEndsAt) {
			return nil, ErrInCooldown
		}
	}

	execution := &models.TaskExecution{
		ID:         uuid.New(),
		TaskID:     taskID,
		ExecutorID: executorID,
		Status:     models.ExecutionPending,
		StartedAt:  s.now(),
	}
	if err := s.executions.Create(ctx, execution); err != nil {
		// Two starts can race past the pending check; the partial unique
		// index turns the loser's insert into a conflict.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrInvalidState
		}
		return nil, err
	}
	return execution, nil
}

// Complete settles a pending execution: the earnings are frozen at the
// task's current rate, the executor is credited, and the task counter
// advances, all in one transaction.
func (s *Service) Complete(ctx context.Context, executorID, taskID uuid.UUID, proof json.RawMessage) (*models.TaskExecution, error) {
	execution, err := s.executions.GetPending(ctx, executorID, taskID)
	if err != nil {
		return nil, err
	}
	if execution == nil {
		return nil, ErrNotFound
	}

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := s.now()
	cooldownEnd := now.Add(s.cooldown)
	execution.Status = models.ExecutionCompleted
	execution.Earnings = task.Rate
	execution.Proof = proof
	execution.CompletedAt = &now
	execution.CooldownEndsAt = &cooldownEnd

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := s.executions.CompleteTx(ctx, tx, execution); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A concurrent request settled this execution first. The
			// pending read above happens outside the transaction, so the
			// status guard in the update is what keeps the payout single.
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("complete execution: %w", err)
	}
	details, _ := json.Marshal(map[string]string{
		"task_id":      taskID.String(),
		"execution_id": execution.ID.String(),
	})
	if _, err := s.ledger.CreditEarningsTx(ctx, tx, executorID, task.Rate, details); err != nil {
		return nil, err
	}
	if err := s.tasks.IncrementCompleted(ctx, tx, taskID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Concurrent completions took the last ordered unit; rolling
			// back undoes the credit so nothing pays beyond the order.
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("advance task counter: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	metrics.TasksCompletedTotal.WithLabelValues(string(task.Type)).Inc()
	if s.publisher != nil {
		if err := s.publisher.PublishTaskCompleted(ctx, execution, task); err != nil {
			s.logger.Warn("publish task.completed failed", "execution_id", execution.ID, "error", err)
		}
	}
	return execution, nil
}
