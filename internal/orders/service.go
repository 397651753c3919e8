package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/boostgrid/backend/internal/ledger"
	"github.com/boostgrid/backend/internal/metrics"
	"github.com/boostgrid/backend/internal/models"
	"github.com/boostgrid/backend/internal/pricing"
)

// ErrNotFound is returned when the referenced order does not exist or
// belongs to another account.
var ErrNotFound = errors.New("order not found")

// ErrInvalidQuantity is returned for a non-positive order quantity.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// ErrInsufficientBalance is returned when the account balance does not
// cover the batch total.
var ErrInsufficientBalance = ledger.ErrInsufficientBalance

// Request describes one order line.
type Request struct {
	Platform  string             `json:"platform"`
	Service   models.ServiceType `json:"service"`
	TargetURL string             `json:"target_url"`
	Quantity  int                `json:"quantity"`
	Speed     models.SpeedTier   `json:"speed"`
}

// TxBeginner abstracts transaction creation so tests don't need a
// pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// AccountRepo locks the payer's row for the balance pre-check.
type AccountRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
}

// OrderRepo is the order persistence the coordinator needs.
type OrderRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, o *models.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// TaskRepo spawns the fulfillment task paired with each order.
type TaskRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Task) error
}

// Charger is the ledger operation that debits the payer and records the
// order_payment transaction inside the coordinator's transaction.
type Charger interface {
	ChargeOrderTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, orderID *uuid.UUID, amount decimal.Decimal, details json.RawMessage) (*models.Transaction, error)
}

// EnqueueStatsFunc schedules a statistics recompute for (account,
// platform) within the given transaction. Provided by main as a closure
// over river.Client.InsertTx.
type EnqueueStatsFunc func(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, platform string) error

// Publisher emits domain events after commit. May be nil.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, o *models.Order) error
}

// Service is the order transaction coordinator: it prices a batch,
// pre-checks funds, creates orders with their paired tasks, records the
// payment, and debits the balance — all inside one transaction.
type Service struct {
	db           TxBeginner
	accounts     AccountRepo
	orders       OrderRepo
	tasks        TaskRepo
	ledger       Charger
	schedule     *pricing.Schedule
	enqueueStats EnqueueStatsFunc
	publisher    Publisher
	logger       *slog.Logger
}

func NewService(db TxBeginner, accounts AccountRepo, orders OrderRepo, tasks TaskRepo, charger Charger, schedule *pricing.Schedule, enqueueStats EnqueueStatsFunc, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		db:           db,
		accounts:     accounts,
		orders:       orders,
		tasks:        tasks,
		ledger:       charger,
		schedule:     schedule,
		enqueueStats: enqueueStats,
		publisher:    publisher,
		logger:       logger,
	}
}

// pricedLine is one validated, priced order line ready for creation.
type pricedLine struct {
	req      Request
	cost     decimal.Decimal
	rate     decimal.Decimal
	taskType models.TaskType
}

// Create places a single order.
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, req Request) (*models.Order, error) {
	created, _, err := s.createBatch(ctx, accountID, []Request{req}, nil)
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// CreateBulk places every line as one atomic batch: the total is checked
// against the balance once, before any mutation, and a single batch-level
// payment transaction is recorded.
func (s *Service) CreateBulk(ctx context.Context, accountID uuid.UUID, reqs []Request) ([]*models.Order, decimal.Decimal, error) {
	if len(reqs) == 0 {
		return nil, decimal.Zero, ErrInvalidQuantity
	}
	return s.createBatch(ctx, accountID, reqs, nil)
}

// Repeat re-places an existing order owned by the account, re-pricing it
// at current rates. The payment transaction is tagged with the source
// order so support can trace reorders.
func (s *Service) Repeat(ctx context.Context, accountID uuid.UUID, orderID uuid.UUID) (*models.Order, error) {
	original, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if original.AccountID != accountID {
		return nil, ErrNotFound
	}

	req := Request{
		Platform:  original.Platform,
		Service:   original.Service,
		TargetURL: original.TargetURL,
		Quantity:  original.Quantity,
		Speed:     original.Speed,
	}
	created, _, err := s.createBatch(ctx, accountID, []Request{req}, &original.ID)
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

func (s *Service) createBatch(ctx context.Context, accountID uuid.UUID, reqs []Request, repeatOf *uuid.UUID) ([]*models.Order, decimal.Decimal, error) {
	// Price and validate every line before touching the store.
	lines := make([]pricedLine, 0, len(reqs))
	total := decimal.Zero
	for _, req := range reqs {
		if req.Quantity <= 0 {
			return nil, decimal.Zero, ErrInvalidQuantity
		}
		cost, err := s.schedule.OrderCost(req.Service, req.Quantity, req.Speed)
		if err != nil {
			return nil, decimal.Zero, err
		}
		rate, err := s.schedule.TaskRate(req.Service, req.Quantity)
		if err != nil {
			return nil, decimal.Zero, err
		}
		taskType, err := models.TaskTypeForService(req.Service)
		if err != nil {
			return nil, decimal.Zero, err
		}
		lines = append(lines, pricedLine{req: req, cost: cost, rate: rate, taskType: taskType})
		total = total.Add(cost)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, decimal.Zero, err
	}
	defer tx.Rollback(ctx)

	// The row lock plus the in-transaction balance check serialize
	// concurrent batches against the same account: two orders that each
	// fit the balance alone cannot both pass.
	account, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, decimal.Zero, ledger.ErrNotFound
		}
		return nil, decimal.Zero, err
	}
	if account.Balance.LessThan(total) {
		metrics.InsufficientBalanceTotal.Inc()
		return nil, decimal.Zero, ErrInsufficientBalance
	}

	created := make([]*models.Order, 0, len(lines))
	platforms := make(map[string]struct{})
	for _, line := range lines {
		order := &models.Order{
			ID:                uuid.New(),
			AccountID:         accountID,
			Platform:          line.req.Platform,
			Service:           line.req.Service,
			TargetURL:         line.req.TargetURL,
			Quantity:          line.req.Quantity,
			RemainingQuantity: line.req.Quantity,
			Status:            models.OrderStatusPending,
			Speed:             line.req.Speed,
			Amount:            line.cost,
		}
		if err := s.orders.CreateTx(ctx, tx, order); err != nil {
			return nil, decimal.Zero, fmt.Errorf("create order: %w", err)
		}
		task := &models.Task{
			ID:        uuid.New(),
			AccountID: accountID,
			OrderID:   order.ID,
			Type:      line.taskType,
			Platform:  line.req.Platform,
			TargetURL: line.req.TargetURL,
			Quantity:  line.req.Quantity,
			Rate:      line.rate,
			Status:    models.TaskStatusPending,
		}
		if err := s.tasks.CreateTx(ctx, tx, task); err != nil {
			return nil, decimal.Zero, fmt.Errorf("create task: %w", err)
		}
		created = append(created, order)
		platforms[line.req.Platform] = struct{}{}
	}

	details, orderRef := s.paymentDetails(created, repeatOf)
	if _, err := s.ledger.ChargeOrderTx(ctx, tx, accountID, orderRef, total, details); err != nil {
		return nil, decimal.Zero, err
	}

	if s.enqueueStats != nil {
		for platform := range platforms {
			if err := s.enqueueStats(ctx, tx, accountID, platform); err != nil {
				return nil, decimal.Zero, fmt.Errorf("enqueue stats recompute: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, decimal.Zero, err
	}

	for _, order := range created {
		metrics.OrdersCreatedTotal.WithLabelValues(order.Platform).Inc()
		if s.publisher != nil {
			if err := s.publisher.PublishOrderCreated(ctx, order); err != nil {
				s.logger.Warn("publish order.created failed", "order_id", order.ID, "error", err)
			}
		}
	}
	return created, total, nil
}

// paymentDetails builds the order_payment detail payload. A single order
// links the transaction to it directly; a bulk batch records the line
// count, and a repeat records its source order.
func (s *Service) paymentDetails(created []*models.Order, repeatOf *uuid.UUID) (json.RawMessage, *uuid.UUID) {
	payload := map[string]any{}
	var orderRef *uuid.UUID
	if len(created) == 1 {
		orderRef = &created[0].ID
	} else {
		payload["order_count"] = len(created)
		ids := make([]string, len(created))
		for i, o := range created {
			ids[i] = o.ID.String()
		}
		payload["order_ids"] = ids
	}
	if repeatOf != nil {
		payload["repeat_of"] = repeatOf.String()
	}
	if len(payload) == 0 {
		return nil, orderRef
	}
	details, _ := json.Marshal(payload)
	return details, orderRef
}
