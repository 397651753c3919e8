package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/boostgrid/backend/internal/models"
	"github.com/boostgrid/backend/internal/pricing"
)

// ---------------------------------------------------------------------------
// In-memory mocks. The tx handle is a no-op that records whether Commit
// ran, so atomicity can be asserted without a database.
// ---------------------------------------------------------------------------

type trackedTx struct {
	committed  bool
	rolledBack bool
}

func (t *trackedTx) Begin(context.Context) (pgx.Tx, error) { return t, nil }
func (t *trackedTx) Commit(context.Context) error          { t.committed = true; return nil }
func (t *trackedTx) Rollback(context.Context) error        { t.rolledBack = true; return nil }
func (t *trackedTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *trackedTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (t *trackedTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (t *trackedTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *trackedTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (t *trackedTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (t *trackedTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *trackedTx) Conn() *pgx.Conn { return nil }

type mockBeginner struct {
	tx *trackedTx
}

func newMockBeginner() *mockBeginner { return &mockBeginner{tx: &trackedTx{}} }

func (m *mockBeginner) Begin(context.Context) (pgx.Tx, error) { return m.tx, nil }

type mockAccounts struct {
	accounts map[uuid.UUID]*models.Account
}

func (m *mockAccounts) GetByIDForUpdate(_ context.Context, _ pgx.Tx, id uuid.UUID) (*models.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

type mockOrders struct {
	created []*models.Order
}

func (m *mockOrders) CreateTx(_ context.Context, _ pgx.Tx, o *models.Order) error {
	cp := *o
	m.created = append(m.created, &cp)
	return nil
}

func (m *mockOrders) GetByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	for _, o := range m.created {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type mockTasks struct {
	created   []*models.Task
	createErr error
}

func (m *mockTasks) CreateTx(_ context.Context, _ pgx.Tx, t *models.Task) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *t
	m.created = append(m.created, &cp)
	return nil
}

type chargeCall struct {
	accountID uuid.UUID
	orderID   *uuid.UUID
	amount    decimal.Decimal
	details   json.RawMessage
}

type mockCharger struct {
	charges []chargeCall
}

func (m *mockCharger) ChargeOrderTx(_ context.Context, _ pgx.Tx, accountID uuid.UUID, orderID *uuid.UUID, amount decimal.Decimal, details json.RawMessage) (*models.Transaction, error) {
	m.charges = append(m.charges, chargeCall{accountID: accountID, orderID: orderID, amount: amount, details: details})
	return &models.Transaction{ID: uuid.New(), AccountID: accountID, Amount: amount.Neg()}, nil
}

type mockPublisher struct {
	published []*models.Order
}

func (m *mockPublisher) PublishOrderCreated(_ context.Context, o *models.Order) error {
	m.published = append(m.published, o)
	return nil
}

// --- fixture ---

type fixture struct {
	svc       *Service
	beginner  *mockBeginner
	accounts  *mockAccounts
	orders    *mockOrders
	tasks     *mockTasks
	charger   *mockCharger
	publisher *mockPublisher
	enqueued  []string
}

func newFixture(balance string, accountID uuid.UUID) *fixture {
	f := &fixture{
		beginner:  newMockBeginner(),
		accounts:  &mockAccounts{accounts: map[uuid.UUID]*models.Account{accountID: {ID: accountID, Balance: dec(balance)}}},
		orders:    &mockOrders{},
		tasks:     &mockTasks{},
		charger:   &mockCharger{},
		publisher: &mockPublisher{},
	}
	enqueue := func(_ context.Context, _ pgx.Tx, _ uuid.UUID, platform string) error {
		f.enqueued = append(f.enqueued, platform)
		return nil
	}
	f.svc = NewService(f.beginner, f.accounts, f.orders, f.tasks, f.charger,
		pricing.NewSchedule(0.60, 0.75), enqueue, f.publisher, slog.Default())
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ---------------------------------------------------------------------------
// 1. Single order
// ---------------------------------------------------------------------------

func TestCreate_SingleOrder(t *testing.T) {
	user := uuid.New()
	f := newFixture("1000", user)

	order, err := f.svc.Create(context.Background(), user, Request{
		Platform:  "instagram",
		Service:   models.ServiceLikes,
		TargetURL: "https://instagram.com/p/abc",
		Quantity:  1000,
		Speed:     models.SpeedNormal,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !order.Amount.Equal(dec("500")) {
		t.Errorf("amount: got %s, want 500", order.Amount)
	}
	if order.Status != models.OrderStatusPending {
		t.Errorf("status: got %s, want pending", order.Status)
	}
	if order.RemainingQuantity != 1000 {
		t.Errorf("remaining: got %d, want 1000", order.RemainingQuantity)
	}

	if len(f.tasks.created) != 1 {
		t.Fatalf("tasks created: got %d, want 1", len(f.tasks.created))
	}
	task := f.tasks.created[0]
	if task.OrderID != order.ID {
		t.Error("task must reference its order")
	}
	if task.Type != models.TaskLike {
		t.Errorf("task type: got %s, want like", task.Type)
	}
	if !task.Rate.Equal(dec("0.3")) {
		t.Errorf("task rate: got %s, want 0.3", task.Rate)
	}

	if len(f.charger.charges) != 1 {
		t.Fatalf("charges: got %d, want 1", len(f.charger.charges))
	}
	charge := f.charger.charges[0]
	if !charge.amount.Equal(dec("500")) {
		t.Errorf("charge amount: got %s, want 500", charge.amount)
	}
	if charge.orderID == nil || *charge.orderID != order.ID {
		t.Error("single order payment must reference the order")
	}

	if !f.beginner.tx.committed {
		t.Error("transaction must commit")
	}
	if len(f.enqueued) != 1 || f.enqueued[0] != "instagram" {
		t.Errorf("stats enqueue: got %v, want [instagram]", f.enqueued)
	}
	if len(f.publisher.published) != 1 {
		t.Errorf("published events: got %d, want 1", len(f.publisher.published))
	}
}

func TestCreate_InsufficientBalance(t *testing.T) {
	user := uuid.New()
	f := newFixture("499.99", user)

	_, err := f.svc.Create(context.Background(), user, Request{
		Platform: "instagram", Service: models.ServiceLikes,
		TargetURL: "https://instagram.com/p/abc", Quantity: 1000, Speed: models.SpeedNormal,
	})
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got: %v", err)
	}
	if len(f.orders.created) != 0 || len(f.charger.charges) != 0 {
		t.Error("nothing may be persisted on a declined order")
	}
	if f.beginner.tx.committed {
		t.Error("transaction must not commit")
	}
}

func TestCreate_Validation(t *testing.T) {
	user := uuid.New()
	f := newFixture("1000", user)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, user, Request{
		Platform: "instagram", Service: models.ServiceLikes, Quantity: 0, Speed: models.SpeedNormal,
	}); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero quantity: expected ErrInvalidQuantity, got: %v", err)
	}
	if _, err := f.svc.Create(ctx, user, Request{
		Platform: "instagram", Service: "retweets", Quantity: 10, Speed: models.SpeedNormal,
	}); !errors.Is(err, pricing.ErrUnknownService) {
		t.Errorf("unknown service: expected ErrUnknownService, got: %v", err)
	}
	if len(f.orders.created) != 0 {
		t.Error("validation failures must not create orders")
	}
}

// ---------------------------------------------------------------------------
// 2. Bulk
// ---------------------------------------------------------------------------

func TestCreateBulk_AtomicBatch(t *testing.T) {
	user := uuid.New()
	f := newFixture("800", user)

	reqs := []Request{
		{Platform: "instagram", Service: models.ServiceLikes, TargetURL: "https://instagram.com/p/a", Quantity: 1000, Speed: models.SpeedNormal},     // 500
		{Platform: "instagram", Service: models.ServiceFollowers, TargetURL: "https://instagram.com/u/b", Quantity: 100, Speed: models.SpeedNormal},  // 100
		{Platform: "youtube", Service: models.ServiceViews, TargetURL: "https://youtube.com/watch?v=c", Quantity: 1000, Speed: models.SpeedNormal},   // 200
	}
	created, total, err := f.svc.CreateBulk(context.Background(), user, reqs)
	if err != nil {
		t.Fatalf("CreateBulk: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("orders: got %d, want 3", len(created))
	}
	if !total.Equal(dec("800")) {
		t.Errorf("total: got %s, want 800", total)
	}

	if len(f.charger.charges) != 1 {
		t.Fatalf("bulk must record exactly one payment, got %d", len(f.charger.charges))
	}
	charge := f.charger.charges[0]
	if charge.orderID != nil {
		t.Error("batch payment must not reference a single order")
	}
	var details map[string]any
	if err := json.Unmarshal(charge.details, &details); err != nil {
		t.Fatalf("details: %v", err)
	}
	if details["order_count"] != float64(3) {
		t.Errorf("order_count: got %v, want 3", details["order_count"])
	}

	// Two distinct platforms, one recompute each.
	if len(f.enqueued) != 2 {
		t.Errorf("stats enqueues: got %v, want one per distinct platform", f.enqueued)
	}
	if len(f.publisher.published) != 3 {
		t.Errorf("published events: got %d, want 3", len(f.publisher.published))
	}
}

func TestCreateBulk_RejectsWhenTotalExceedsBalance(t *testing.T) {
	user := uuid.New()
	// Covers either line alone, but not both.
	f := newFixture("600", user)

	reqs := []Request{
		{Platform: "instagram", Service: models.ServiceLikes, TargetURL: "https://instagram.com/p/a", Quantity: 1000, Speed: models.SpeedNormal}, // 500
		{Platform: "instagram", Service: models.ServiceViews, TargetURL: "https://instagram.com/p/b", Quantity: 1000, Speed: models.SpeedNormal}, // 200
	}
	if _, _, err := f.svc.CreateBulk(context.Background(), user, reqs); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got: %v", err)
	}
	if len(f.orders.created) != 0 || len(f.tasks.created) != 0 {
		t.Error("a declined batch must not create any line")
	}
}

func TestCreateBulk_Empty(t *testing.T) {
	f := newFixture("100", uuid.New())
	if _, _, err := f.svc.CreateBulk(context.Background(), uuid.New(), nil); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// 3. Repeat
// ---------------------------------------------------------------------------

func TestRepeat(t *testing.T) {
	user := uuid.New()
	f := newFixture("2000", user)
	ctx := context.Background()

	original, err := f.svc.Create(ctx, user, Request{
		Platform: "tiktok", Service: models.ServiceViews,
		TargetURL: "https://tiktok.com/@x/video/1", Quantity: 1000, Speed: models.SpeedFast,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	repeated, err := f.svc.Repeat(ctx, user, original.ID)
	if err != nil {
		t.Fatalf("Repeat: %v", err)
	}
	if repeated.ID == original.ID {
		t.Error("repeat must create a new order")
	}
	if repeated.TargetURL != original.TargetURL || repeated.Quantity != original.Quantity || repeated.Speed != original.Speed {
		t.Error("repeat must copy the original request")
	}

	charge := f.charger.charges[len(f.charger.charges)-1]
	var details map[string]any
	if err := json.Unmarshal(charge.details, &details); err != nil {
		t.Fatalf("details: %v", err)
	}
	if details["repeat_of"] != original.ID.String() {
		t.Errorf("repeat_of: got %v, want %s", details["repeat_of"], original.ID)
	}
}

func TestRepeat_ForeignOrder(t *testing.T) {
	owner := uuid.New()
	f := newFixture("2000", owner)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, owner, Request{
		Platform: "tiktok", Service: models.ServiceViews,
		TargetURL: "https://tiktok.com/@x/video/1", Quantity: 100, Speed: models.SpeedNormal,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.Repeat(ctx, uuid.New(), order.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign order: expected ErrNotFound, got: %v", err)
	}
}

func TestRepeat_UnknownOrder(t *testing.T) {
	f := newFixture("2000", uuid.New())
	if _, err := f.svc.Repeat(context.Background(), uuid.New(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

// ---------------------------------------------------------------------------
// 4. Atomicity
// ---------------------------------------------------------------------------

func TestCreate_NoCommitOnTaskFailure(t *testing.T) {
	user := uuid.New()
	f := newFixture("1000", user)
	f.tasks.createErr = errors.New("insert failed")

	_, err := f.svc.Create(context.Background(), user, Request{
		Platform: "instagram", Service: models.ServiceLikes,
		TargetURL: "https://instagram.com/p/abc", Quantity: 1000, Speed: models.SpeedNormal,
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if f.beginner.tx.committed {
		t.Error("transaction must not commit after a failed task insert")
	}
	if !f.beginner.tx.rolledBack {
		t.Error("transaction must roll back")
	}
	if len(f.publisher.published) != 0 {
		t.Error("no events may be published for an aborted batch")
	}
}
