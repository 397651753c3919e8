package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/boostgrid/backend/internal/models"
)

// ErrNotFound is returned when the referenced account or transaction does
// not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidAmount is returned for a non-positive monetary amount.
var ErrInvalidAmount = errors.New("amount must be positive")

// ErrInsufficientBalance is returned when a debit exceeds the available
// balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrInvalidState is returned when resolving a transaction that is not in
// a resolvable state.
var ErrInvalidState = errors.New("invalid transaction state")

// AccountRepo is the minimal account interface the ledger needs.
type AccountRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	Debit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}

// TransactionRepo is the minimal transaction-record interface.
type TransactionRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// TxBeginner abstracts transaction creation so tests don't need a
// pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service moves money. Every operation pairs the balance mutation with an
// immutable transaction record inside one database transaction: both
// commit or neither does.
type Service struct {
	db           TxBeginner
	accounts     AccountRepo
	transactions TransactionRepo
	now          func() time.Time
}

func NewService(db TxBeginner, accounts AccountRepo, transactions TransactionRepo) *Service {
	return &Service{db: db, accounts: accounts, transactions: transactions, now: time.Now}
}

// Deposit credits the account when method is the internal balance method;
// external methods are recorded pending and settle via a gateway callback
// that is out of this service's hands.
func (s *Service) Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, method string, details json.RawMessage) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID); err != nil {
		return nil, asNotFound(err)
	}

	txn := &models.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    amount,
		Kind:      models.TxnDeposit,
		Status:    models.TxnPending,
		Method:    method,
		Details:   details,
	}
	if method == models.MethodBalance {
		if _, err := s.accounts.Credit(ctx, tx, accountID, amount); err != nil {
			return nil, err
		}
		now := s.now()
		txn.Status = models.TxnCompleted
		txn.CompletedAt = &now
	}
	if err := s.transactions.CreateTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, tx.Commit(ctx)
}

// Withdraw reserves the amount immediately: the balance is debited at
// request time and the transaction stays pending until an admin resolves
// it. Rejection returns the reservation.
func (s *Service) Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, method string, details json.RawMessage) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := s.accounts.GetByIDForUpdate(ctx, tx, accountID); err != nil {
		return nil, asNotFound(err)
	}
	if _, err := s.accounts.Debit(ctx, tx, accountID, amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}

	txn := &models.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		Amount:    amount.Neg(),
		Kind:      models.TxnWithdrawal,
		Status:    models.TxnPending,
		Method:    method,
		Details:   details,
	}
	if err := s.transactions.CreateTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, tx.Commit(ctx)
}

// ApproveWithdrawal completes a pending withdrawal. The balance was
// already debited at request time, so only the status moves.
func (s *Service) ApproveWithdrawal(ctx context.Context, txID uuid.UUID) (*models.Transaction, error) {
	return s.resolveWithdrawal(ctx, txID, models.TxnCompleted)
}

// RejectWithdrawal returns the reserved amount to the account and marks
// the transaction rejected.
func (s *Service) RejectWithdrawal(ctx context.Context, txID uuid.UUID) (*models.Transaction, error) {
	return s.resolveWithdrawal(ctx, txID, models.TxnRejected)
}

func (s *Service) resolveWithdrawal(ctx context.Context, txID uuid.UUID, status string) (*models.Transaction, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	txn, err := s.transactions.GetByIDForUpdate(ctx, tx, txID)
	if err != nil {
		return nil, asNotFound(err)
	}
	if txn.Kind != models.TxnWithdrawal || txn.Status != models.TxnPending {
		return nil, ErrInvalidState
	}

	if status == models.TxnRejected {
		// The stored amount is negative; credit back its magnitude.
		if _, err := s.accounts.Credit(ctx, tx, txn.AccountID, txn.Amount.Neg()); err != nil {
			return nil, err
		}
	}
	if err := s.transactions.UpdateStatus(ctx, tx, txn.ID, status); err != nil {
		return nil, err
	}

	now := s.now()
	txn.Status = status
	txn.CompletedAt = &now
	return txn, tx.Commit(ctx)
}

// ChargeOrderTx debits the order total and records the order_payment
// transaction inside the caller's transaction. The coordinator owns the
// commit; a failure anywhere rolls back the whole order.
func (s *Service) ChargeOrderTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, orderID *uuid.UUID, amount decimal.Decimal, details json.RawMessage) (*models.Transaction, error) {
	if _, err := s.accounts.Debit(ctx, tx, accountID, amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientBalance
		}
		return nil, err
	}
	now := s.now()
	txn := &models.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      amount.Neg(),
		Kind:        models.TxnOrderPayment,
		Status:      models.TxnCompleted,
		Method:      models.MethodBalance,
		OrderID:     orderID,
		Details:     details,
		CompletedAt: &now,
	}
	if err := s.transactions.CreateTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// CreditEarningsTx pays a task doer inside the caller's transaction.
func (s *Service) CreditEarningsTx(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, amount decimal.Decimal, details json.RawMessage) (*models.Transaction, error) {
	if _, err := s.accounts.Credit(ctx, tx, accountID, amount); err != nil {
		return nil, err
	}
	now := s.now()
	txn := &models.Transaction{
		ID:          uuid.New(),
		AccountID:   accountID,
		Amount:      amount,
		Kind:        models.TxnTaskPayment,
		Status:      models.TxnCompleted,
		Method:      models.MethodBalance,
		Details:     details,
		CompletedAt: &now,
	}
	if err := s.transactions.CreateTx(ctx, tx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func asNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
