package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/boostgrid/backend/internal/models"
)

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, balance, role)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.Name, a.PasswordHash, a.Balance, a.Role).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, balance, role, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, balance, role, created_at, updated_at
		FROM accounts WHERE email = $1
	`, email))
}

// GetByIDForUpdate locks the account row for the duration of tx. Every
// pre-check-then-debit sequence goes through this lock so concurrent
// spends against the same balance serialize.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return r.scanOne(tx.QueryRow(ctx, `
		SELECT id, email, name, password_hash, balance, role, created_at, updated_at
		FROM accounts WHERE id = $1 FOR UPDATE
	`, id))
}

// Debit atomically subtracts amount if the balance covers it. A zero-row
// update means insufficient funds; callers translate that themselves.
func (r *AccountRepo) Debit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (newBalance decimal.Decimal, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance - $1, updated_at = now()
		WHERE id = $2 AND balance >= $1
		RETURNING balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// Credit adds amount to the account and returns the new balance.
func (r *AccountRepo) Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount decimal.Decimal) (newBalance decimal.Decimal, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

func (r *AccountRepo) scanOne(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Balance, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
