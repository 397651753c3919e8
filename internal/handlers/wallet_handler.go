package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/boostgrid/backend/internal/ledger"
	"github.com/boostgrid/backend/internal/metrics"
	"github.com/boostgrid/backend/internal/middleware"
	"github.com/boostgrid/backend/internal/models"
)

// LedgerService is the subset of the balance ledger the handler needs.
type LedgerService interface {
	Deposit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, method string, details json.RawMessage) (*models.Transaction, error)
	Withdraw(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, method string, details json.RawMessage) (*models.Transaction, error)
	ApproveWithdrawal(ctx context.Context, txID uuid.UUID) (*models.Transaction, error)
	RejectWithdrawal(ctx context.Context, txID uuid.UUID) (*models.Transaction, error)
}

// TransactionLister serves the account's transaction history.
type TransactionLister interface {
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Transaction, error)
}

// BalanceReader re-reads the account for a fresh balance.
type BalanceReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// WithdrawalPublisher emits withdrawal.requested events. May be nil.
type WithdrawalPublisher interface {
	PublishWithdrawalRequested(ctx context.Context, txn *models.Transaction) error
}

// WalletHandler serves /api/v1/wallet.
type WalletHandler struct {
	Ledger       LedgerService
	Transactions TransactionLister
	Accounts     BalanceReader
	Publisher    WithdrawalPublisher
	Logger       *slog.Logger
}

type moveFundsRequest struct {
	Amount  decimal.Decimal `json:"amount"`
	Method  string          `json:"method"`
	Details json.RawMessage `json:"details"`
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

// Balance handles GET /api/v1/wallet.
func (h *WalletHandler) Balance(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	fresh, err := h.Accounts.GetByID(r.Context(), acc.ID)
	if err != nil {
		h.Logger.Error("read balance", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: fresh.Balance})
}

// Deposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req moveFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Method == "" {
		req.Method = models.MethodBalance
	}
	txn, err := h.Ledger.Deposit(r.Context(), acc.ID, req.Amount, req.Method, req.Details)
	if err != nil {
		h.ledgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// Withdraw handles POST /api/v1/wallet/withdraw. The amount leaves the
// balance immediately; the transaction stays pending until an admin
// resolves it.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req moveFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, "method is required")
		return
	}
	txn, err := h.Ledger.Withdraw(r.Context(), acc.ID, req.Amount, req.Method, req.Details)
	if err != nil {
		h.ledgerError(w, err)
		return
	}
	metrics.WithdrawalsTotal.WithLabelValues("requested").Inc()
	if h.Publisher != nil {
		if err := h.Publisher.PublishWithdrawalRequested(r.Context(), txn); err != nil {
			h.Logger.Warn("publish withdrawal.requested failed", "txn_id", txn.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, txn)
}

// ListTransactions handles GET /api/v1/wallet/transactions.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pagination(r)
	list, err := h.Transactions.ListByAccountID(r.Context(), acc.ID, limit, offset)
	if err != nil {
		h.Logger.Error("list transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ApproveWithdrawal handles POST /api/v1/wallet/withdrawals/{id}/approve.
// Admin only; routed behind RequireAdmin.
func (h *WalletHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.resolveWithdrawal(w, r, h.Ledger.ApproveWithdrawal, "approved")
}

// RejectWithdrawal handles POST /api/v1/wallet/withdrawals/{id}/reject.
func (h *WalletHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.resolveWithdrawal(w, r, h.Ledger.RejectWithdrawal, "rejected")
}

func (h *WalletHandler) resolveWithdrawal(w http.ResponseWriter, r *http.Request, resolve func(context.Context, uuid.UUID) (*models.Transaction, error), outcome string) {
	txID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid transaction id")
		return
	}
	txn, err := resolve(r.Context(), txID)
	if err != nil {
		h.ledgerError(w, err)
		return
	}
	metrics.WithdrawalsTotal.WithLabelValues(outcome).Inc()
	writeJSON(w, http.StatusOK, txn)
}

func (h *WalletHandler) ledgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "amount must be positive")
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "insufficient balance")
	case errors.Is(err, ledger.ErrInvalidState):
		writeError(w, http.StatusConflict, "transaction is not pending")
	default:
		h.Logger.Error("ledger operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
