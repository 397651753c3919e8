package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/boostgrid/backend/internal/ledger"
	"github.com/boostgrid/backend/internal/middleware"
	"github.com/boostgrid/backend/internal/models"
	"github.com/boostgrid/backend/internal/orders"
	"github.com/boostgrid/backend/internal/pricing"
	"github.com/boostgrid/backend/internal/stats"
)

// OrderService is the subset of the order coordinator the handler needs.
type OrderService interface {
	Create(ctx context.Context, accountID uuid.UUID, req orders.Request) (*models.Order, error)
	CreateBulk(ctx context.Context, accountID uuid.UUID, reqs []orders.Request) ([]*models.Order, decimal.Decimal, error)
	Repeat(ctx context.Context, accountID, orderID uuid.UUID) (*models.Order, error)
}

// OrderRepoForHandler serves reads that bypass the coordinator.
type OrderRepoForHandler interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.Order, error)
}

// StatsGetter serves the cached order statistics.
type StatsGetter interface {
	Get(ctx context.Context, accountID uuid.UUID, platform string, timeframe models.Timeframe) (*models.OrderStats, error)
}

// OrderHandler serves /api/v1/orders.
type OrderHandler struct {
	Service OrderService
	Repo    OrderRepoForHandler
	Stats   StatsGetter
	Logger  *slog.Logger
}

// Create handles POST /api/v1/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req orders.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	order, err := h.Service.Create(r.Context(), acc.ID, req)
	if err != nil {
		h.orderError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

type bulkRequest struct {
	Orders []orders.Request `json:"orders"`
}

type bulkResponse struct {
	Orders []*models.Order `json:"orders"`
	Total  decimal.Decimal `json:"total"`
}

// CreateBulk handles POST /api/v1/orders/bulk.
func (h *OrderHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Orders) == 0 {
		writeError(w, http.StatusBadRequest, "orders must not be empty")
		return
	}
	created, total, err := h.Service.CreateBulk(r.Context(), acc.ID, req.Orders)
	if err != nil {
		h.orderError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bulkResponse{Orders: created, Total: total})
}

// Repeat handles POST /api/v1/orders/{id}/repeat.
func (h *OrderHandler) Repeat(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	order, err := h.Service.Repeat(r.Context(), acc.ID, orderID)
	if err != nil {
		h.orderError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// Get handles GET /api/v1/orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	order, err := h.Repo.GetByID(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.Logger.Error("get order", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// Foreign orders read as absent.
	if order.AccountID != acc.ID {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// List handles GET /api/v1/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pagination(r)
	list, err := h.Repo.ListByAccountID(r.Context(), acc.ID, limit, offset)
	if err != nil {
		h.Logger.Error("list orders", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetStats handles GET /api/v1/orders/stats?platform=X&timeframe=day.
func (h *OrderHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	platform := r.URL.Query().Get("platform")
	if platform == "" {
		writeError(w, http.StatusBadRequest, "platform is required")
		return
	}
	timeframe := models.Timeframe(r.URL.Query().Get("timeframe"))
	if timeframe == "" {
		timeframe = models.TimeframeDay
	}
	if _, err := timeframe.Window(); err != nil {
		writeError(w, http.StatusBadRequest, "unknown timeframe")
		return
	}
	snapshot, err := h.Stats.Get(r.Context(), acc.ID, platform, timeframe)
	if err != nil {
		h.Logger.Error("order stats", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "no orders on this platform")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *OrderHandler) orderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrUnknownService),
		errors.Is(err, pricing.ErrUnknownSpeed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "insufficient balance")
	default:
		h.Logger.Error("order operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

var _ StatsGetter = (*stats.Service)(nil)
