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

	"github.com/boostgrid/backend/internal/middleware"
	"github.com/boostgrid/backend/internal/models"
	"github.com/boostgrid/backend/internal/tasks"
)

// TaskService is the subset of the execution service the handler needs.
type TaskService interface {
	Available(ctx context.Context, executorID uuid.UUID, limit, offset int) ([]*models.Task, error)
	History(ctx context.Context, executorID uuid.UUID, limit, offset int) ([]*models.TaskExecution, error)
	Start(ctx context.Context, executorID, taskID uuid.UUID) (*models.TaskExecution, error)
	Complete(ctx context.Context, executorID, taskID uuid.UUID, proof json.RawMessage) (*models.TaskExecution, error)
}

// TaskReader serves single-task reads.
type TaskReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

// TaskHandler serves /api/v1/tasks.
type TaskHandler struct {
	Service TaskService
	Repo    TaskReader
	Logger  *slog.Logger
}

// Available handles GET /api/v1/tasks/available.
func (h *TaskHandler) Available(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pagination(r)
	list, err := h.Service.Available(r.Context(), acc.ID, limit, offset)
	if err != nil {
		h.Logger.Error("list available tasks", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// History handles GET /api/v1/tasks/executions.
func (h *TaskHandler) History(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	limit, offset := pagination(r)
	list, err := h.Service.History(r.Context(), acc.ID, limit, offset)
	if err != nil {
		h.Logger.Error("list executions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Get handles GET /api/v1/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := h.Repo.GetByID(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		h.Logger.Error("get task", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Start handles POST /api/v1/tasks/{id}/start.
func (h *TaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	execution, err := h.Service.Start(r.Context(), acc.ID, taskID)
	if err != nil {
		h.taskError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, execution)
}

type completeTaskRequest struct {
	Proof json.RawMessage `json:"proof"`
}

// Complete handles POST /api/v1/tasks/{id}/complete.
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	taskID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	var req completeTaskRequest
	if r.Body != nil {
		// Proof is optional; an empty body is fine.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	execution, err := h.Service.Complete(r.Context(), acc.ID, taskID, req.Proof)
	if err != nil {
		h.taskError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execution)
}

func (h *TaskHandler) taskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, tasks.ErrSelfExecution):
		writeError(w, http.StatusForbidden, "cannot execute your own task")
	case errors.Is(err, tasks.ErrAlreadyCompleted):
		writeError(w, http.StatusForbidden, "task already completed")
	case errors.Is(err, tasks.ErrInCooldown):
		writeError(w, http.StatusTooManyRequests, "task in cooldown")
	case errors.Is(err, tasks.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid execution state")
	default:
		h.Logger.Error("task operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
