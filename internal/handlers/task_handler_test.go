package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/boostgrid/backend/internal/middleware"
	"github.com/boostgrid/backend/internal/models"
	"github.com/boostgrid/backend/internal/tasks"
)

type stubTaskService struct {
	startErr    error
	completeErr error
	execution   *models.TaskExecution
}

func (s *stubTaskService) Available(context.Context, uuid.UUID, int, int) ([]*models.Task, error) {
	return nil, nil
}

func (s *stubTaskService) History(context.Context, uuid.UUID, int, int) ([]*models.TaskExecution, error) {
	return nil, nil
}

func (s *stubTaskService) Start(context.Context, uuid.UUID, uuid.UUID) (*models.TaskExecution, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	return s.execution, nil
}

func (s *stubTaskService) Complete(context.Context, uuid.UUID, uuid.UUID, json.RawMessage) (*models.TaskExecution, error) {
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	return s.execution, nil
}

type stubTaskReader struct {
	task *models.Task
}

func (s *stubTaskReader) GetByID(context.Context, uuid.UUID) (*models.Task, error) {
	if s.task == nil {
		return nil, pgx.ErrNoRows
	}
	return s.task, nil
}

func doStart(t *testing.T, svc *stubTaskService) *httptest.ResponseRecorder {
	t.Helper()
	h := &TaskHandler{Service: svc, Repo: &stubTaskReader{}, Logger: slog.Default()}

	req := httptest.NewRequest(http.MethodPost, "/tasks/"+uuid.NewString()+"/start", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("id", uuid.NewString())
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	req = req.WithContext(middleware.WithAccount(req.Context(), &models.Account{ID: uuid.New()}))

	rec := httptest.NewRecorder()
	h.Start(rec, req)
	return rec
}

func TestTaskStart_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", tasks.ErrNotFound, http.StatusNotFound},
		{"own task", tasks.ErrSelfExecution, http.StatusForbidden},
		{"already completed", tasks.ErrAlreadyCompleted, http.StatusForbidden},
		{"cooldown", tasks.ErrInCooldown, http.StatusTooManyRequests},
		{"double start", tasks.ErrInvalidState, http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doStart(t, &stubTaskService{startErr: tc.err})
			if rec.Code != tc.want {
				t.Errorf("status: got %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestTaskStart_Success(t *testing.T) {
	execution := &models.TaskExecution{ID: uuid.New(), Status: models.ExecutionPending}
	rec := doStart(t, &stubTaskService{execution: execution})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201", rec.Code)
	}
	var got models.TaskExecution
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != execution.ID {
		t.Error("response must carry the created execution")
	}
}

func TestTaskStart_Unauthenticated(t *testing.T) {
	h := &TaskHandler{Service: &stubTaskService{}, Repo: &stubTaskReader{}, Logger: slog.Default()}
	req := httptest.NewRequest(http.MethodPost, "/tasks/x/start", nil)
	rec := httptest.NewRecorder()
	h.Start(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", rec.Code)
	}
}
