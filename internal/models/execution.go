package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Execution statuses. At most one pending execution may exist per
// (executor, task) pair.
const (
	ExecutionPending   = "pending"
	ExecutionCompleted = "completed"
)

type TaskExecution struct {
	ID             uuid.UUID       `json:"id"`
	TaskID         uuid.UUID       `json:"task_id"`
	ExecutorID     uuid.UUID       `json:"executor_id"`
	Status         string          `json:"status"`
	Earnings       decimal.Decimal `json:"earnings"`
	Proof          json.RawMessage `json:"proof,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CooldownEndsAt *time.Time      `json:"cooldown_ends_at,omitempty"`
}
