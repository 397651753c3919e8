package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaskType is the action a doer performs against the target.
type TaskType string

const (
	TaskLike      TaskType = "like"
	TaskFollow    TaskType = "follow"
	TaskView      TaskType = "view"
	TaskSubscribe TaskType = "subscribe"
)

// Task statuses.
const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// TaskTypeForService maps an order's service to the task type a doer
// executes. The mapping is total over the known services; an unmapped
// service is a programming error and fails loudly.
func TaskTypeForService(s ServiceType) (TaskType, error) {
	switch s {
	case ServiceLikes, ServiceComments:
		return TaskLike, nil
	case ServiceFollowers:
		return TaskFollow, nil
	case ServiceViews:
		return TaskView, nil
	case ServiceSubscribers:
		return TaskSubscribe, nil
	default:
		return "", fmt.Errorf("no task type for service %q", s)
	}
}

// Repeatable reports whether a task of this type can be executed again by
// the same doer once its cooldown expires. Follows and subscribes are
// one-shot: the same account following twice is meaningless.
func (t TaskType) Repeatable() bool {
	switch t {
	case TaskFollow, TaskSubscribe:
		return false
	default:
		return true
	}
}

type Task struct {
	ID             uuid.UUID       `json:"id"`
	AccountID      uuid.UUID       `json:"account_id"`
	OrderID        uuid.UUID       `json:"order_id"`
	Type           TaskType        `json:"type"`
	Platform       string          `json:"platform"`
	TargetURL      string          `json:"target_url"`
	Quantity       int             `json:"quantity"`
	CompletedCount int             `json:"completed_count"`
	Rate           decimal.Decimal `json:"rate"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
