package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ServiceType is the engagement service a customer buys.
type ServiceType string

const (
	ServiceLikes       ServiceType = "likes"
	ServiceFollowers   ServiceType = "followers"
	ServiceViews       ServiceType = "views"
	ServiceComments    ServiceType = "comments"
	ServiceSubscribers ServiceType = "subscribers"
)

// SpeedTier controls the delivery surcharge.
type SpeedTier string

const (
	SpeedNormal  SpeedTier = "normal"
	SpeedFast    SpeedTier = "fast"
	SpeedExpress SpeedTier = "express"
)

// Order statuses.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusFailed     = "failed"
)

type Order struct {
	ID                uuid.UUID       `json:"id"`
	AccountID         uuid.UUID       `json:"account_id"`
	Platform          string          `json:"platform"`
	Service           ServiceType     `json:"service"`
	TargetURL         string          `json:"target_url"`
	Quantity          int             `json:"quantity"`
	RemainingQuantity int             `json:"remaining_quantity"`
	Status            string          `json:"status"`
	Speed             SpeedTier       `json:"speed"`
	Amount            decimal.Decimal `json:"amount"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}
