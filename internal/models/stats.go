package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Timeframe is the statistics window length.
type Timeframe string

const (
	TimeframeDay   Timeframe = "day"
	TimeframeWeek  Timeframe = "week"
	TimeframeMonth Timeframe = "month"
)

// Window returns the duration covered by the timeframe.
func (t Timeframe) Window() (time.Duration, error) {
	switch t {
	case TimeframeDay:
		return 24 * time.Hour, nil
	case TimeframeWeek:
		return 7 * 24 * time.Hour, nil
	case TimeframeMonth:
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown timeframe %q", t)
	}
}

// OrderStats is the cached per-(account, platform, timeframe) aggregate.
// Growth fields compare the current window against the immediately
// preceding equal-length window, in percent.
type OrderStats struct {
	ID               uuid.UUID       `json:"id"`
	AccountID        uuid.UUID       `json:"account_id"`
	Platform         string          `json:"platform"`
	Timeframe        Timeframe       `json:"timeframe"`
	ActiveOrders     int             `json:"active_orders"`
	CompletedOrders  int             `json:"completed_orders"`
	TotalOrders      int             `json:"total_orders"`
	TotalSpend       decimal.Decimal `json:"total_spend"`
	ActiveGrowth     float64         `json:"active_growth"`
	CompletedGrowth  float64         `json:"completed_growth"`
	TotalGrowth      float64         `json:"total_growth"`
	SpendGrowth      float64         `json:"spend_growth"`
	LastCalculatedAt time.Time       `json:"last_calculated_at"`
}
