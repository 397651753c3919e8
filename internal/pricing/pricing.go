package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/boostgrid/backend/internal/models"
)

// ErrUnknownService is returned for a service type outside the price table.
var ErrUnknownService = errors.New("unknown service type")

// ErrUnknownSpeed is returned for a speed tier outside the surcharge table.
var ErrUnknownSpeed = errors.New("unknown speed tier")

// Per-unit base prices by service.
var basePrices = map[models.ServiceType]decimal.Decimal{
	models.ServiceLikes:       decimal.RequireFromString("0.50"),
	models.ServiceFollowers:   decimal.RequireFromString("1.00"),
	models.ServiceViews:       decimal.RequireFromString("0.20"),
	models.ServiceComments:    decimal.RequireFromString("2.00"),
	models.ServiceSubscribers: decimal.RequireFromString("1.00"),
}

// Bulk discount multipliers, highest threshold wins, not cumulative.
var discountTiers = []struct {
	minQuantity int
	multiplier  decimal.Decimal
}{
	{50000, decimal.RequireFromString("0.85")},
	{10000, decimal.RequireFromString("0.90")},
	{5000, decimal.RequireFromString("0.95")},
}

// Payout bonus multipliers by quantity, same threshold scheme.
var bonusTiers = []struct {
	minQuantity int
	multiplier  decimal.Decimal
}{
	{50000, decimal.RequireFromString("1.20")},
	{10000, decimal.RequireFromString("1.15")},
	{5000, decimal.RequireFromString("1.10")},
}

// Flat speed surcharges, added after the discount.
var speedSurcharges = map[models.SpeedTier]decimal.Decimal{
	models.SpeedNormal:  decimal.Zero,
	models.SpeedFast:    decimal.RequireFromString("5"),
	models.SpeedExpress: decimal.RequireFromString("10"),
}

// Schedule computes order costs and task payout rates. The payout margins
// are configuration, not constants: the spread between what an order costs
// and what its task pays out is the platform's take.
type Schedule struct {
	payoutMargin   decimal.Decimal
	commentsMargin decimal.Decimal
}

// NewSchedule builds a Schedule from the configured margins. Margins are
// fractions of the order unit price, e.g. 0.60.
func NewSchedule(payoutMargin, commentsMargin float64) *Schedule {
	return &Schedule{
		payoutMargin:   decimal.NewFromFloat(payoutMargin),
		commentsMargin: decimal.NewFromFloat(commentsMargin),
	}
}

// OrderCost returns the amount charged for an order:
// base price x quantity, bulk discount, then the speed surcharge.
func (s *Schedule) OrderCost(service models.ServiceType, quantity int, speed models.SpeedTier) (decimal.Decimal, error) {
	base, ok := basePrices[service]
	if !ok {
		return decimal.Zero, ErrUnknownService
	}
	surcharge, ok := speedSurcharges[speed]
	if !ok {
		return decimal.Zero, ErrUnknownSpeed
	}
	total := base.Mul(decimal.NewFromInt(int64(quantity)))
	for _, tier := range discountTiers {
		if quantity >= tier.minQuantity {
			total = total.Mul(tier.multiplier)
			break
		}
	}
	return total.Add(surcharge), nil
}

// TaskRate returns the per-unit payout for the task spawned from an order:
// base price x margin x quantity bonus. Deliberately decoupled from
// OrderCost's discount and surcharge.
func (s *Schedule) TaskRate(service models.ServiceType, quantity int) (decimal.Decimal, error) {
	base, ok := basePrices[service]
	if !ok {
		return decimal.Zero, ErrUnknownService
	}
	margin := s.payoutMargin
	if service == models.ServiceComments {
		margin = s.commentsMargin
	}
	rate := base.Mul(margin)
	for _, tier := range bonusTiers {
		if quantity >= tier.minQuantity {
			rate = rate.Mul(tier.multiplier)
			break
		}
	}
	return rate, nil
}
