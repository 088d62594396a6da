package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PromotionType string

const (
	PromotionAutomatic PromotionType = "automatic"
	PromotionOneTime   PromotionType = "one-time"
)

// Promotion is a bonus rule. MinSpending and Rate are optional; Points is an optional fixed
// bonus added verbatim.
type Promotion struct {
	ID          int64
	Name        string
	Type        PromotionType
	StartTime   time.Time
	EndTime     time.Time
	MinSpending decimal.NullDecimal
	Rate        decimal.NullDecimal
	Points      *int64
}

// ActiveAt reports whether now falls inside [StartTime, EndTime].
func (p Promotion) ActiveAt(now time.Time) bool {
	return !now.Before(p.StartTime) && !now.After(p.EndTime)
}

// Qualifies reports whether a spend meets the promotion's minimum, if it has one.
func (p Promotion) Qualifies(spent decimal.Decimal) bool {
	if !p.MinSpending.Valid {
		return true
	}
	return p.MinSpending.Decimal.LessThanOrEqual(spent)
}
