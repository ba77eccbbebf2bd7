/**
 * @description
 * This file defines the core domain models for the subscription-service.
 * It includes the main Subscription struct that maps to the database table
 * together with the status and kind enums that drive the lifecycle rules.
 */
package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a subscription. The transition is one-way:
// once a record leaves 'active' it only becomes active again through an
// explicit user edit, never through an automatic transition.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusKept     Status = "kept"
	StatusExpired  Status = "expired"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCanceled, StatusKept, StatusExpired:
		return true
	}
	return false
}

// Kind classifies what the user is tracking. It selects the reminder copy but
// never the tier algorithm or the urgency mapping.
type Kind string

const (
	KindTrial       Kind = "trial"
	KindPaid        Kind = "paid"
	KindPromotional Kind = "promotional"
)

// Valid reports whether k is a known subscription kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTrial, KindPaid, KindPromotional:
		return true
	}
	return false
}

// NormalizeKind maps the empty kind of legacy records to the trial default.
func NormalizeKind(k Kind) Kind {
	if k == "" {
		return KindTrial
	}
	return k
}

// Subscription represents a tracked recurring commitment owned by a single user.
// Every query against the store is scoped by OwnerID; a record without an owner
// is unreachable.
type Subscription struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          string          `json:"owner_id"`
	Name             string          `json:"name"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	MonthlyPrice     decimal.Decimal `json:"monthly_price"`
	BillingCycle     string          `json:"billing_cycle"`
	BillingAmount    decimal.Decimal `json:"billing_amount"`
	OriginalCurrency string          `json:"original_currency,omitempty"`
	OriginalAmount   decimal.Decimal `json:"original_amount,omitempty"`
	ExchangeRate     float64         `json:"exchange_rate,omitempty"`
	LastRateUpdate   *time.Time      `json:"last_rate_update,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	Status           Status          `json:"status"`
	Kind             Kind            `json:"kind"`
	DecidedAt        *time.Time      `json:"decided_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// DaysUntilEnd returns the whole-day distance from now to the end date,
// floored, so a subscription ending later today reports 0 and one that ended
// yesterday reports a negative count.
func (s *Subscription) DaysUntilEnd(now time.Time) int {
	return int(math.Floor(s.EndDate.Sub(now).Hours() / 24))
}

// IsActiveAt reports whether the record counts toward the "active" view:
// status active with an end date strictly in the future.
func (s *Subscription) IsActiveAt(now time.Time) bool {
	return s.Status == StatusActive && s.EndDate.After(now)
}

// EndingSoonWindow is the lookahead used by the ending-soon view and by the
// forecast risk score.
const EndingSoonWindow = 7 * 24 * time.Hour

// RecentlyEndedWindow bounds how far back the recently-ended view reaches.
const RecentlyEndedWindow = 30 * 24 * time.Hour

// MonthlyEquivalent converts a billing amount on the given cycle to its
// monthly-equivalent price.
func MonthlyEquivalent(amount decimal.Decimal, billingCycle string) decimal.Decimal {
	switch billingCycle {
	case "yearly", "annual":
		return amount.Div(decimal.NewFromInt(12))
	case "quarterly":
		return amount.Div(decimal.NewFromInt(3))
	case "semi-annual", "biannual":
		return amount.Div(decimal.NewFromInt(6))
	case "weekly":
		return amount.Mul(decimal.NewFromFloat(4.33))
	default:
		return amount
	}
}
