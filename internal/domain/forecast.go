/**
 * @description
 * Forecast domain types: the published savings/waste metrics snapshot and the
 * risk-level buckets derived from the waste risk score.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SavingsMetrics is the immutable snapshot the forecast engine publishes after
// each recomputation. All five money/score outputs travel together so an
// observer never sees a partially updated set.
type SavingsMetrics struct {
	PotentialAnnualWaste   decimal.Decimal `json:"potential_annual_waste"`
	ActualSavings          decimal.Decimal `json:"actual_savings"`
	MonthlySpendProjection decimal.Decimal `json:"monthly_spend_projection"`
	YearlySpendProjection  decimal.Decimal `json:"yearly_spend_projection"`
	WasteRiskScore         float64         `json:"waste_risk_score"`
	ForgetRate             float64         `json:"forget_rate"`
	ComputedAt             time.Time       `json:"computed_at"`
}

// RiskLevel is the human-readable bucket for a waste risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskVeryHigh RiskLevel = "Very High"
)

// RiskLevelFor buckets a 0-10 score into half-open intervals; a boundary value
// belongs to the higher bucket.
func RiskLevelFor(score float64) RiskLevel {
	switch {
	case score < 3:
		return RiskLow
	case score < 6:
		return RiskMedium
	case score < 8:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// Description returns the advisory line shown alongside the risk level.
func (l RiskLevel) Description() string {
	switch l {
	case RiskLow:
		return "You're doing great at managing subscriptions!"
	case RiskMedium:
		return "Keep an eye on upcoming subscription endings"
	case RiskHigh:
		return "You have several subscriptions ending soon"
	default:
		return "Urgent action needed on multiple subscriptions"
	}
}
