/**
 * @description
 * The waste-forecasting engine. It recomputes a personalized estimate of money
 * at risk and money already saved from the repository snapshot after every
 * mutation that could change it, and publishes the results as one immutable
 * metrics snapshot.
 */
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/subtrack/subscription-service/internal/domain"
)

// defaultForgetRate is the population default applied while an owner has too
// little history to personalize from.
const defaultForgetRate = 0.40

// forgetRateMinHistory is the history size below which only the default rate
// is used; forgetRateFullHistory is where personalization reaches full weight.
const (
	forgetRateMinHistory  = 5
	forgetRateFullHistory = 20
)

// lateDecisionGrace is how long after the end date a status decision still
// counts as made on time.
const lateDecisionGrace = 24 * time.Hour

// ForecastSource defines the reads the engine needs. It only ever reads
// subscription state; the published metrics are its own derived output.
type ForecastSource interface {
	ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error)
	ListHistoricalByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error)
}

// ForecastEngine recomputes savings metrics from the current repository
// snapshot. Recomputation is cheap and deterministic; closely spaced mutation
// triggers are batched through a short debounce.
type ForecastEngine struct {
	source ForecastSource
	logger *slog.Logger
	delay  time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	current domain.SavingsMetrics

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewForecastEngine creates an engine publishing zeroed metrics with the
// default forget rate until the first recomputation runs.
func NewForecastEngine(source ForecastSource, logger *slog.Logger) *ForecastEngine {
	return &ForecastEngine{
		source: source,
		logger: logger,
		delay:  300 * time.Millisecond,
		now:    time.Now,
		current: domain.SavingsMetrics{
			PotentialAnnualWaste:   decimal.Zero,
			ActualSavings:          decimal.Zero,
			MonthlySpendProjection: decimal.Zero,
			YearlySpendProjection:  decimal.Zero,
			ForgetRate:             defaultForgetRate,
		},
	}
}

// Current returns the last published metrics snapshot.
func (e *ForecastEngine) Current() domain.SavingsMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Recompute rebuilds the metrics for an owner from the store and publishes the
// new snapshot.
func (e *ForecastEngine) Recompute(ctx context.Context, ownerID string) (domain.SavingsMetrics, error) {
	active, err := e.source.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return domain.SavingsMetrics{}, err
	}
	historical, err := e.source.ListHistoricalByOwner(ctx, ownerID)
	if err != nil {
		return domain.SavingsMetrics{}, err
	}

	now := e.now()
	rate := e.personalizedForgetRate(historical)
	totalMonthly := sumMonthly(active)
	monthlyProjection := totalMonthly.Mul(decimal.NewFromFloat(rate))

	metrics := domain.SavingsMetrics{
		PotentialAnnualWaste:   totalMonthly.Mul(decimal.NewFromInt(12)).Mul(decimal.NewFromFloat(rate)),
		ActualSavings:          e.actualSavings(historical, now),
		MonthlySpendProjection: monthlyProjection,
		YearlySpendProjection:  monthlyProjection.Mul(decimal.NewFromInt(12)),
		WasteRiskScore:         e.wasteRiskScore(active, rate, now),
		ForgetRate:             rate,
		ComputedAt:             now,
	}

	e.mu.Lock()
	e.current = metrics
	e.mu.Unlock()

	return metrics, nil
}

// ScheduleRecompute queues an asynchronous recomputation, collapsing bursts of
// triggers into a single run.
func (e *ForecastEngine) ScheduleRecompute(ownerID string) {
	e.timerMu.Lock()
	defer e.timerMu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := e.Recompute(ctx, ownerID); err != nil {
			e.logger.Error("deferred forecast recompute failed", "owner_id", ownerID, "error", err)
		}
	})
}

// personalizedForgetRate blends the population default with the owner's own
// history: below forgetRateMinHistory outcomes the default applies unchanged,
// and personalization reaches full weight at forgetRateFullHistory.
func (e *ForecastEngine) personalizedForgetRate(historical []domain.Subscription) float64 {
	n := len(historical)
	if n < forgetRateMinHistory {
		return defaultForgetRate
	}

	forgotten := 0
	for i := range historical {
		if outcomeForgotten(&historical[i]) {
			forgotten++
		}
	}
	raw := float64(forgotten) / float64(n)

	weight := float64(n) / float64(forgetRateFullHistory)
	if weight > 1 {
		weight = 1
	}
	return (1-weight)*defaultForgetRate + weight*raw
}

// outcomeForgotten reports whether a historical record counts as a forgotten
// charge: it expired, or it was kept but the decision came more than a day
// after the end date.
func outcomeForgotten(sub *domain.Subscription) bool {
	switch sub.Status {
	case domain.StatusExpired:
		return true
	case domain.StatusKept:
		return sub.DecidedAt != nil && sub.DecidedAt.Sub(sub.EndDate) > lateDecisionGrace
	default:
		return false
	}
}

// actualSavings sums the monthly price of records the owner canceled whose end
// date falls in the current calendar year.
func (e *ForecastEngine) actualSavings(historical []domain.Subscription, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for i := range historical {
		sub := &historical[i]
		if sub.Status == domain.StatusCanceled && sub.EndDate.Year() == now.Year() {
			total = total.Add(sub.MonthlyPrice)
		}
	}
	return total
}

// wasteRiskScore combines four capped additive factors into a 0-10 score.
func (e *ForecastEngine) wasteRiskScore(active []domain.Subscription, rate float64, now time.Time) float64 {
	countScore := float64(len(active)) * 0.3
	if countScore > 3 {
		countScore = 3
	}

	valueScore := 0.0
	if len(active) > 0 {
		avg := sumMonthly(active).Div(decimal.NewFromInt(int64(len(active)))).InexactFloat64()
		valueScore = avg / 25.0
		if valueScore > 2 {
			valueScore = 2
		}
	}

	endingSoon := 0
	for i := range active {
		if active[i].DaysUntilEnd(now) <= 7 {
			endingSoon++
		}
	}
	urgencyScore := float64(endingSoon) * 0.5
	if urgencyScore > 2 {
		urgencyScore = 2
	}

	score := countScore + valueScore + urgencyScore + rate*3
	if score > 10 {
		score = 10
	}
	if score < 0 {
		score = 0
	}
	return score
}

func sumMonthly(subs []domain.Subscription) decimal.Decimal {
	total := decimal.Zero
	for i := range subs {
		total = total.Add(subs[i].MonthlyPrice)
	}
	return total
}
