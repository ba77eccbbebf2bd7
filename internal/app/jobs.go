/**
 * @description
 * Scheduled job implementations for the subscription-service: the daily
 * reminder resync (which also heals lost delivery registrations), the expiry
 * sweep, and the exchange-rate refresh for cross-currency entries.
 */
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subtrack/subscription-service/internal/domain"
)

// staleRateWindow is how old an exchange rate may get before the refresh job
// considers it due for an update.
const staleRateWindow = 24 * time.Hour

// significantRateChange is the relative change below which a fetched rate is
// ignored, to avoid churning records on market noise.
const significantRateChange = 0.05

// JobsRepository defines database operations needed by the jobs.
type JobsRepository interface {
	ListActive(ctx context.Context) ([]domain.Subscription, error)
	ListActivePastEnd(ctx context.Context, cutoff time.Time) ([]domain.Subscription, error)
	ListStaleExchangeRates(ctx context.Context, cutoff time.Time) ([]domain.Subscription, error)
	UpdateStatus(ctx context.Context, ownerID string, id uuid.UUID, status domain.Status, decidedAt *time.Time) (*domain.Subscription, error)
	Update(ctx context.Context, sub *domain.Subscription) error
	GetPreferences(ctx context.Context, ownerID string) (domain.ReminderPreferences, error)
}

// RateClient defines the interface for fetching exchange rates into the
// display currency.
type RateClient interface {
	GetExchangeRate(ctx context.Context, fromCurrency string) (float64, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo            JobsRepository
	reminders       *ReminderScheduler
	forecast        *ForecastEngine
	rates           RateClient
	logger          *slog.Logger
	expiryGraceDays int
	now             func() time.Time
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo JobsRepository, reminders *ReminderScheduler, forecast *ForecastEngine, rates RateClient, logger *slog.Logger, expiryGraceDays int) *Jobs {
	return &Jobs{
		repo:            repo,
		reminders:       reminders,
		forecast:        forecast,
		rates:           rates,
		logger:          logger,
		expiryGraceDays: expiryGraceDays,
		now:             time.Now,
	}
}

// ResyncReminders re-runs the batch cancel-then-schedule pass over every
// active subscription. Any delivery registration lost to a transport failure
// since the last pass is re-issued here.
func (j *Jobs) ResyncReminders() {
	j.logger.Info("starting reminder resync job")
	ctx := context.Background()

	active, err := j.repo.ListActive(ctx)
	if err != nil {
		j.logger.Error("failed to list active subscriptions for resync", "error", err)
		return
	}
	if len(active) == 0 {
		j.logger.Info("no active subscriptions to resync")
		return
	}

	prefsByOwner := make(map[string]domain.ReminderPreferences)
	entries := make([]BatchEntry, 0, len(active))
	for i := range active {
		sub := &active[i]
		prefs, ok := prefsByOwner[sub.OwnerID]
		if !ok {
			loaded, err := j.repo.GetPreferences(ctx, sub.OwnerID)
			if err != nil {
				j.logger.Error("failed to load preferences during resync", "owner_id", sub.OwnerID, "error", err)
				loaded = domain.DefaultReminderPreferences(sub.OwnerID)
			}
			prefsByOwner[sub.OwnerID] = loaded
			prefs = loaded
		}
		entries = append(entries, BatchEntry{Subscription: sub, Preferences: prefs})
	}

	outcome := j.reminders.ScheduleBatch(ctx, entries)
	j.logger.Info("reminder resync job finished",
		"subscriptions", len(entries),
		"immediate", outcome.Immediate,
		"scheduled", outcome.Scheduled,
		"failures", outcome.Failures,
	)
}

// SweepExpired transitions active subscriptions whose end date passed more
// than the grace period ago to expired and cancels their reminders.
func (j *Jobs) SweepExpired() {
	j.logger.Info("starting expiry sweep job")
	ctx := context.Background()
	now := j.now()
	cutoff := now.AddDate(0, 0, -j.expiryGraceDays)

	overdue, err := j.repo.ListActivePastEnd(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to list overdue subscriptions", "error", err)
		return
	}
	if len(overdue) == 0 {
		j.logger.Info("no overdue subscriptions to expire")
		return
	}

	touchedOwners := make(map[string]struct{})
	for i := range overdue {
		sub := &overdue[i]
		decidedAt := now
		if _, err := j.repo.UpdateStatus(ctx, sub.OwnerID, sub.ID, domain.StatusExpired, &decidedAt); err != nil {
			j.logger.Error("failed to expire subscription", "subscription_id", sub.ID, "error", err)
			continue
		}
		if err := j.reminders.Cancel(ctx, sub.ID); err != nil {
			j.logger.Error("failed to cancel reminders for expired subscription", "subscription_id", sub.ID, "error", err)
		}
		touchedOwners[sub.OwnerID] = struct{}{}
		j.logger.Info("expired subscription", "subscription_id", sub.ID, "name", sub.Name, "end_date", sub.EndDate)
	}

	for ownerID := range touchedOwners {
		j.forecast.ScheduleRecompute(ownerID)
	}
	j.logger.Info("expiry sweep job finished", "expired", len(overdue))
}

// RefreshExchangeRates updates cross-currency subscriptions whose rate is
// stale. Rates are fetched once per unique currency; only significant changes
// are applied.
func (j *Jobs) RefreshExchangeRates() {
	j.logger.Info("starting exchange rate refresh job")
	ctx := context.Background()
	now := j.now()

	stale, err := j.repo.ListStaleExchangeRates(ctx, now.Add(-staleRateWindow))
	if err != nil {
		j.logger.Error("failed to list stale exchange rates", "error", err)
		return
	}
	if len(stale) == 0 {
		j.logger.Info("no subscriptions due for a rate refresh")
		return
	}

	rates := make(map[string]float64)
	for i := range stale {
		currency := stale[i].OriginalCurrency
		if _, ok := rates[currency]; ok {
			continue
		}
		rate, err := j.rates.GetExchangeRate(ctx, currency)
		if err != nil {
			j.logger.Error("failed to fetch exchange rate", "currency", currency, "error", err)
			continue
		}
		rates[currency] = rate
	}

	updated := 0
	touchedOwners := make(map[string]struct{})
	for i := range stale {
		sub := &stale[i]
		rate, ok := rates[sub.OriginalCurrency]
		if !ok {
			continue
		}
		if !j.applyRate(ctx, sub, rate, now) {
			continue
		}
		updated++
		touchedOwners[sub.OwnerID] = struct{}{}
	}

	for ownerID := range touchedOwners {
		j.forecast.ScheduleRecompute(ownerID)
	}
	j.logger.Info("exchange rate refresh job finished", "checked", len(stale), "updated", updated)
}

// applyRate rewrites one subscription's amounts under a fresh rate, skipping
// insignificant changes. Returns whether the record was updated.
func (j *Jobs) applyRate(ctx context.Context, sub *domain.Subscription, rate float64, now time.Time) bool {
	oldRate := sub.ExchangeRate
	if oldRate > 0 {
		change := (rate - oldRate) / oldRate
		if change < 0 {
			change = -change
		}
		if change < significantRateChange {
			// Still stamp the check so the record is not re-fetched tomorrow.
			sub.LastRateUpdate = &now
			if err := j.repo.Update(ctx, sub); err != nil {
				j.logger.Error("failed to stamp rate check", "subscription_id", sub.ID, "error", err)
			}
			return false
		}
	}

	newAmount := sub.OriginalAmount.Mul(decimal.NewFromFloat(rate))
	sub.BillingAmount = newAmount
	sub.MonthlyPrice = domain.MonthlyEquivalent(newAmount, sub.BillingCycle)
	sub.ExchangeRate = rate
	sub.LastRateUpdate = &now
	sub.Notes += fmt.Sprintf("\n[Rate update %s]: 1 %s = %.4f, amount now %s",
		now.Format("2006-01-02"), sub.OriginalCurrency, rate, newAmount.StringFixed(2))

	if err := j.repo.Update(ctx, sub); err != nil {
		j.logger.Error("failed to update subscription with new rate", "subscription_id", sub.ID, "error", err)
		return false
	}
	return true
}
