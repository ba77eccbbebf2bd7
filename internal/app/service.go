/**
 * @description
 * This file contains the core business logic for the subscription service.
 * The Service owns all subscription writes; the reminder scheduler and the
 * forecast engine only react to the mutations it makes. Mutations are
 * serialized so the scheduler's cancel-then-reschedule rule stays race-free
 * under concurrent edits.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/subtrack/subscription-service/internal/domain"
)

// ErrNoOwner is returned by mutations attempted without an owner id.
var ErrNoOwner = errors.New("no owner set")

// Repository defines the interface for database operations that the service needs.
type Repository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error)
	ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error)
	GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Subscription, error)
	Create(ctx context.Context, sub *domain.Subscription) error
	Update(ctx context.Context, sub *domain.Subscription) error
	UpdateStatus(ctx context.Context, ownerID string, id uuid.UUID, status domain.Status, decidedAt *time.Time) (*domain.Subscription, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
	GetPreferences(ctx context.Context, ownerID string) (domain.ReminderPreferences, error)
	SavePreferences(ctx context.Context, prefs domain.ReminderPreferences) error
}

// MutationResult tells the caller exactly what a mutation accomplished:
// whether the record was persisted, whether reminder registration fully
// succeeded, and how many delivery registrations the transport rejected.
type MutationResult struct {
	Subscription       *domain.Subscription `json:"subscription"`
	Persisted          bool                 `json:"persisted"`
	RemindersScheduled bool                 `json:"reminders_scheduled"`
	DeliveryFailures   int                  `json:"delivery_failures"`
}

// CategorizedSubscriptions is the partitioned view of one owner's records.
// Active and ending-soon overlap by design; active and recently-ended are
// mutually exclusive by status.
type CategorizedSubscriptions struct {
	All           []domain.Subscription `json:"all"`
	Active        []domain.Subscription `json:"active"`
	EndingSoon    []domain.Subscription `json:"ending_soon"`
	RecentlyEnded []domain.Subscription `json:"recently_ended"`
	TotalMonthly  decimal.Decimal       `json:"total_monthly_cost"`
	TotalSavings  decimal.Decimal       `json:"total_savings"`
}

// AddSubscriptionInput carries the attributes of a new subscription.
type AddSubscriptionInput struct {
	Name             string          `json:"name"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	MonthlyPrice     decimal.Decimal `json:"monthly_price"`
	Kind             domain.Kind     `json:"kind"`
	BillingCycle     string          `json:"billing_cycle"`
	BillingAmount    decimal.Decimal `json:"billing_amount"`
	OriginalCurrency string          `json:"original_currency"`
	OriginalAmount   decimal.Decimal `json:"original_amount"`
	ExchangeRate     float64         `json:"exchange_rate"`
	Notes            string          `json:"notes"`
}

// Service provides the business logic for subscription management.
type Service struct {
	mu        sync.Mutex
	repo      Repository
	reminders *ReminderScheduler
	forecast  *ForecastEngine
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new subscription service.
func NewService(repo Repository, reminders *ReminderScheduler, forecast *ForecastEngine, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		reminders: reminders,
		forecast:  forecast,
		logger:    logger,
		now:       time.Now,
	}
}

// Add persists a new active subscription, registers its reminders and queues a
// forecast recomputation.
func (s *Service) Add(ctx context.Context, ownerID string, input AddSubscriptionInput) (*MutationResult, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}
	if input.Name == "" {
		return nil, errors.New("subscription name cannot be empty")
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, errors.New("end date must be after start date")
	}
	kind := domain.NormalizeKind(input.Kind)
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown subscription kind %q", input.Kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	billingCycle := input.BillingCycle
	if billingCycle == "" {
		billingCycle = "monthly"
	}
	billingAmount := input.BillingAmount
	if billingAmount.IsZero() {
		billingAmount = input.MonthlyPrice
	}

	sub := &domain.Subscription{
		ID:               uuid.New(),
		OwnerID:          ownerID,
		Name:             input.Name,
		StartDate:        input.StartDate,
		EndDate:          input.EndDate,
		MonthlyPrice:     input.MonthlyPrice,
		BillingCycle:     billingCycle,
		BillingAmount:    billingAmount,
		OriginalCurrency: input.OriginalCurrency,
		OriginalAmount:   input.OriginalAmount,
		ExchangeRate:     input.ExchangeRate,
		Notes:            input.Notes,
		Status:           domain.StatusActive,
		Kind:             kind,
	}
	if sub.OriginalCurrency != "" {
		now := s.now()
		sub.LastRateUpdate = &now
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}

	outcome := s.scheduleReminders(ctx, sub)
	s.forecast.ScheduleRecompute(ownerID)

	return &MutationResult{
		Subscription:       sub,
		Persisted:          true,
		RemindersScheduled: outcome.Failures == 0,
		DeliveryFailures:   outcome.Failures,
	}, nil
}

// SetStatus persists a lifecycle transition. Leaving active stamps the
// decision time and cancels every outstanding reminder; re-activation
// reschedules. The specific outcome feeds the next forecast recomputation.
func (s *Service) SetStatus(ctx context.Context, ownerID string, id uuid.UUID, status domain.Status) (*MutationResult, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}
	if !status.Valid() {
		return nil, fmt.Errorf("unknown subscription status %q", status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var decidedAt *time.Time
	if status != domain.StatusActive {
		now := s.now()
		decidedAt = &now
	}

	sub, err := s.repo.UpdateStatus(ctx, ownerID, id, status, decidedAt)
	if err != nil {
		return nil, err
	}

	result := &MutationResult{Subscription: sub, Persisted: true, RemindersScheduled: true}
	if status == domain.StatusActive {
		outcome := s.scheduleReminders(ctx, sub)
		result.RemindersScheduled = outcome.Failures == 0
		result.DeliveryFailures = outcome.Failures
	} else {
		if err := s.reminders.Cancel(ctx, sub.ID); err != nil {
			result.RemindersScheduled = false
		}
	}

	s.forecast.ScheduleRecompute(ownerID)
	return result, nil
}

// Delete cancels the subscription's reminders, removes the record and queues a
// forecast recomputation, in that order.
func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	if ownerID == "" {
		return ErrNoOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reminders.Cancel(ctx, id); err != nil {
		s.logger.Warn("deleting subscription with reminder cancellation failed", "subscription_id", id, "error", err)
	}
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return err
	}

	s.forecast.ScheduleRecompute(ownerID)
	return nil
}

// ConvertTrialToPaid turns a trial into a paid subscription with a fresh end
// date, keeping it active and rescheduling its reminders with paid copy.
func (s *Service) ConvertTrialToPaid(ctx context.Context, ownerID string, id uuid.UUID, newEndDate *time.Time, billingCycle string) (*MutationResult, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := s.repo.GetByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	sub.Kind = domain.KindPaid
	sub.Status = domain.StatusActive
	sub.DecidedAt = nil
	if newEndDate != nil {
		sub.EndDate = *newEndDate
	} else {
		sub.EndDate = s.now().AddDate(0, 1, 0)
	}
	if billingCycle != "" {
		sub.BillingCycle = billingCycle
	}

	if err := s.repo.Update(ctx, sub); err != nil {
		return nil, err
	}

	outcome := s.scheduleReminders(ctx, sub)
	s.forecast.ScheduleRecompute(ownerID)

	return &MutationResult{
		Subscription:       sub,
		Persisted:          true,
		RemindersScheduled: outcome.Failures == 0,
		DeliveryFailures:   outcome.Failures,
	}, nil
}

// Categorize partitions the owner's records into the active, ending-soon and
// recently-ended views. An empty owner yields empty views.
func (s *Service) Categorize(ctx context.Context, ownerID string) (*CategorizedSubscriptions, error) {
	views := &CategorizedSubscriptions{
		TotalMonthly: decimal.Zero,
		TotalSavings: decimal.Zero,
	}
	if ownerID == "" {
		return views, nil
	}

	subs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	endingSoonCutoff := now.Add(domain.EndingSoonWindow)
	recentCutoff := now.Add(-domain.RecentlyEndedWindow)

	views.All = subs
	for i := range subs {
		sub := subs[i]
		if sub.IsActiveAt(now) {
			views.Active = append(views.Active, sub)
			views.TotalMonthly = views.TotalMonthly.Add(sub.MonthlyPrice)
			if !sub.EndDate.After(endingSoonCutoff) {
				views.EndingSoon = append(views.EndingSoon, sub)
			}
			continue
		}
		if sub.Status != domain.StatusActive {
			if sub.Status == domain.StatusCanceled {
				views.TotalSavings = views.TotalSavings.Add(sub.MonthlyPrice)
			}
			if sub.EndDate.After(recentCutoff) && !sub.EndDate.After(now) {
				views.RecentlyEnded = append(views.RecentlyEnded, sub)
			}
		}
	}

	return views, nil
}

// Metrics recomputes and returns the owner's forecast snapshot.
func (s *Service) Metrics(ctx context.Context, ownerID string) (domain.SavingsMetrics, error) {
	if ownerID == "" {
		return domain.SavingsMetrics{}, ErrNoOwner
	}
	return s.forecast.Recompute(ctx, ownerID)
}

// Preferences returns the owner's reminder preferences.
func (s *Service) Preferences(ctx context.Context, ownerID string) (domain.ReminderPreferences, error) {
	if ownerID == "" {
		return domain.ReminderPreferences{}, ErrNoOwner
	}
	return s.repo.GetPreferences(ctx, ownerID)
}

// UpdatePreferences persists the owner's reminder preferences and batch
// reschedules every active subscription under the new tier set.
func (s *Service) UpdatePreferences(ctx context.Context, ownerID string, prefs domain.ReminderPreferences) (ScheduleOutcome, error) {
	if ownerID == "" {
		return ScheduleOutcome{}, ErrNoOwner
	}
	if prefs.Hour < 0 || prefs.Hour > 23 || prefs.Minute < 0 || prefs.Minute > 59 {
		return ScheduleOutcome{}, fmt.Errorf("invalid reminder time %02d:%02d", prefs.Hour, prefs.Minute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prefs.OwnerID = ownerID
	if err := s.repo.SavePreferences(ctx, prefs); err != nil {
		return ScheduleOutcome{}, err
	}

	active, err := s.repo.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return ScheduleOutcome{}, err
	}

	entries := make([]BatchEntry, 0, len(active))
	for i := range active {
		entries = append(entries, BatchEntry{Subscription: &active[i], Preferences: prefs})
	}
	return s.reminders.ScheduleBatch(ctx, entries), nil
}

// scheduleReminders runs a cancel-then-reschedule pass with the owner's
// preferences, falling back to the defaults when the preference read fails.
func (s *Service) scheduleReminders(ctx context.Context, sub *domain.Subscription) ScheduleOutcome {
	prefs, err := s.repo.GetPreferences(ctx, sub.OwnerID)
	if err != nil {
		s.logger.Error("failed to load reminder preferences, using defaults", "owner_id", sub.OwnerID, "error", err)
		prefs = domain.DefaultReminderPreferences(sub.OwnerID)
	}
	return s.reminders.Schedule(ctx, sub, prefs)
}
