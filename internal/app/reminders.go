/**
 * @description
 * The tiered reminder scheduler. For every active subscription it keeps the
 * enabled reminder tiers represented by exactly one outstanding delivery
 * request each: stale keys are cancelled before every (re)schedule, a tier
 * whose window has already been entered is honored through immediate delivery,
 * and batch passes cancel every affected key in one request before any new
 * scheduling to avoid duplicate-delivery windows.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/subtrack/subscription-service/internal/domain"
)

// Delivery defines the interface to the notification transport. Registrations
// are keyed so that re-issuing them is idempotent on the transport side.
type Delivery interface {
	RegisterImmediate(ctx context.Context, key domain.DeliveryKey, title, body string, urgency domain.Urgency) error
	RegisterScheduled(ctx context.Context, key domain.DeliveryKey, title, body string, urgency domain.Urgency, fireAt time.Time) error
	Cancel(ctx context.Context, keys []domain.DeliveryKey) error
}

// ScheduleOutcome reports what one scheduling pass registered. Failures counts
// registrations the transport rejected; those are logged, not retried, and
// healed by the next resync pass.
type ScheduleOutcome struct {
	Immediate int
	Scheduled int
	Failures  int
}

// ReminderScheduler derives delivery requests from subscription state and
// drives the transport idempotently.
type ReminderScheduler struct {
	delivery Delivery
	logger   *slog.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewReminderScheduler creates a scheduler that normalizes fire times to the
// given location.
func NewReminderScheduler(delivery Delivery, logger *slog.Logger, loc *time.Location) *ReminderScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReminderScheduler{
		delivery: delivery,
		logger:   logger,
		loc:      loc,
		now:      time.Now,
	}
}

// Schedule cancels every outstanding key for the subscription and registers a
// fresh set of deliveries. Non-active subscriptions only get the cancellation.
func (s *ReminderScheduler) Schedule(ctx context.Context, sub *domain.Subscription, prefs domain.ReminderPreferences) ScheduleOutcome {
	if err := s.delivery.Cancel(ctx, domain.AllDeliveryKeys(sub.ID)); err != nil {
		s.logger.Error("failed to cancel outstanding reminders", "subscription_id", sub.ID, "error", err)
	}

	if sub.Status != domain.StatusActive {
		return ScheduleOutcome{}
	}
	return s.scheduleFresh(ctx, sub, prefs)
}

// Cancel removes every outstanding key for a subscription without scheduling
// anything new. Used on transitions away from active and before deletes.
func (s *ReminderScheduler) Cancel(ctx context.Context, subscriptionID uuid.UUID) error {
	err := s.delivery.Cancel(ctx, domain.AllDeliveryKeys(subscriptionID))
	if err != nil {
		s.logger.Error("failed to cancel reminders", "subscription_id", subscriptionID, "error", err)
	}
	return err
}

// BatchEntry pairs a subscription with the preferences in force for its owner.
type BatchEntry struct {
	Subscription *domain.Subscription
	Preferences  domain.ReminderPreferences
}

// ScheduleBatch reschedules many subscriptions at once, e.g. after a bulk
// preference change or during the daily resync. All cancellations go out in a
// single request before any new registration so no key is briefly duplicated.
func (s *ReminderScheduler) ScheduleBatch(ctx context.Context, entries []BatchEntry) ScheduleOutcome {
	var keys []domain.DeliveryKey
	for _, entry := range entries {
		keys = append(keys, domain.AllDeliveryKeys(entry.Subscription.ID)...)
	}
	if len(keys) > 0 {
		if err := s.delivery.Cancel(ctx, keys); err != nil {
			s.logger.Error("failed to cancel reminders for batch", "count", len(keys), "error", err)
		}
	}

	var outcome ScheduleOutcome
	for _, entry := range entries {
		if entry.Subscription.Status != domain.StatusActive {
			continue
		}
		o := s.scheduleFresh(ctx, entry.Subscription, entry.Preferences)
		outcome.Immediate += o.Immediate
		outcome.Scheduled += o.Scheduled
		outcome.Failures += o.Failures
	}
	return outcome
}

// scheduleFresh registers deliveries assuming the subscription's keys have
// already been cancelled. Tiers are walked with the widest window first; each
// enabled tier whose window has been entered fires immediately, independently
// of the others, and each tier whose natural fire time is still ahead gets a
// scheduled registration.
func (s *ReminderScheduler) scheduleFresh(ctx context.Context, sub *domain.Subscription, prefs domain.ReminderPreferences) ScheduleOutcome {
	var outcome ScheduleOutcome
	now := s.now()
	daysUntilEnd := sub.DaysUntilEnd(now)

	for _, tier := range domain.Tiers {
		if !prefs.Enabled(tier) {
			continue
		}
		threshold := tier.ThresholdDays()

		if daysUntilEnd <= threshold {
			daysShown := daysUntilEnd
			if daysShown < 0 {
				daysShown = 0
			}
			key := domain.DeliveryKey{SubscriptionID: sub.ID, Tier: tier, Mode: domain.ModeImmediate}
			err := s.delivery.RegisterImmediate(ctx, key,
				domain.ReminderTitle(sub.Kind, daysShown),
				domain.ReminderBody(sub.Kind, sub.Name, daysShown),
				tier.Urgency(),
			)
			if err != nil {
				outcome.Failures++
				s.logger.Error("failed to register immediate reminder", "key", key.String(), "error", err)
			} else {
				outcome.Immediate++
			}
		}

		fireAt := s.fireTime(sub.EndDate.AddDate(0, 0, -threshold), prefs)
		if fireAt.After(now) {
			key := domain.DeliveryKey{SubscriptionID: sub.ID, Tier: tier, Mode: domain.ModeScheduled}
			err := s.delivery.RegisterScheduled(ctx, key,
				domain.ReminderTitle(sub.Kind, threshold),
				domain.ReminderBody(sub.Kind, sub.Name, threshold),
				tier.Urgency(),
				fireAt,
			)
			if err != nil {
				outcome.Failures++
				s.logger.Error("failed to register scheduled reminder", "key", key.String(), "fire_at", fireAt, "error", err)
			} else {
				outcome.Scheduled++
			}
		}
	}

	return outcome
}

// fireTime normalizes a calendar day to the owner's preferred hour and minute.
func (s *ReminderScheduler) fireTime(day time.Time, prefs domain.ReminderPreferences) time.Time {
	local := day.In(s.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), prefs.Hour, prefs.Minute, 0, 0, s.loc)
}
