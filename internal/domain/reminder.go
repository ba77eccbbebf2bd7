/**
 * @description
 * Reminder domain types: the three lead-time tiers, their urgency mapping,
 * the delivery keys registered against the notification transport, and the
 * per-kind title/body copy.
 */
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Tier is one of the three reminder lead times before a subscription's end date.
type Tier string

const (
	TierThreeDay Tier = "3day"
	TierOneDay   Tier = "1day"
	TierDayOf    Tier = "dayof"
)

// Tiers lists all tiers in scheduling order, most urgent threshold checked first.
var Tiers = []Tier{TierThreeDay, TierOneDay, TierDayOf}

// ThresholdDays is the whole-day distance at which the tier's window opens.
func (t Tier) ThresholdDays() int {
	switch t {
	case TierThreeDay:
		return 3
	case TierOneDay:
		return 1
	default:
		return 0
	}
}

// Urgency is the delivery priority attached to a reminder. It comes from the
// tier alone, never from the subscription kind.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyCritical Urgency = "critical"
)

// Urgency maps the tier to its delivery priority.
func (t Tier) Urgency() Urgency {
	switch t {
	case TierThreeDay:
		return UrgencyNormal
	case TierOneDay:
		return UrgencyUrgent
	default:
		return UrgencyCritical
	}
}

// DeliveryMode distinguishes a reminder fired within a second of registration
// from one registered for a future timestamp.
type DeliveryMode string

const (
	ModeImmediate DeliveryMode = "immediate"
	ModeScheduled DeliveryMode = "scheduled"
)

// DeliveryKey uniquely identifies one outstanding delivery request. Keying by
// (subscription, tier, mode) means immediate and scheduled requests for the
// same tier cannot collide.
type DeliveryKey struct {
	SubscriptionID uuid.UUID
	Tier           Tier
	Mode           DeliveryMode
}

// String renders the key in the "<id>-<tier>[-immediate]" form used as the
// transport-side identifier.
func (k DeliveryKey) String() string {
	if k.Mode == ModeImmediate {
		return fmt.Sprintf("%s-%s-immediate", k.SubscriptionID, k.Tier)
	}
	return fmt.Sprintf("%s-%s", k.SubscriptionID, k.Tier)
}

// AllDeliveryKeys returns every key a subscription could have outstanding,
// all three tiers in both modes. Cancelling this full set before rescheduling
// is what makes update-in-place safe.
func AllDeliveryKeys(subscriptionID uuid.UUID) []DeliveryKey {
	keys := make([]DeliveryKey, 0, len(Tiers)*2)
	for _, tier := range Tiers {
		keys = append(keys,
			DeliveryKey{SubscriptionID: subscriptionID, Tier: tier, Mode: ModeScheduled},
			DeliveryKey{SubscriptionID: subscriptionID, Tier: tier, Mode: ModeImmediate},
		)
	}
	return keys
}

// ReminderPreferences holds the per-owner tier toggles and the preferred
// hour:minute that scheduled fire times are normalized to.
type ReminderPreferences struct {
	OwnerID  string `json:"owner_id"`
	ThreeDay bool   `json:"three_day_reminder"`
	OneDay   bool   `json:"one_day_reminder"`
	DayOf    bool   `json:"day_of_reminder"`
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
}

// DefaultReminderPreferences enables every tier at 09:00.
func DefaultReminderPreferences(ownerID string) ReminderPreferences {
	return ReminderPreferences{
		OwnerID:  ownerID,
		ThreeDay: true,
		OneDay:   true,
		DayOf:    true,
		Hour:     9,
		Minute:   0,
	}
}

// Enabled reports whether the given tier is switched on.
func (p ReminderPreferences) Enabled(t Tier) bool {
	switch t {
	case TierThreeDay:
		return p.ThreeDay
	case TierOneDay:
		return p.OneDay
	default:
		return p.DayOf
	}
}

// ReminderTitle builds the title line for a reminder, varying by kind and by
// how many days remain.
func ReminderTitle(kind Kind, daysRemaining int) string {
	switch NormalizeKind(kind) {
	case KindPaid:
		if daysRemaining == 0 {
			return "Renewal Today"
		}
		return "Subscription Renewal"
	case KindPromotional:
		if daysRemaining == 0 {
			return "Promo Ends Today"
		}
		return "Promotional Period Ending"
	default:
		if daysRemaining == 0 {
			return "Trial Ending Today"
		}
		if daysRemaining == 1 {
			return "Trial Ends Tomorrow"
		}
		return "Trial Ending Soon"
	}
}

// ReminderBody builds the body text for a reminder.
func ReminderBody(kind Kind, serviceName string, daysRemaining int) string {
	switch NormalizeKind(kind) {
	case KindPaid:
		if daysRemaining == 0 {
			return fmt.Sprintf("Your %s subscription renews today.", serviceName)
		}
		return fmt.Sprintf("Your %s subscription renews in %d days.", serviceName, daysRemaining)
	case KindPromotional:
		if daysRemaining == 0 {
			return fmt.Sprintf("Your %s promotional period ends today. Regular pricing will apply.", serviceName)
		}
		return fmt.Sprintf("Your %s promotional period ends in %d days.", serviceName, daysRemaining)
	default:
		if daysRemaining == 0 {
			return fmt.Sprintf("Your %s free trial ends today. Decide if you want to continue or cancel.", serviceName)
		}
		if daysRemaining == 1 {
			return fmt.Sprintf("Your %s free trial ends tomorrow. Time to make a decision!", serviceName)
		}
		return fmt.Sprintf("Your %s free trial ends in %d days. Consider if you want to keep it.", serviceName, daysRemaining)
	}
}
