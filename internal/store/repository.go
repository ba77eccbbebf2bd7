/**
 * @description
 * This file implements the data access layer for the subscription-service.
 * It contains all the SQL queries and logic for interacting with the database.
 * Every subscription query is scoped by owner_id; records without an owner are
 * unreachable through this layer.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/subtrack/subscription-service/internal/domain"
)

// ErrNotFound is returned when a subscription does not exist for the given
// owner and id.
var ErrNotFound = errors.New("subscription not found")

const subscriptionColumns = `
	id, owner_id, name, start_date, end_date, monthly_price, billing_cycle,
	billing_amount, original_currency, original_amount, exchange_rate,
	last_rate_update, notes, status, kind, decided_at, created_at, updated_at`

// Repository handles database operations for subscriptions and reminder
// preferences.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	err := row.Scan(
		&sub.ID,
		&sub.OwnerID,
		&sub.Name,
		&sub.StartDate,
		&sub.EndDate,
		&sub.MonthlyPrice,
		&sub.BillingCycle,
		&sub.BillingAmount,
		&sub.OriginalCurrency,
		&sub.OriginalAmount,
		&sub.ExchangeRate,
		&sub.LastRateUpdate,
		&sub.Notes,
		&sub.Status,
		&sub.Kind,
		&sub.DecidedAt,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Kind = domain.NormalizeKind(sub.Kind)
	return &sub, nil
}

func (r *Repository) querySubscriptions(ctx context.Context, query string, args ...any) ([]domain.Subscription, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// ListByOwner retrieves all subscriptions for an owner, soonest end date first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE owner_id = $1
        ORDER BY end_date ASC
    `
	return r.querySubscriptions(ctx, query, ownerID)
}

// ListActiveByOwner retrieves the owner's records with status 'active'.
func (r *Repository) ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE owner_id = $1 AND status = $2
        ORDER BY end_date ASC
    `
	return r.querySubscriptions(ctx, query, ownerID, domain.StatusActive)
}

// ListHistoricalByOwner retrieves the owner's non-active records, most recent
// end date first. These are the outcomes the forecast engine learns from.
func (r *Repository) ListHistoricalByOwner(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE owner_id = $1 AND status <> $2
        ORDER BY end_date DESC
    `
	return r.querySubscriptions(ctx, query, ownerID, domain.StatusActive)
}

// GetByID retrieves one subscription scoped to its owner.
func (r *Repository) GetByID(ctx context.Context, ownerID string, id uuid.UUID) (*domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE owner_id = $1 AND id = $2
    `
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, ownerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

// Create persists a new subscription record.
func (r *Repository) Create(ctx context.Context, sub *domain.Subscription) error {
	query := `
        INSERT INTO subscriptions (
            id, owner_id, name, start_date, end_date, monthly_price,
            billing_cycle, billing_amount, original_currency, original_amount,
            exchange_rate, last_rate_update, notes, status, kind
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `
	_, err := r.db.Exec(ctx, query,
		sub.ID,
		sub.OwnerID,
		sub.Name,
		sub.StartDate,
		sub.EndDate,
		sub.MonthlyPrice,
		sub.BillingCycle,
		sub.BillingAmount,
		sub.OriginalCurrency,
		sub.OriginalAmount,
		sub.ExchangeRate,
		sub.LastRateUpdate,
		sub.Notes,
		sub.Status,
		sub.Kind,
	)
	return err
}

// UpdateStatus persists a status transition. decidedAt carries the moment the
// user made the decision and is NULL while the record is active.
func (r *Repository) UpdateStatus(ctx context.Context, ownerID string, id uuid.UUID, status domain.Status, decidedAt *time.Time) (*domain.Subscription, error) {
	query := `
        UPDATE subscriptions
        SET status = $1,
            decided_at = $2,
            updated_at = NOW()
        WHERE owner_id = $3 AND id = $4
        RETURNING ` + subscriptionColumns + `
    `
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, status, decidedAt, ownerID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return sub, nil
}

// Update rewrites the mutable attributes of a subscription in place.
func (r *Repository) Update(ctx context.Context, sub *domain.Subscription) error {
	query := `
        UPDATE subscriptions
        SET name = $1,
            start_date = $2,
            end_date = $3,
            monthly_price = $4,
            billing_cycle = $5,
            billing_amount = $6,
            original_currency = $7,
            original_amount = $8,
            exchange_rate = $9,
            last_rate_update = $10,
            notes = $11,
            status = $12,
            kind = $13,
            decided_at = $14,
            updated_at = NOW()
        WHERE owner_id = $15 AND id = $16
    `
	tag, err := r.db.Exec(ctx, query,
		sub.Name,
		sub.StartDate,
		sub.EndDate,
		sub.MonthlyPrice,
		sub.BillingCycle,
		sub.BillingAmount,
		sub.OriginalCurrency,
		sub.OriginalAmount,
		sub.ExchangeRate,
		sub.LastRateUpdate,
		sub.Notes,
		sub.Status,
		sub.Kind,
		sub.DecidedAt,
		sub.OwnerID,
		sub.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a subscription scoped to its owner.
func (r *Repository) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM subscriptions WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActive fetches every active subscription across all owners, soonest end
// date first. The daily reminder resync pass runs over this set.
func (r *Repository) ListActive(ctx context.Context) ([]domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE status = $1
        ORDER BY end_date ASC
    `
	return r.querySubscriptions(ctx, query, domain.StatusActive)
}

// ListActivePastEnd fetches, across all owners, active subscriptions whose end
// date passed before the cutoff. The expiry sweep transitions them to expired.
func (r *Repository) ListActivePastEnd(ctx context.Context, cutoff time.Time) ([]domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE status = $1 AND end_date < $2
        ORDER BY end_date ASC
    `
	return r.querySubscriptions(ctx, query, domain.StatusActive, cutoff)
}

// ListStaleExchangeRates fetches subscriptions carrying an original currency
// whose rate has not been refreshed since the cutoff.
func (r *Repository) ListStaleExchangeRates(ctx context.Context, cutoff time.Time) ([]domain.Subscription, error) {
	query := `
        SELECT ` + subscriptionColumns + `
        FROM subscriptions
        WHERE original_currency <> ''
          AND (last_rate_update IS NULL OR last_rate_update < $1)
        ORDER BY end_date ASC
    `
	return r.querySubscriptions(ctx, query, cutoff)
}

// GetPreferences loads the owner's reminder preferences, falling back to the
// defaults when the owner has never saved any.
func (r *Repository) GetPreferences(ctx context.Context, ownerID string) (domain.ReminderPreferences, error) {
	var prefs domain.ReminderPreferences
	query := `
        SELECT owner_id, three_day_reminder, one_day_reminder, day_of_reminder, hour, minute
        FROM reminder_preferences
        WHERE owner_id = $1
    `
	err := r.db.QueryRow(ctx, query, ownerID).Scan(
		&prefs.OwnerID,
		&prefs.ThreeDay,
		&prefs.OneDay,
		&prefs.DayOf,
		&prefs.Hour,
		&prefs.Minute,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DefaultReminderPreferences(ownerID), nil
		}
		return domain.ReminderPreferences{}, err
	}
	return prefs, nil
}

// SavePreferences upserts the owner's reminder preferences.
func (r *Repository) SavePreferences(ctx context.Context, prefs domain.ReminderPreferences) error {
	query := `
        INSERT INTO reminder_preferences (owner_id, three_day_reminder, one_day_reminder, day_of_reminder, hour, minute)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (owner_id) DO UPDATE SET
            three_day_reminder = EXCLUDED.three_day_reminder,
            one_day_reminder = EXCLUDED.one_day_reminder,
            day_of_reminder = EXCLUDED.day_of_reminder,
            hour = EXCLUDED.hour,
            minute = EXCLUDED.minute,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query,
		prefs.OwnerID,
		prefs.ThreeDay,
		prefs.OneDay,
		prefs.DayOf,
		prefs.Hour,
		prefs.Minute,
	)
	return err
}
