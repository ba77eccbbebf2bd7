/**
 * @description
 * Schema bootstrap for the subscription-service. EnsureSchema is run once at
 * startup and is safe to re-run; all statements are idempotent.
 */
package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS subscriptions (
		id UUID PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_date TIMESTAMPTZ NOT NULL,
		end_date TIMESTAMPTZ NOT NULL,
		monthly_price NUMERIC(12,2) NOT NULL,
		billing_cycle TEXT NOT NULL DEFAULT 'monthly',
		billing_amount NUMERIC(12,2) NOT NULL,
		original_currency TEXT NOT NULL DEFAULT '',
		original_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
		exchange_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_rate_update TIMESTAMPTZ,
		notes TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		kind TEXT NOT NULL DEFAULT 'trial',
		decided_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_owner ON subscriptions (owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_owner_status ON subscriptions (owner_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_subscriptions_end_date ON subscriptions (end_date)`,
	`CREATE TABLE IF NOT EXISTS reminder_preferences (
		owner_id TEXT PRIMARY KEY,
		three_day_reminder BOOLEAN NOT NULL DEFAULT TRUE,
		one_day_reminder BOOLEAN NOT NULL DEFAULT TRUE,
		day_of_reminder BOOLEAN NOT NULL DEFAULT TRUE,
		hour INT NOT NULL DEFAULT 9,
		minute INT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the tables and indexes this service relies on.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
