// Package migrations bootstraps the relational schema. Statements are
// idempotent and applied in order at startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS content_items (
		page TEXT NOT NULL,
		key TEXT NOT NULL,
		type TEXT NOT NULL,
		value JSONB NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_by TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (page, key)
	)`,
	`CREATE TABLE IF NOT EXISTS working_hours (
		instructor_id TEXT PRIMARY KEY,
		days JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS lessons (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		instructor_id TEXT NOT NULL,
		start_at TIMESTAMPTZ NOT NULL,
		end_at TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lessons_instructor_start ON lessons (instructor_id, start_at)`,
	`CREATE INDEX IF NOT EXISTS idx_lessons_start ON lessons (start_at)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		lesson_id TEXT,
		amount_cents BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		checkout_id TEXT,
		checkout_url TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_checkout ON payments (checkout_id) WHERE checkout_id IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS referral_codes (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS referral_redemptions (
		id TEXT PRIMARY KEY,
		code_id TEXT NOT NULL REFERENCES referral_codes(id),
		referee_id TEXT NOT NULL UNIQUE,
		credit_minutes INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Apply runs every statement in order. Each statement is idempotent, so a
// partially applied run can simply be re-run.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
