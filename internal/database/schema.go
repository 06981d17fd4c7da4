package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order on startup. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS musicians (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL DEFAULT '',
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS bookings (
		id                 TEXT PRIMARY KEY,
		musician_id        TEXT NOT NULL,
		client_id          TEXT NOT NULL,
		event_id           TEXT NOT NULL DEFAULT '',
		amount             BIGINT NOT NULL CHECK (amount > 0),
		currency           CHAR(3) NOT NULL,
		status             TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'confirmed', 'completed', 'cancelled')),
		payment_status     TEXT NOT NULL DEFAULT 'unpaid'
			CHECK (payment_status IN ('unpaid', 'paid', 'refunded', 'failed')),
		event_start        TIMESTAMPTZ NOT NULL,
		marked_complete_at TIMESTAMPTZ,
		funds_released_at  TIMESTAMPTZ,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_auto_release
		ON bookings (marked_complete_at) WHERE status = 'completed' AND funds_released_at IS NULL`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_incomplete
		ON bookings (event_start) WHERE status = 'confirmed' AND marked_complete_at IS NULL`,

	`CREATE TABLE IF NOT EXISTS escrow_entries (
		id                 TEXT PRIMARY KEY,
		booking_id         TEXT NOT NULL UNIQUE REFERENCES bookings (id),
		musician_id        TEXT NOT NULL,
		client_id          TEXT NOT NULL,
		gross_amount       BIGINT NOT NULL CHECK (gross_amount > 0),
		platform_fee       BIGINT NOT NULL CHECK (platform_fee >= 0),
		net_amount         BIGINT NOT NULL CHECK (net_amount >= 0),
		currency           CHAR(3) NOT NULL,
		state              TEXT NOT NULL DEFAULT 'held'
			CHECK (state IN ('held', 'released', 'refunded')),
		provider_reference TEXT NOT NULL,
		release_reason     TEXT CHECK (release_reason IN ('manual', 'auto', 'refund')),
		released_by        TEXT,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		released_at        TIMESTAMPTZ
	)`,

	`CREATE TABLE IF NOT EXISTS wallets (
		user_id             TEXT PRIMARY KEY,
		currency            CHAR(3) NOT NULL,
		ledger_balance      BIGINT NOT NULL DEFAULT 0 CHECK (ledger_balance >= 0),
		available_balance   BIGINT NOT NULL DEFAULT 0 CHECK (available_balance >= 0),
		total_earnings      BIGINT NOT NULL DEFAULT 0,
		total_withdrawn     BIGINT NOT NULL DEFAULT 0,
		pending_withdrawals BIGINT NOT NULL DEFAULT 0 CHECK (pending_withdrawals >= 0),
		version             INTEGER NOT NULL DEFAULT 1,
		updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS wallet_journal (
		id                      BIGSERIAL PRIMARY KEY,
		idempotency_key         TEXT NOT NULL UNIQUE,
		user_id                 TEXT NOT NULL,
		escrow_id               TEXT,
		operation               TEXT NOT NULL,
		amount                  BIGINT NOT NULL,
		currency                CHAR(3) NOT NULL,
		ledger_balance_after    BIGINT NOT NULL,
		available_balance_after BIGINT NOT NULL,
		created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_journal_user ON wallet_journal (user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS refund_obligations (
		id                 TEXT PRIMARY KEY,
		escrow_id          TEXT NOT NULL REFERENCES escrow_entries (id),
		booking_id         TEXT NOT NULL,
		client_id          TEXT NOT NULL,
		amount             BIGINT NOT NULL,
		currency           CHAR(3) NOT NULL,
		provider_reference TEXT NOT NULL UNIQUE,
		reason             TEXT NOT NULL,
		status             TEXT NOT NULL DEFAULT 'pending',
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS cancellations (
		id                   TEXT PRIMARY KEY,
		booking_id           TEXT NOT NULL UNIQUE REFERENCES bookings (id),
		cancelled_by         TEXT NOT NULL,
		role                 TEXT NOT NULL,
		category             TEXT NOT NULL,
		reason               TEXT NOT NULL DEFAULT '',
		is_late_cancellation BOOLEAN NOT NULL,
		penalty_applied      BOOLEAN NOT NULL,
		refund_issued        BOOLEAN NOT NULL,
		refund_amount        BIGINT NOT NULL DEFAULT 0,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS compliance_records (
		musician_id        TEXT PRIMARY KEY,
		late_cancellations INTEGER NOT NULL DEFAULT 0,
		no_shows           INTEGER NOT NULL DEFAULT 0,
		complaints         INTEGER NOT NULL DEFAULT 0,
		status             TEXT NOT NULL DEFAULT 'normal'
			CHECK (status IN ('normal', 'warned', 'suspended')),
		warned_at          TIMESTAMPTZ,
		suspended_at       TIMESTAMPTZ,
		updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS compliance_events (
		id              TEXT PRIMARY KEY,
		musician_id     TEXT NOT NULL,
		booking_id      TEXT,
		cancellation_id TEXT,
		kind            TEXT NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS payment_events (
		id               BIGSERIAL PRIMARY KEY,
		provider         TEXT NOT NULL,
		reference        TEXT NOT NULL,
		event_type       TEXT NOT NULL,
		booking_id       TEXT,
		amount           BIGINT NOT NULL DEFAULT 0,
		currency         CHAR(3),
		signature_valid  BOOLEAN NOT NULL,
		payload          JSONB,
		processed_at     TIMESTAMPTZ,
		processing_error TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (provider, reference, event_type)
	)`,

	`CREATE TABLE IF NOT EXISTS withdrawals (
		id              TEXT PRIMARY KEY,
		user_id         TEXT NOT NULL,
		amount          BIGINT NOT NULL CHECK (amount > 0),
		currency        CHAR(3) NOT NULL,
		bank_code       TEXT NOT NULL,
		account_number  TEXT NOT NULL,
		account_name    TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'settled', 'rejected')),
		idempotency_key TEXT NOT NULL UNIQUE,
		message_id      TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		settled_at      TIMESTAMPTZ
	)`,
}

// Migrate applies the schema inside a single transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return tx.Commit()
}
