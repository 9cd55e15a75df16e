package repository

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS payments (
	id                      UUID PRIMARY KEY,
	transaction_id          TEXT NOT NULL,
	payee_first_name        TEXT NOT NULL,
	payee_last_name         TEXT NOT NULL,
	payee_payment_status    TEXT NOT NULL,
	payee_added_date_utc    TIMESTAMPTZ NOT NULL,
	payee_due_date          DATE NOT NULL,
	payee_address_line_1    TEXT NOT NULL,
	payee_address_line_2    TEXT,
	payee_city              TEXT NOT NULL,
	payee_country           CHAR(2) NOT NULL,
	payee_province_or_state TEXT,
	payee_postal_code       TEXT NOT NULL,
	payee_phone_number      TEXT NOT NULL,
	payee_email             TEXT NOT NULL,
	currency                CHAR(3) NOT NULL,
	discount_percent        NUMERIC(5,2) NOT NULL DEFAULT 0,
	tax_percent             NUMERIC(5,2) NOT NULL DEFAULT 0,
	due_amount              NUMERIC(14,2) NOT NULL,
	total_due               NUMERIC(14,2) NOT NULL,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS payments_due_date_idx ON payments (payee_due_date);

CREATE TABLE IF NOT EXISTS payment_evidence (
	id           UUID PRIMARY KEY,
	payment_id   UUID NOT NULL UNIQUE REFERENCES payments (id) ON DELETE CASCADE,
	filename     TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size         BIGINT NOT NULL,
	storage_key  TEXT NOT NULL,
	uploaded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the payment tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
