package repositories

import (
	"context"
	"fmt"
	"strings"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS clients (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		contact_email      TEXT NOT NULL DEFAULT '',
		delivery_email     TEXT NOT NULL DEFAULT '',
		phone              TEXT NOT NULL DEFAULT '',
		balance_cents      BIGINT NOT NULL DEFAULT 0,
		leads_purchased    INTEGER NOT NULL DEFAULT 0,
		leads_delivered    INTEGER NOT NULL DEFAULT 0,
		leads_replaced     INTEGER NOT NULL DEFAULT 0,
		sheets_id          TEXT NOT NULL DEFAULT '',
		stripe_customer_id TEXT NOT NULL DEFAULT '',
		throttle_mode      TEXT NOT NULL DEFAULT 'standard',
		active             BOOLEAN NOT NULL DEFAULT TRUE,
		created_at         {{ts}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS leads (
		id                 TEXT PRIMARY KEY,
		first_name         TEXT NOT NULL,
		last_name          TEXT NOT NULL DEFAULT '',
		phone              TEXT NOT NULL,
		email              TEXT NOT NULL DEFAULT '',
		carrier            TEXT NOT NULL DEFAULT '',
		state              TEXT NOT NULL,
		incident_type      TEXT NOT NULL,
		timeframe          TEXT NOT NULL,
		injury_type        TEXT NOT NULL,
		received_treatment TEXT NOT NULL,
		hospitalized       BOOLEAN NOT NULL DEFAULT FALSE,
		surgery            BOOLEAN NOT NULL DEFAULT FALSE,
		still_in_treatment TEXT NOT NULL,
		missed_work        TEXT NOT NULL,
		lost_wages         INTEGER NOT NULL DEFAULT 0,
		insurance_contact  TEXT NOT NULL,
		has_attorney       TEXT NOT NULL,
		score              INTEGER NOT NULL,
		tier               TEXT NOT NULL,
		tier_override      TEXT NOT NULL DEFAULT '',
		estimate_low       INTEGER NOT NULL,
		estimate_high      INTEGER NOT NULL,
		verified           BOOLEAN NOT NULL DEFAULT FALSE,
		delivered          BOOLEAN NOT NULL DEFAULT FALSE,
		disputed           BOOLEAN NOT NULL DEFAULT FALSE,
		dispute_reason     TEXT NOT NULL DEFAULT '',
		replaced           BOOLEAN NOT NULL DEFAULT FALSE,
		client_id          TEXT REFERENCES clients(id),
		exclusive_until    {{ts}},
		delivered_at       {{ts}},
		created_at         {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_phone_created ON leads (phone, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_leads_client ON leads (client_id)`,
	`CREATE TABLE IF NOT EXISTS verification_codes (
		id         TEXT PRIMARY KEY,
		phone      TEXT NOT NULL,
		code_hash  TEXT NOT NULL,
		created_at {{ts}} NOT NULL,
		expires_at {{ts}} NOT NULL,
		attempts   INTEGER NOT NULL DEFAULT 0,
		used       BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_codes_phone_created ON verification_codes (phone, created_at)`,
	`CREATE TABLE IF NOT EXISTS delivery_schedules (
		id                TEXT PRIMARY KEY,
		client_id         TEXT NOT NULL REFERENCES clients(id),
		mode              TEXT NOT NULL,
		quantity          INTEGER NOT NULL,
		start_date        TEXT NOT NULL,
		targets           {{json}} NOT NULL,
		delivered_by_date {{json}} NOT NULL,
		created_at        {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_schedules_client ON delivery_schedules (client_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS deliveries (
		id              TEXT PRIMARY KEY,
		lead_id         TEXT NOT NULL REFERENCES leads(id),
		client_id       TEXT NOT NULL REFERENCES clients(id),
		method          TEXT NOT NULL,
		status          TEXT NOT NULL,
		errors          {{json}} NOT NULL,
		exclusive_until {{ts}},
		delivered_at    {{ts}} NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_deliveries_lead ON deliveries (lead_id)`,
	`CREATE INDEX IF NOT EXISTS idx_deliveries_client ON deliveries (client_id, delivered_at)`,
}

func (s *SQLStore) ddl(stmt string) string {
	ts, js := "TIMESTAMPTZ", "JSONB"
	if s.dialect == SQLite {
		ts, js = "DATETIME", "TEXT"
	}
	return strings.NewReplacer("{{ts}}", ts, "{{json}}", js).Replace(stmt)
}

// Migrate creates the tables and indexes. It is safe to run repeatedly.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, s.ddl(stmt)); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
