// Package migrations creates the PostgreSQL schema. Statements are
// idempotent; Apply runs at every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS runlet_routes (
		id              TEXT PRIMARY KEY,
		method          TEXT NOT NULL,
		path            TEXT NOT NULL,
		language        TEXT NOT NULL,
		source          TEXT NOT NULL,
		auth_mode       TEXT NOT NULL DEFAULT 'none',
		rate_limit      JSONB NOT NULL DEFAULT '{}',
		timeout_seconds INTEGER NOT NULL DEFAULT 0,
		env             JSONB NOT NULL DEFAULT '{}',
		enabled         BOOLEAN NOT NULL DEFAULT TRUE,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL,
		UNIQUE (method, path)
	)`,
	`CREATE TABLE IF NOT EXISTS runlet_credentials (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		token          TEXT NOT NULL UNIQUE,
		method         TEXT NOT NULL DEFAULT 'header',
		custom_header  TEXT NOT NULL DEFAULT '',
		permissions    JSONB NOT NULL DEFAULT '["*"]',
		quota_enabled  BOOLEAN NOT NULL DEFAULT FALSE,
		quota_limit    BIGINT NOT NULL DEFAULT 0,
		quota_period   TEXT NOT NULL DEFAULT '',
		quota_used     BIGINT NOT NULL DEFAULT 0,
		quota_reset_at TIMESTAMPTZ,
		enabled        BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at     TIMESTAMPTZ,
		created_at     TIMESTAMPTZ NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runlet_execution_logs (
		id            TEXT PRIMARY KEY,
		route_id      TEXT NOT NULL DEFAULT '',
		method        TEXT NOT NULL,
		path          TEXT NOT NULL,
		identifier    TEXT NOT NULL DEFAULT '',
		credential_id TEXT NOT NULL DEFAULT '',
		status        INTEGER NOT NULL,
		success       BOOLEAN NOT NULL,
		duration_ms   BIGINT NOT NULL DEFAULT 0,
		log           TEXT NOT NULL DEFAULT '',
		error         TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runlet_routes_method ON runlet_routes (method)`,
	`CREATE INDEX IF NOT EXISTS idx_runlet_credentials_token ON runlet_credentials (token)`,
	`CREATE INDEX IF NOT EXISTS idx_runlet_execution_logs_route ON runlet_execution_logs (route_id, created_at DESC)`,
}

// Apply executes the schema statements in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
