// Package sqlite is the reference EventStore backend: a pure-Go,
// database/sql-driven SQLite store (modernc.org/sqlite, no cgo),
// following the teacher's habit of hand-built parameterized SQL over a
// pooled connection handle.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS event (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    aggregate_type TEXT NOT NULL,
    aggregate_id   TEXT NOT NULL,
    version        INTEGER NOT NULL,
    data           BLOB NOT NULL,
    metadata       BLOB,
    routing_key    TEXT NOT NULL,
    timestamp      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_aggregate ON event(aggregate_type, aggregate_id);
CREATE INDEX IF NOT EXISTS idx_event_type ON event(aggregate_type);
CREATE INDEX IF NOT EXISTS idx_event_routing ON event(routing_key, aggregate_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_event_version ON event(aggregate_type, aggregate_id, version);

CREATE TABLE IF NOT EXISTS snapshot (
    aggregate_type TEXT NOT NULL,
    aggregate_id   TEXT NOT NULL,
    cursor         TEXT NOT NULL,
    revision       TEXT NOT NULL,
    data           BLOB NOT NULL,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,
    PRIMARY KEY (aggregate_type, aggregate_id)
);

CREATE TABLE IF NOT EXISTS subscription_offset (
    subscription_name TEXT NOT NULL,
    routing_key       TEXT NOT NULL,
    cursor            TEXT NOT NULL,
    updated_at        INTEGER NOT NULL,
    PRIMARY KEY (subscription_name, routing_key)
);
`

// Migrate bootstraps the schema with CREATE TABLE/INDEX IF NOT EXISTS
// statements. Safe to call on every process start.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}
