// Package db records pipeline runs in Postgres. Recording is optional:
// the CLI only opens a connection when a database URL is configured, and
// the local JSON history store remains the source of truth.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// DB wraps the Postgres connection.
type DB struct {
	conn *pgx.Conn
}

// Open connects to the database at the given URL.
func Open(ctx context.Context, url string) (*DB, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (d *DB) Close(ctx context.Context) error {
	return d.conn.Close(ctx)
}

const schemaV1 = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id          TEXT PRIMARY KEY,
    pipeline    TEXT NOT NULL,
    status      TEXT NOT NULL CHECK(status IN ('success','failed','timed_out')),
    timed_out   BOOLEAN NOT NULL DEFAULT FALSE,
    images      TEXT[],
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS step_results (
    run_id      TEXT NOT NULL REFERENCES pipeline_runs(id) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    step_id     TEXT,
    image       TEXT NOT NULL,
    status      TEXT NOT NULL,
    exit_code   INTEGER NOT NULL,
    started_at  TIMESTAMPTZ,
    finished_at TIMESTAMPTZ,
    error       TEXT,
    PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status, started_at DESC);
`

// Migrate applies the database schema. Safe to call on every open.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.conn.Exec(ctx, schemaV1); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
