package store

import (
	"context"
	"database/sql"
)

// schema contains the DDL for all tdist tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           TEXT PRIMARY KEY,
		state        TEXT NOT NULL DEFAULT 'WAITING',
		total        INTEGER NOT NULL DEFAULT 0,
		completed    INTEGER NOT NULL DEFAULT 0,
		failed       INTEGER NOT NULL DEFAULT 0,
		nodes        INTEGER NOT NULL DEFAULT 0,
		started_at   TEXT NOT NULL,
		completed_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS results (
		run_id      TEXT NOT NULL,
		idx         INTEGER NOT NULL,
		test_id     TEXT NOT NULL,
		node_id     TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		output      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, idx)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_results_run_id ON results(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_results_outcome ON results(run_id, outcome)`,
}

// migrate executes all schema DDL statements.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
