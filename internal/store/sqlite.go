package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/tdist/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a
// Store. Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Run CRUD ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, state, total, completed, failed, nodes, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.State), run.Total, run.Completed, run.Failed, run.Nodes,
		run.StartedAt.Format(time.RFC3339Nano), formatTimePtr(run.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT id, state, total, completed, failed, nodes, started_at, completed_at
		 FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, state, total, completed, failed, nodes, started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID, "state", run.State)

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, total = ?, completed = ?, failed = ?, nodes = ?, completed_at = ?
		 WHERE id = ?`,
		string(run.State), run.Total, run.Completed, run.Failed, run.Nodes,
		formatTimePtr(run.CompletedAt), run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// --- Result operations ---

func (s *SQLiteStore) CreateResult(ctx context.Context, res *model.ItemResult) error {
	s.logger.Debug("sql", "op", "insert", "table", "results",
		"run_id", res.RunID, "idx", res.Index)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (run_id, idx, test_id, node_id, outcome, duration_ms, output)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Index, res.TestID, res.NodeID, string(res.Outcome),
		res.Duration.Milliseconds(), res.Output,
	)
	return err
}

func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]*model.ItemResult, error) {
	s.logger.Debug("sql", "op", "list", "table", "results", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, idx, test_id, node_id, outcome, duration_ms, output
		 FROM results WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*model.ItemResult
	for rows.Next() {
		var res model.ItemResult
		var outcome string
		var durationMs int64
		if err := rows.Scan(&res.RunID, &res.Index, &res.TestID, &res.NodeID,
			&outcome, &durationMs, &res.Output); err != nil {
			return nil, err
		}
		res.Outcome = model.Outcome(outcome)
		res.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, &res)
	}
	return results, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var state, startedAt string
	var completedAt sql.NullString

	if err := row.Scan(&run.ID, &state, &run.Total, &run.Completed, &run.Failed,
		&run.Nodes, &startedAt, &completedAt); err != nil {
		return nil, err
	}
	run.State = model.RunState(state)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, completedAt.String)
		run.CompletedAt = &t
	}
	return &run, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}
