package store

import (
	"context"

	"github.com/me/tdist/pkg/model"
)

// Store defines the persistence layer for run history. Scheduling state is
// never persisted; only runs and per-item results are, so past durations and
// failures can be inspected after the fact.
type Store interface {
	// Run CRUD
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	UpdateRun(ctx context.Context, run *model.Run) error

	// Result operations
	CreateResult(ctx context.Context, res *model.ItemResult) error
	ListResults(ctx context.Context, runID string) ([]*model.ItemResult, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
