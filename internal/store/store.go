package store

import (
	"context"

	"github.com/me/emailflow/pkg/model"
)

// Store is the run ledger: one row per run, one row per task result.
// It is an audit trail for finished work and is never used to resume a run.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error)
	FinishRun(ctx context.Context, id string, state model.RunState, summary model.Summary, errMsg string) error
	SetReport(ctx context.Context, id, dest string) error

	// Task results
	RecordResult(ctx context.Context, runID string, result model.Result) error
	ListResults(ctx context.Context, runID string) ([]model.Result, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
