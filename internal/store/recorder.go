package store

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/me/emailflow/pkg/model"
)

// Recorder writes task results into the ledger as the dispatcher reports
// them. It satisfies scheduler.Observer.
//
// Write failures are logged and counted but never affect the run itself.
type Recorder struct {
	ctx    context.Context
	store  Store
	runID  string
	logger *slog.Logger

	started  atomic.Int64
	recorded atomic.Int64
	failures atomic.Int64
}

// NewRecorder returns a Recorder for runID. ctx bounds every write.
func NewRecorder(ctx context.Context, st Store, runID string, logger *slog.Logger) *Recorder {
	return &Recorder{
		ctx:    ctx,
		store:  st,
		runID:  runID,
		logger: logger.With("component", "recorder", "run_id", runID),
	}
}

// TaskStarted counts a task that began executing.
func (r *Recorder) TaskStarted(task model.Task, at time.Time) {
	r.started.Add(1)
	r.logger.Debug("task started", "task_id", task.ID, "at", at)
}

// TaskFinished persists result.
func (r *Recorder) TaskFinished(result model.Result) {
	if err := r.store.RecordResult(r.ctx, r.runID, result); err != nil {
		r.failures.Add(1)
		r.logger.Error("record result", "task_id", result.TaskID, "error", err)
		return
	}
	r.recorded.Add(1)
}

// Started returns how many tasks were reported as started.
func (r *Recorder) Started() int { return int(r.started.Load()) }

// Recorded returns how many results were written.
func (r *Recorder) Recorded() int { return int(r.recorded.Load()) }

// Failures returns how many results could not be written.
func (r *Recorder) Failures() int { return int(r.failures.Load()) }
