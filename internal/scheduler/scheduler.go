// Package scheduler runs a dependency graph of tasks on a bounded worker
// pool, dispatching each task once all of its dependencies are terminal.
package scheduler

import (
	"context"
	"time"

	"github.com/me/emailflow/internal/graph"
	"github.com/me/emailflow/pkg/model"
)

// Outcome is what a unit of work reports back for one task.
type Outcome struct {
	Success        bool
	MissedDeadline bool
	Err            error
}

// WorkFunc processes one task. It is called at most once per task and never
// concurrently for the same task.
type WorkFunc func(ctx context.Context, task model.Task) Outcome

// Observer receives task lifecycle events. TaskStarted is called from worker
// goroutines, TaskFinished from the dispatcher goroutine, so implementations
// must be safe for concurrent use. TaskFinished sees every task exactly once,
// including tasks that were cancelled before they started.
type Observer interface {
	TaskStarted(task model.Task, at time.Time)
	TaskFinished(result model.Result)
}

// Config holds dispatcher configuration.
type Config struct {
	// Workers bounds how many tasks execute at once.
	Workers int
	// BatchLimit caps how many ready tasks are drained per loop iteration.
	BatchLimit int
	// IdleWait bounds how long the loop waits for a completion or a
	// readiness signal before re-checking.
	IdleWait time.Duration
	// Strategy selects the readiness tracking strategy.
	Strategy graph.Strategy
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    80,
		BatchLimit: 80,
		IdleWait:   10 * time.Millisecond,
		Strategy:   graph.Eager,
	}
}

// Stats describes a finished run.
type Stats struct {
	Dispatched   int
	PeakInFlight int
	Cancelled    int
	Elapsed      time.Duration
}
