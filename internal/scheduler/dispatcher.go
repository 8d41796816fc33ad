package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/me/emailflow/internal/graph"
	"github.com/me/emailflow/pkg/model"
)

// ErrStalled is returned if no task is running and none can become ready
// while results are still missing. Build rejects every input that could
// lead here, so it indicates a bug.
var ErrStalled = errors.New("scheduler stalled")

// Dispatcher drives one graph to completion.
type Dispatcher struct {
	config    Config
	logger    *slog.Logger
	observers []Observer
	now       func() time.Time

	mu    sync.Mutex
	stats Stats
}

// Option configures optional Dispatcher dependencies.
type Option func(*Dispatcher)

// WithObserver registers an Observer for task lifecycle events.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		d.observers = append(d.observers, o)
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		d.now = now
	}
}

// New creates a Dispatcher. Non-positive config values fall back to
// DefaultConfig.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = def.BatchLimit
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = def.IdleWait
	}
	if cfg.Strategy == "" {
		cfg.Strategy = def.Strategy
	}
	d := &Dispatcher{
		config: cfg,
		logger: logger.With("component", "dispatcher"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Stats returns statistics of the most recent Run.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// job is a task handed to a worker.
type job struct {
	task model.Task
}

// finished is a worker's report for one job.
type finished struct {
	taskID    string
	outcome   Outcome
	startedAt time.Time
}

// Run executes every task of g with work and returns one result per task.
//
// A task is handed to work only after all its dependencies have a result.
// Every task completion unlocks its dependents, whether or not the task
// succeeded. When ctx is cancelled no new task is started; running tasks
// finish (their context is detached from ctx), every task that never
// started gets a failed result, and ctx.Err() is returned with the results.
func (d *Dispatcher) Run(ctx context.Context, g *graph.Graph, work WorkFunc) (map[string]model.Result, error) {
	start := d.now()
	total := g.Len()
	results := make(map[string]model.Result, total)

	d.mu.Lock()
	d.stats = Stats{}
	d.mu.Unlock()

	if total == 0 {
		return results, nil
	}

	tracker := graph.NewTracker(g, d.config.Strategy)
	workers := d.config.Workers
	if workers > total {
		workers = total
	}

	d.logger.Info("dispatch started",
		"tasks", total,
		"workers", workers,
		"batch_limit", d.config.BatchLimit,
		"strategy", tracker.Strategy(),
		"critical_path", g.CriticalPath())

	// jobs never blocks: at most `workers` tasks are in flight at once.
	jobs := make(chan job, workers)
	done := make(chan finished, total)
	workCtx := context.WithoutCancel(ctx)

	var pool errgroup.Group
	for i := 0; i < workers; i++ {
		pool.Go(func() error {
			for j := range jobs {
				done <- d.execute(workCtx, j.task, work)
			}
			return nil
		})
	}

	inFlight := make(map[string]time.Time, workers)
	ctxDone := ctx.Done()
	cancelled := false
	var runErr error

	timer := time.NewTimer(d.config.IdleWait)
	defer timer.Stop()

	for len(results) < total {
		if !cancelled && ctx.Err() != nil {
			ctxDone = nil
			cancelled = true
		}
		if !cancelled {
			if free := workers - len(inFlight); free > 0 {
				limit := d.config.BatchLimit
				if free < limit {
					limit = free
				}
				for _, id := range tracker.Drain(limit) {
					if _, busy := inFlight[id]; busy {
						continue
					}
					if _, seen := results[id]; seen {
						continue
					}
					inFlight[id] = d.now()
					d.noteDispatch(len(inFlight))
					jobs <- job{task: *g.Task(id)}
				}
			}
			if len(inFlight) == 0 {
				runErr = fmt.Errorf("%w: %d of %d tasks have no result", ErrStalled, total-len(results), total)
				break
			}
		} else if len(inFlight) == 0 {
			break
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(d.config.IdleWait)

		select {
		case f := <-done:
			d.record(tracker, g, f, inFlight, results)
			// Collect whatever else has already finished.
			for more := true; more; {
				select {
				case f := <-done:
					d.record(tracker, g, f, inFlight, results)
				default:
					more = false
				}
			}
		case <-tracker.Ready():
		case <-ctxDone:
			ctxDone = nil
			cancelled = true
			d.logger.Warn("dispatch cancelled, draining in-flight tasks", "in_flight", len(inFlight))
		case <-timer.C:
		}
	}

	close(jobs)
	_ = pool.Wait()

	if cancelled {
		runErr = ctx.Err()
		n := 0
		for _, id := range g.Order {
			if _, ok := results[id]; ok {
				continue
			}
			res := model.Result{TaskID: id, Err: "cancelled", CompletedAt: d.now()}
			results[id] = res
			for _, o := range d.observers {
				o.TaskFinished(res)
			}
			n++
		}
		d.mu.Lock()
		d.stats.Cancelled = n
		d.mu.Unlock()
	}

	d.mu.Lock()
	d.stats.Elapsed = d.now().Sub(start)
	stats := d.stats
	d.mu.Unlock()

	d.logger.Info("dispatch finished",
		"tasks", total,
		"results", len(results),
		"peak_in_flight", stats.PeakInFlight,
		"elapsed", stats.Elapsed)

	return results, runErr
}

// execute runs work for one task on a worker goroutine.
func (d *Dispatcher) execute(ctx context.Context, task model.Task, work WorkFunc) (f finished) {
	f.taskID = task.ID
	f.startedAt = d.now()
	for _, o := range d.observers {
		o.TaskStarted(task, f.startedAt)
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("task panicked", "task_id", task.ID, "panic", r)
			f.outcome = Outcome{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	f.outcome = work(ctx, task)
	return f
}

// record stores a finished task and unlocks its dependents. Failed tasks
// unlock them too, so one failure never blocks a chain forever.
func (d *Dispatcher) record(tracker *graph.Tracker, g *graph.Graph, f finished, inFlight map[string]time.Time, results map[string]model.Result) {
	delete(inFlight, f.taskID)

	task := g.Task(f.taskID)
	res := model.Result{
		TaskID:         f.taskID,
		Success:        f.outcome.Success && f.outcome.Err == nil,
		MissedDeadline: f.outcome.MissedDeadline,
		SubmittedAt:    f.startedAt,
		CompletedAt:    d.now(),
	}
	if f.outcome.Err != nil {
		res.Err = f.outcome.Err.Error()
	}
	results[f.taskID] = res

	if err := tracker.OnCompleted(f.taskID); err != nil {
		d.logger.Error("completion rejected", "task_id", f.taskID, "error", err)
	}

	if res.Success {
		d.logger.Debug("task completed", "task_id", f.taskID, "late", res.MissedDeadline, "deadline", task.Deadline)
	} else {
		d.logger.Info("task failed", "task_id", f.taskID, "error", res.Err)
	}

	for _, o := range d.observers {
		o.TaskFinished(res)
	}
}

func (d *Dispatcher) noteDispatch(inFlight int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Dispatched++
	if inFlight > d.stats.PeakInFlight {
		d.stats.PeakInFlight = inFlight
	}
}
