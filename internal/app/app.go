// Package app wires one emailflow run: fetch, build the graph, dispatch,
// record and report.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/emailflow/internal/config"
	"github.com/me/emailflow/internal/graph"
	"github.com/me/emailflow/internal/mailapi"
	"github.com/me/emailflow/internal/report"
	"github.com/me/emailflow/internal/responder"
	"github.com/me/emailflow/internal/scheduler"
	"github.com/me/emailflow/internal/store"
	"github.com/me/emailflow/internal/taskfile"
	"github.com/me/emailflow/internal/workunit"
	"github.com/me/emailflow/pkg/model"
)

// Fetcher supplies the batch of tasks for a run.
type Fetcher interface {
	FetchTasks(ctx context.Context) ([]model.Task, error)
}

// Options configures a run. Nil collaborators are built from Config.
type Options struct {
	Config config.Config
	Logger *slog.Logger

	Fetcher   Fetcher
	Submitter workunit.Submitter
	Generator responder.Generator
	Store     store.Store
	Exporter  *report.Exporter

	// Observers receive task lifecycle events in addition to the store.
	Observers []scheduler.Observer
	Now       func() time.Time
}

// Run executes one batch. Fetch, validation and cycle errors are returned
// before any task runs, with a nil report. Otherwise the report is always
// returned, together with the dispatcher's error (for example the context
// error when ctx was cancelled).
func Run(ctx context.Context, opts Options) (*report.Report, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	strategy, err := graph.ParseStrategy(cfg.Scheduler.Strategy)
	if err != nil {
		return nil, err
	}

	var client *mailapi.Client
	mailClient := func() *mailapi.Client {
		if client == nil {
			client = mailapi.NewClient(cfg.BaseURL, cfg.APIKey, cfg.TestMode(), logger)
		}
		return client
	}

	fetcher := opts.Fetcher
	source := cfg.TasksFile
	if fetcher == nil {
		if cfg.TasksFile != "" {
			fetcher = fileFetcher{path: cfg.TasksFile, now: now}
		} else {
			fetcher = mailClient()
			source = mailClient().BaseURL
		}
	}

	submitter := opts.Submitter
	if submitter == nil {
		if cfg.TasksFile != "" && cfg.BaseURL == "" {
			submitter = dryRunSubmitter{logger: logger.With("component", "dry-run")}
		} else {
			submitter = mailClient()
		}
	}

	gen := opts.Generator
	if gen == nil {
		gen, err = responder.New(responder.Config{
			Kind:          responder.Kind(cfg.Provider.Kind),
			MinDelay:      cfg.Provider.MinDelay,
			MaxDelay:      cfg.Provider.MaxDelay,
			DelayScale:    cfg.Provider.DelayScale,
			OpenAIKey:     cfg.Provider.OpenAIKey,
			OpenAIModel:   cfg.Provider.OpenAIModel,
			OpenAIBaseURL: cfg.Provider.OpenAIBaseURL,
			StrictErrors:  cfg.Provider.StrictErrors,
		}, logger)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("fetching emails", "source", source, "test_mode", cfg.TestMode())
	tasks, err := fetcher.FetchTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	logger.Info("fetched emails", "count", len(tasks))

	g, err := graph.Build(tasks)
	if err != nil {
		return nil, err
	}
	logger.Info("built dependency graph", "tasks", g.Len(), "roots", len(g.Roots()), "critical_path", g.CriticalPath())

	startedAt := now()
	dispatcherOpts := []scheduler.Option{scheduler.WithClock(now)}
	for _, o := range opts.Observers {
		dispatcherOpts = append(dispatcherOpts, scheduler.WithObserver(o))
	}

	// The ledger outlives the run context so a cancelled run is still closed out.
	ledgerCtx := context.WithoutCancel(ctx)
	if opts.Store != nil {
		run := &model.Run{
			ID:        runID,
			State:     model.RunStateRunning,
			Source:    source,
			TestMode:  cfg.TestMode(),
			Strategy:  string(strategy),
			Workers:   cfg.Scheduler.Workers,
			StartedAt: startedAt,
		}
		if err := opts.Store.CreateRun(ledgerCtx, run); err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
		dispatcherOpts = append(dispatcherOpts, scheduler.WithObserver(store.NewRecorder(ledgerCtx, opts.Store, runID, logger)))
	}

	d := scheduler.New(scheduler.Config{
		Workers:    cfg.Scheduler.Workers,
		BatchLimit: cfg.Scheduler.BatchLimit,
		IdleWait:   cfg.Scheduler.IdleWait,
		Strategy:   strategy,
	}, logger, dispatcherOpts...)

	unit := workunit.New(gen, submitter, logger, now)
	results, runErr := d.Run(ctx, g, unit.Func())
	stats := d.Stats()

	rep := report.New(runID, startedAt, now(), results)
	rep.Source = source
	rep.Strategy = string(strategy)
	rep.Workers = cfg.Scheduler.Workers
	rep.PeakInFlight = stats.PeakInFlight
	if runErr != nil {
		rep.Error = runErr.Error()
	}

	logger.Info("run finished",
		"succeeded", rep.Summary.Succeeded,
		"failed", rep.Summary.Failed,
		"late", rep.Summary.Late,
		"peak_in_flight", stats.PeakInFlight,
		"elapsed", rep.Duration(),
	)

	if opts.Store != nil {
		state := finalState(rep.Summary, runErr)
		if err := opts.Store.FinishRun(ledgerCtx, runID, state, rep.Summary, rep.Error); err != nil {
			logger.Error("finish run", "error", err)
		}
	}

	if cfg.Report != "" {
		exporter := opts.Exporter
		if exporter == nil {
			exporter = report.NewExporter(logger)
		}
		if err := exporter.Export(ledgerCtx, rep, cfg.Report); err != nil {
			logger.Error("export report", "dest", cfg.Report, "error", err)
			runErr = errors.Join(runErr, err)
		} else if opts.Store != nil {
			if err := opts.Store.SetReport(ledgerCtx, runID, cfg.Report); err != nil {
				logger.Error("record report", "error", err)
			}
		}
	}

	return rep, runErr
}

func finalState(summary model.Summary, runErr error) model.RunState {
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return model.RunStateCancelled
	case runErr != nil, !summary.AllSucceeded():
		return model.RunStateFailed
	}
	return model.RunStateCompleted
}

type fileFetcher struct {
	path string
	now  func() time.Time
}

func (f fileFetcher) FetchTasks(context.Context) ([]model.Task, error) {
	return taskfile.Load(f.path, f.now())
}

// dryRunSubmitter accepts every reply without sending it.
type dryRunSubmitter struct {
	logger *slog.Logger
}

func (s dryRunSubmitter) SubmitResult(_ context.Context, taskID, text string) bool {
	s.logger.Info("reply not sent (dry run)", "task_id", taskID, "size", len(text))
	return true
}
