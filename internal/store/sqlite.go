package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/emailflow/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// SQLite has a single writer, and each ":memory:" connection is its own database.
	db.SetMaxOpenConns(1)

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

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	state := run.State
	if state == "" {
		state = model.RunStateRunning
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, state, source, test_mode, strategy, workers, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(state), run.Source, boolToInt(run.TestMode), run.Strategy, run.Workers,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

const runColumns = `id, state, source, test_mode, strategy, workers, total, succeeded, failed, late,
	error, report, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
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
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
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

// FinishRun moves a running run to a terminal state and stores its tally.
func (s *SQLiteStore) FinishRun(ctx context.Context, id string, state model.RunState, summary model.Summary, errMsg string) error {
	s.logger.Debug("sql", "op", "finish", "table", "runs", "id", id, "state", state)

	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	if !run.State.CanTransitionTo(state) {
		return &model.InvalidTransitionError{ID: id, From: run.State, To: state}
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, total = ?, succeeded = ?, failed = ?, late = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		string(state), summary.Total, summary.Succeeded, summary.Failed, summary.Late, errMsg,
		time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	return err
}

// SetReport records where the run's report was exported.
func (s *SQLiteStore) SetReport(ctx context.Context, id, dest string) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", id, "report", dest)
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET report = ? WHERE id = ?`, dest, id)
	return err
}

// --- Task results ---

func (s *SQLiteStore) RecordResult(ctx context.Context, runID string, result model.Result) error {
	s.logger.Debug("sql", "op", "insert", "table", "task_results", "run_id", runID, "task_id", result.TaskID)

	var submittedAt *string
	var durationMS int64
	if !result.SubmittedAt.IsZero() {
		v := result.SubmittedAt.UTC().Format(time.RFC3339Nano)
		submittedAt = &v
		durationMS = result.CompletedAt.Sub(result.SubmittedAt).Milliseconds()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_results (run_id, task_id, success, missed_deadline, error, submitted_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, result.TaskID, boolToInt(result.Success), boolToInt(result.MissedDeadline), result.Err,
		submittedAt, result.CompletedAt.UTC().Format(time.RFC3339Nano), durationMS,
	)
	return err
}

func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]model.Result, error) {
	s.logger.Debug("sql", "op", "list", "table", "task_results", "run_id", runID)

	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, success, missed_deadline, error, submitted_at, completed_at
		 FROM task_results WHERE run_id = ? ORDER BY completed_at, task_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		var r model.Result
		var success, missed int
		var submittedAt *string
		var completedAt string
		if err := rows.Scan(&r.TaskID, &success, &missed, &r.Err, &submittedAt, &completedAt); err != nil {
			return nil, err
		}
		r.Success = success != 0
		r.MissedDeadline = missed != 0
		if submittedAt != nil {
			r.SubmittedAt, _ = time.Parse(time.RFC3339Nano, *submittedAt)
		}
		r.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var state, startedAt string
	var testMode int
	var finishedAt *string

	err := row.Scan(&run.ID, &state, &run.Source, &testMode, &run.Strategy, &run.Workers,
		&run.Summary.Total, &run.Summary.Succeeded, &run.Summary.Failed, &run.Summary.Late,
		&run.Error, &run.Report, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}
	run.State = model.RunState(state)
	run.TestMode = testMode != 0
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
		run.FinishedAt = &t
	}
	return &run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
