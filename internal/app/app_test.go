package app

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/me/emailflow/internal/config"
	"github.com/me/emailflow/internal/logging"
	"github.com/me/emailflow/internal/scheduler"
	"github.com/me/emailflow/internal/server"
	"github.com/me/emailflow/internal/store"
	"github.com/me/emailflow/internal/taskfile"
	"github.com/me/emailflow/pkg/model"
)

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	cfg.Scheduler.Workers = 8
	cfg.Scheduler.BatchLimit = 8
	cfg.Provider.MinDelay = 0
	cfg.Provider.MaxDelay = 0
	return cfg
}

func testStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:", logging.Discard())
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func sandbox(t *testing.T, cfg server.Config, tasks []model.Task) (*server.Server, string) {
	t.Helper()
	srv := server.New(cfg, tasks, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func TestRun_Sandbox(t *testing.T) {
	for _, strategy := range []string{"eager", "lazy"} {
		t.Run(strategy, func(t *testing.T) {
			tasks := taskfile.Random(40, 3, rand.New(rand.NewPCG(3, 5)), time.Now())
			srv, url := sandbox(t, server.Config{APIKey: "test-key"}, tasks)
			st := testStore(t)

			cfg := testConfig(url)
			cfg.Scheduler.Strategy = strategy
			cfg.Report = filepath.Join(t.TempDir(), "report.json")

			rep, err := Run(context.Background(), Options{Config: cfg, Logger: logging.Discard(), Store: st})
			require.NoError(t, err)
			require.Equal(t, model.Summary{Total: 40, Succeeded: 40}, rep.Summary)
			require.Equal(t, strategy, rep.Strategy)
			require.LessOrEqual(t, rep.PeakInFlight, 8)

			received := srv.Received()
			require.Len(t, received, 40)
			for _, r := range received {
				require.False(t, r.Early, "%s was answered before its dependencies", r.EmailID)
				require.Equal(t, "true", r.TestMode)
			}

			run, err := st.GetRun(context.Background(), rep.RunID)
			require.NoError(t, err)
			require.NotNil(t, run)
			require.Equal(t, model.RunStateCompleted, run.State)
			require.Equal(t, 40, run.Summary.Succeeded)
			require.Equal(t, cfg.Report, run.Report)

			results, err := st.ListResults(context.Background(), rep.RunID)
			require.NoError(t, err)
			require.Len(t, results, 40)

			_, err = os.Stat(cfg.Report)
			require.NoError(t, err)
		})
	}
}

func TestRun_FailedSubmissionUnblocksDependents(t *testing.T) {
	now := time.Now()
	tasks := []model.Task{
		{ID: "a", Subject: "A", Deadline: time.Minute, FetchTime: now},
		{ID: "b", Subject: "B", Deadline: time.Minute, Dependencies: []string{"a"}, FetchTime: now},
		{ID: "c", Subject: "C", Deadline: time.Minute, Dependencies: []string{"b"}, FetchTime: now},
	}
	_, url := sandbox(t, server.Config{APIKey: "test-key", FailIDs: []string{"a"}}, tasks)
	st := testStore(t)

	rep, err := Run(context.Background(), Options{Config: testConfig(url), Logger: logging.Discard(), Store: st})
	require.NoError(t, err)
	require.Equal(t, model.Summary{Total: 3, Succeeded: 2, Failed: 1}, rep.Summary)
	require.False(t, rep.Summary.AllSucceeded())

	run, err := st.GetRun(context.Background(), rep.RunID)
	require.NoError(t, err)
	require.Equal(t, model.RunStateFailed, run.State)
}

type staticFetcher []model.Task

func (f staticFetcher) FetchTasks(context.Context) ([]model.Task, error) { return f, nil }

func TestRun_CycleIsFatal(t *testing.T) {
	tasks := staticFetcher{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	}
	st := testStore(t)

	rep, err := Run(context.Background(), Options{
		Config:  testConfig("http://unused.invalid"),
		Logger:  logging.Discard(),
		Fetcher: tasks,
		Store:   st,
	})
	require.ErrorIs(t, err, model.ErrCycle)
	require.Nil(t, rep)

	_, total, err := st.ListRuns(context.Background(), model.DefaultListOptions())
	require.NoError(t, err)
	require.Zero(t, total, "no run is recorded for a rejected batch")
}

func TestRun_DanglingDependencyIsFatal(t *testing.T) {
	rep, err := Run(context.Background(), Options{
		Config:  testConfig("http://unused.invalid"),
		Logger:  logging.Discard(),
		Fetcher: staticFetcher{{ID: "a", Dependencies: []string{"ghost"}}},
	})
	require.ErrorIs(t, err, model.ErrValidation)
	require.Nil(t, rep)
}

func TestRun_FetchError(t *testing.T) {
	_, url := sandbox(t, server.Config{APIKey: "right-key"}, nil)
	cfg := testConfig(url)
	cfg.APIKey = "wrong-key"

	rep, err := Run(context.Background(), Options{Config: cfg, Logger: logging.Discard()})
	var fe *model.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, 401, fe.Status)
	require.Nil(t, rep)
}

func TestRun_TaskFileDryRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, taskfile.Write(path, taskfile.Random(12, 2, rand.New(rand.NewPCG(9, 9)), time.Now())))

	cfg := testConfig("")
	cfg.APIKey = ""
	cfg.TasksFile = path

	rep, err := Run(context.Background(), Options{Config: cfg, Logger: logging.Discard()})
	require.NoError(t, err)
	require.Equal(t, 12, rep.Summary.Succeeded)
	require.Equal(t, path, rep.Source)
}

// cancelOnStart cancels the run as soon as the first task starts.
type cancelOnStart struct {
	once   sync.Once
	cancel context.CancelFunc
}

func (c *cancelOnStart) TaskStarted(model.Task, time.Time) { c.once.Do(c.cancel) }
func (c *cancelOnStart) TaskFinished(model.Result)          {}

func TestRun_Cancelled(t *testing.T) {
	now := time.Now()
	tasks := staticFetcher{
		{ID: "a", Deadline: time.Minute, FetchTime: now},
		{ID: "b", Deadline: time.Minute, Dependencies: []string{"a"}, FetchTime: now},
		{ID: "c", Deadline: time.Minute, Dependencies: []string{"b"}, FetchTime: now},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := testStore(t)

	rep, err := Run(ctx, Options{
		Config:    testConfig("http://unused.invalid"),
		Logger:    logging.Discard(),
		Fetcher:   tasks,
		Submitter: acceptAll{},
		Store:     st,
		Observers: []scheduler.Observer{&cancelOnStart{cancel: cancel}},
	})
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rep)
	require.Equal(t, model.Summary{Total: 3, Succeeded: 1, Failed: 2}, rep.Summary)

	run, err := st.GetRun(context.Background(), rep.RunID)
	require.NoError(t, err)
	require.Equal(t, model.RunStateCancelled, run.State)

	results, err := st.ListResults(context.Background(), rep.RunID)
	require.NoError(t, err)
	require.Len(t, results, 3, "cancelled tasks are recorded too")
}

type acceptAll struct{}

func (acceptAll) SubmitResult(context.Context, string, string) bool { return true }

func TestRun_UnknownStrategy(t *testing.T) {
	cfg := testConfig("http://unused.invalid")
	cfg.Scheduler.Strategy = "random"
	_, err := Run(context.Background(), Options{Config: cfg, Logger: logging.Discard(), Fetcher: staticFetcher{}})
	require.Error(t, err)
}

func TestFinalState(t *testing.T) {
	require.Equal(t, model.RunStateCompleted, finalState(model.Summary{Total: 2, Succeeded: 2}, nil))
	require.Equal(t, model.RunStateFailed, finalState(model.Summary{Total: 2, Succeeded: 1, Failed: 1}, nil))
	require.Equal(t, model.RunStateCancelled, finalState(model.Summary{}, context.Canceled))
	require.Equal(t, model.RunStateFailed, finalState(model.Summary{}, errors.New("stalled")))
}
