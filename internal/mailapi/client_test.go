package mailapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/me/emailflow/internal/server"
	"github.com/me/emailflow/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sandbox(t *testing.T, cfg server.Config) (*server.Server, string) {
	t.Helper()
	now := time.Now()
	srv := server.New(cfg, []model.Task{
		{ID: "a", Subject: "First", Body: "hi", Deadline: 3 * time.Second, FetchTime: now},
		{ID: "b", Subject: "Second", Body: "hi", Deadline: 4 * time.Second, Dependencies: []string{"a"}, FetchTime: now},
	}, testLogger())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func TestFetchTasks(t *testing.T) {
	_, url := sandbox(t, server.Config{APIKey: "key"})
	c := NewClient(url, "key", true, testLogger())
	fetched := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fetched }

	tasks, err := c.FetchTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	require.Equal(t, "b", tasks[1].ID)
	require.Equal(t, []string{"a"}, tasks[1].Dependencies)
	require.Equal(t, 4*time.Second, tasks[1].Deadline)
	for _, task := range tasks {
		require.True(t, task.FetchTime.Equal(fetched))
	}
}

func TestFetchTasks_Errors(t *testing.T) {
	_, url := sandbox(t, server.Config{APIKey: "key"})

	_, err := NewClient(url, "wrong", true, testLogger()).FetchTasks(context.Background())
	var fe *model.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, http.StatusUnauthorized, fe.Status)

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>")
	}))
	defer garbage.Close()
	_, err = NewClient(garbage.URL, "key", false, testLogger()).FetchTasks(context.Background())
	require.ErrorAs(t, err, &fe)

	_, err = NewClient("http://127.0.0.1:1", "key", false, testLogger()).FetchTasks(context.Background())
	require.ErrorAs(t, err, &fe)
	require.Zero(t, fe.Status)
}

func TestFetchTasks_QueryParameters(t *testing.T) {
	var got map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = map[string]string{
			"path":      r.URL.Path,
			"api_key":   r.URL.Query().Get("api_key"),
			"test_mode": r.URL.Query().Get("test_mode"),
		}
		io.WriteString(w, "[]")
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL+"/", "key", false, testLogger()).FetchTasks(context.Background())
	require.NoError(t, err)
	require.Equal(t, map[string]string{"path": "/emails", "api_key": "key", "test_mode": ""}, got)

	_, err = NewClient(ts.URL, "key", true, testLogger()).FetchTasks(context.Background())
	require.NoError(t, err)
	require.Equal(t, "true", got["test_mode"])
}

func TestSubmitResult(t *testing.T) {
	srv, url := sandbox(t, server.Config{FailIDs: []string{"b"}})
	c := NewClient(url, "key", true, testLogger())
	ctx := context.Background()

	require.True(t, c.SubmitResult(ctx, "a", "Re: First\n\nok"))
	require.False(t, c.SubmitResult(ctx, "a", "Re: First\n\nagain"), "duplicate is rejected")
	require.False(t, c.SubmitResult(ctx, "b", "Re: Second\n\nok"), "injected failure")

	got := srv.Received()
	require.Len(t, got, 1)
	require.Equal(t, "true", got[0].TestMode)
	require.Equal(t, "key", got[0].APIKey)

	require.False(t, NewClient("http://127.0.0.1:1", "key", false, testLogger()).SubmitResult(ctx, "a", "x"))
}
