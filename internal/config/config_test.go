package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.Equal(t, 80, cfg.Scheduler.Workers)
	require.Equal(t, 80, cfg.Scheduler.BatchLimit)
	require.Equal(t, 10*time.Millisecond, cfg.Scheduler.IdleWait)
	require.Equal(t, "mock", cfg.Provider.Kind)
	require.True(t, cfg.TestMode())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emailflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_key: jdoe0101
production: true
scheduler:
  workers: 16
  idle_wait: 25ms
  strategy: lazy
provider:
  kind: openai
  max_delay: 1s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "jdoe0101", cfg.APIKey)
	require.False(t, cfg.TestMode())
	require.Equal(t, 16, cfg.Scheduler.Workers)
	require.Equal(t, 80, cfg.Scheduler.BatchLimit, "unset keys keep defaults")
	require.Equal(t, 25*time.Millisecond, cfg.Scheduler.IdleWait)
	require.Equal(t, "lazy", cfg.Scheduler.Strategy)
	require.Equal(t, "openai", cfg.Provider.Kind)
	require.Equal(t, time.Second, cfg.Provider.MaxDelay)
	require.Equal(t, 400*time.Millisecond, cfg.Provider.MinDelay)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scheduler: [1, 2"), 0o644))
	_, err = Load(path)
	require.Error(t, err)

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"EMAILFLOW_API_KEY":  "env-key",
		"EMAILFLOW_BASE_URL": "http://localhost:9090",
		"OPENAI_API_KEY":     "sk-env",
	}
	cfg := Default()
	cfg.APIKey = "file-key"
	cfg.ApplyEnv(func(k string) string { return env[k] })

	require.Equal(t, "env-key", cfg.APIKey)
	require.Equal(t, "http://localhost:9090", cfg.BaseURL)
	require.Equal(t, "sk-env", cfg.Provider.OpenAIKey)
	require.Empty(t, cfg.DBPath)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate(), "missing api key")

	cfg.APIKey = "k"
	require.NoError(t, cfg.Validate())

	cfg.Scheduler.Workers = 0
	cfg.Provider.MinDelay = 2 * time.Second
	err := cfg.Validate()
	require.ErrorContains(t, err, "workers must be positive")
	require.ErrorContains(t, err, "min_delay")

	offline := Default()
	offline.TasksFile = "tasks.yaml"
	require.NoError(t, offline.Validate(), "an offline run needs no api key")
}
