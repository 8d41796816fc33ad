// Package config holds the run configuration. Values are layered: defaults,
// then an optional YAML file, then environment variables, then CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration of an emailflow run.
type Config struct {
	APIKey     string `yaml:"api_key"`     // Email service API key
	Production bool   `yaml:"production"`  // Production mode; test mode otherwise
	BaseURL    string `yaml:"base_url"`    // Email service base URL ("" = default)
	TasksFile  string `yaml:"tasks_file"`  // Load tasks from a file instead of the service

	Scheduler SchedulerConfig `yaml:"scheduler"`
	Provider  ProviderConfig  `yaml:"provider"`

	DBPath    string `yaml:"db_path"`    // SQLite run ledger ("" = disabled)
	Report    string `yaml:"report"`     // Report destination: file path or s3://bucket/key
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
}

// SchedulerConfig configures the dispatcher.
type SchedulerConfig struct {
	Workers    int           `yaml:"workers"`
	BatchLimit int           `yaml:"batch_limit"`
	IdleWait   time.Duration `yaml:"idle_wait"`
	Strategy   string        `yaml:"strategy"` // eager or lazy
}

// ProviderConfig configures response generation.
type ProviderConfig struct {
	Kind          string        `yaml:"kind"` // mock or openai
	MinDelay      time.Duration `yaml:"min_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	DelayScale    time.Duration `yaml:"delay_scale"`
	OpenAIKey     string        `yaml:"openai_key"`
	OpenAIModel   string        `yaml:"openai_model"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	StrictErrors  bool          `yaml:"strict_errors"`
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Scheduler: SchedulerConfig{
			Workers:    80,
			BatchLimit: 80,
			IdleWait:   10 * time.Millisecond,
			Strategy:   "eager",
		},
		Provider: ProviderConfig{
			Kind:        "mock",
			MinDelay:    400 * time.Millisecond,
			MaxDelay:    600 * time.Millisecond,
			DelayScale:  500 * time.Millisecond,
			OpenAIModel: "gpt-3.5-turbo",
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// TestMode reports whether the email service should be used in test mode.
func (c *Config) TestMode() bool {
	return !c.Production
}

// Load returns Default overlaid with the YAML file at path. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("EMAILFLOW_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := getenv("EMAILFLOW_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := getenv("EMAILFLOW_DB"); v != "" {
		c.DBPath = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.Provider.OpenAIKey = v
	}
}

// Validate checks the configuration for a run.
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" && c.TasksFile == "" {
		errs = append(errs, errors.New("api key is required (--api-key or EMAILFLOW_API_KEY)"))
	}
	if c.Scheduler.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Scheduler.Workers))
	}
	if c.Scheduler.BatchLimit <= 0 {
		errs = append(errs, fmt.Errorf("batch limit must be positive, got %d", c.Scheduler.BatchLimit))
	}
	if c.Provider.MinDelay > c.Provider.MaxDelay {
		errs = append(errs, fmt.Errorf("provider min_delay %s exceeds max_delay %s", c.Provider.MinDelay, c.Provider.MaxDelay))
	}
	return errors.Join(errs...)
}
