package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/me/emailflow/internal/app"
	"github.com/me/emailflow/internal/store"
)

// ErrIncomplete is returned by the run command when at least one email
// failed, so the process exits non-zero.
var ErrIncomplete = errors.New("some emails failed to process")

func newRunCmd() *cobra.Command {
	var (
		apiKey     string
		production bool
		baseURL    string
		workers    int
		batch      int
		strategy   string
		provider   string
		model      string
		tasksFile  string
		dbPath     string
		reportDest string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch emails and reply to all of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("api-key") {
				cfg.APIKey = apiKey
			}
			if flags.Changed("production") {
				cfg.Production = production
			}
			if flags.Changed("base-url") {
				cfg.BaseURL = baseURL
			}
			if flags.Changed("workers") {
				cfg.Scheduler.Workers = workers
			}
			if flags.Changed("batch") {
				cfg.Scheduler.BatchLimit = batch
			}
			if flags.Changed("strategy") {
				cfg.Scheduler.Strategy = strategy
			}
			if flags.Changed("provider") {
				cfg.Provider.Kind = provider
			}
			if flags.Changed("openai-model") {
				cfg.Provider.OpenAIModel = model
			}
			if flags.Changed("tasks") {
				cfg.TasksFile = tasksFile
			}
			if flags.Changed("db") {
				cfg.DBPath = dbPath
			}
			if flags.Changed("report") {
				cfg.Report = reportDest
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			opts := app.Options{Config: cfg, Logger: logger}
			if cfg.DBPath != "" {
				st, err := openStore(ctx, cfg.DBPath)
				if err != nil {
					return err
				}
				defer st.Close()
				opts.Store = st
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Starting Email Response System")
			fmt.Fprintf(out, "API Key: %s\n", maskKey(cfg.APIKey))
			fmt.Fprintf(out, "Test Mode: %t\n", cfg.TestMode())
			fmt.Fprintln(out, strings.Repeat("-", 50))

			rep, err := app.Run(ctx, opts)
			if rep == nil {
				return err
			}
			if werr := rep.WriteText(out); werr != nil {
				return werr
			}
			if err != nil {
				return err
			}
			if !rep.Summary.AllSucceeded() {
				fmt.Fprintln(out, "Some emails failed to process")
				return ErrIncomplete
			}
			fmt.Fprintln(out, "All emails processed successfully!")
			return nil
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "Email service API key (or EMAILFLOW_API_KEY)")
	cmd.Flags().BoolVar(&production, "production", false, "Run against production instead of test mode")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Email service base URL (or EMAILFLOW_BASE_URL)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Maximum concurrent emails (default 80)")
	cmd.Flags().IntVar(&batch, "batch", 0, "Maximum emails dispatched per loop iteration (default 80)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Readiness strategy: eager or lazy")
	cmd.Flags().StringVar(&provider, "provider", "", "Response provider: mock or openai")
	cmd.Flags().StringVar(&model, "openai-model", "", "OpenAI model name")
	cmd.Flags().StringVar(&tasksFile, "tasks", "", "Read emails from a YAML/JSON file instead of the service")
	cmd.Flags().StringVar(&dbPath, "db", "", "Record the run in this SQLite database")
	cmd.Flags().StringVar(&reportDest, "report", "", "Write a JSON report to a path or s3://bucket/key")

	return cmd
}

func openStore(ctx context.Context, path string) (*store.SQLiteStore, error) {
	st, err := store.NewSQLiteStore(path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return st, nil
}

// maskKey hides all but the last four characters of an API key.
func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}
