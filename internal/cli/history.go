package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/emailflow/pkg/model"
)

func newHistoryCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show the results of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dbPath == "" {
				dbPath = cfg.DBPath
			}
			if dbPath == "" {
				return fmt.Errorf("no database: pass --db or set db_path in the config")
			}
			ctx := cmd.Context()
			st, err := openStore(ctx, dbPath)
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()

			if len(args) == 1 {
				run, err := st.GetRun(ctx, args[0])
				if err != nil {
					return fmt.Errorf("get run: %w", err)
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				results, err := st.ListResults(ctx, run.ID)
				if err != nil {
					return fmt.Errorf("list results: %w", err)
				}

				fmt.Fprintf(out, "Run:       %s\n", run.ID)
				fmt.Fprintf(out, "State:     %s\n", run.State)
				fmt.Fprintf(out, "Source:    %s\n", run.Source)
				fmt.Fprintf(out, "Strategy:  %s (%d workers)\n", run.Strategy, run.Workers)
				fmt.Fprintf(out, "Started:   %s\n", run.StartedAt.Format(time.RFC3339))
				if d := run.Duration(); d > 0 {
					fmt.Fprintf(out, "Duration:  %s\n", d.Round(time.Millisecond))
				}
				if run.Report != "" {
					fmt.Fprintf(out, "Report:    %s\n", run.Report)
				}
				if run.Error != "" {
					fmt.Fprintf(out, "Error:     %s\n", run.Error)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "%-16s  %-7s  %-5s  %s\n", "EMAIL", "SUCCESS", "LATE", "ERROR")
				fmt.Fprintf(out, "%-16s  %-7s  %-5s  %s\n", "-----", "-------", "----", "-----")
				for _, r := range results {
					fmt.Fprintf(out, "%-16s  %-7t  %-5t  %s\n", r.TaskID, r.Success, r.MissedDeadline, r.Err)
				}
				return nil
			}

			runs, total, err := st.ListRuns(ctx, model.ListOptions{Limit: limit})
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded.")
				return nil
			}

			fmt.Fprintf(out, "%-36s  %-10s  %-9s  %-5s  %s\n", "ID", "STATE", "OK/TOTAL", "LATE", "STARTED")
			fmt.Fprintf(out, "%-36s  %-10s  %-9s  %-5s  %s\n", "--", "-----", "--------", "----", "-------")
			for _, run := range runs {
				fmt.Fprintf(out, "%-36s  %-10s  %-9s  %-5d  %s\n",
					run.ID, run.State,
					fmt.Sprintf("%d/%d", run.Summary.Succeeded, run.Summary.Total),
					run.Summary.Late,
					run.StartedAt.Format(time.RFC3339))
			}
			if total > len(runs) {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database written by `run --db`")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")

	return cmd
}
