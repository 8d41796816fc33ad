package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/emailflow/internal/config"
	"github.com/me/emailflow/internal/logging"
)

var (
	flagConfig    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	cfg    config.Config
)

// NewRootCmd creates the root cobra command for the emailflow CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "emailflow",
		Short: "emailflow: dependency- and deadline-aware email responder",
		Long: "emailflow fetches a batch of emails, replies to each one once every email it\n" +
			"depends on has been answered, and reports which replies missed their deadline.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(flagConfig)
			if err != nil {
				return err
			}
			cfg.ApplyEnv(os.Getenv)

			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = flagLogLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.LogFormat = flagLogFormat
			}
			logger = logging.FromFlags(cfg.LogLevel, cfg.LogFormat, flagDebug, cmd.ErrOrStderr())
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newRepliesCmd(),
	)

	return root
}
