package cli

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/emailflow/internal/server"
	"github.com/me/emailflow/internal/taskfile"
	"github.com/me/emailflow/pkg/model"
)

func newServeCmd() *cobra.Command {
	var (
		addr     string
		apiKey   string
		tasks    string
		generate int
		maxDeps  int
		seed     uint64
		failIDs  []string
		latency  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local sandbox of the email service",
		Long: "serve starts an HTTP server with the same GET /emails and POST /responses\n" +
			"contract as the email service. Point `emailflow run --base-url` at it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			var batch []model.Task
			if tasks != "" {
				var err error
				batch, err = taskfile.Load(tasks, now)
				if err != nil {
					return err
				}
			} else {
				batch = taskfile.Random(generate, maxDeps, rand.New(rand.NewPCG(seed, seed)), now)
			}

			srv := server.New(server.Config{
				APIKey:  apiKey,
				FailIDs: failIDs,
				Latency: latency,
			}, batch, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sandbox serving %d emails on http://%s\n", len(batch), ln.Addr())
			return serve(ctx, &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}, ln)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Require this API key (empty accepts any)")
	cmd.Flags().StringVar(&tasks, "tasks", "", "Serve emails from a YAML/JSON file")
	cmd.Flags().IntVar(&generate, "generate", 20, "Number of random emails to serve when --tasks is not set")
	cmd.Flags().IntVar(&maxDeps, "max-deps", 3, "Maximum dependencies per generated email")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "Seed for generated emails")
	cmd.Flags().StringSliceVar(&failIDs, "fail", nil, "Email IDs whose replies are rejected with 500")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Artificial latency added to every reply")

	return cmd
}

// serve runs hs on ln until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, hs *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- hs.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down sandbox")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
