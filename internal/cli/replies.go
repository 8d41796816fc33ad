package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/emailflow/internal/server"
)

func newRepliesCmd() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "replies",
		Short: "List the replies a running sandbox has received",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewClient(serverURL, logger)
			resp, err := client.Get(cmd.Context(), "/responses")
			if err != nil {
				return fmt.Errorf("list replies: %w", err)
			}

			var received []server.Received
			if err := json.Unmarshal(resp.Data, &received); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(received) == 0 {
				fmt.Fprintln(out, "No replies received.")
				return nil
			}

			early := 0
			fmt.Fprintf(out, "%-16s  %-12s  %-5s  %s\n", "EMAIL", "RECEIVED", "EARLY", "SUBJECT")
			fmt.Fprintf(out, "%-16s  %-12s  %-5s  %s\n", "-----", "--------", "-----", "-------")
			for _, r := range received {
				if r.Early {
					early++
				}
				fmt.Fprintf(out, "%-16s  %-12s  %-5t  %s\n",
					r.EmailID, r.ReceivedAt.Format(time.TimeOnly+".000"), r.Early, firstLine(r.ResponseBody))
			}
			fmt.Fprintf(out, "\n%d replies, %d before their dependencies\n", len(received), early)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "Sandbox URL")

	return cmd
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
