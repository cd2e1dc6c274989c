package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/gagps/ecommerce-cx/cli/pkg/output"
	"github.com/gagps/ecommerce-cx/common/dlq"

	natsclient "github.com/gagps/ecommerce-cx/common/messaging/nats"
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the invoice dead-letter queue",
	Long: `Storage events that failed ingestion on every delivery attempt are kept in a
dead-letter queue. The backend (jetstream or file) follows dlq.backend.`,
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered storage events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withDLQ(cmd.Context(), func(ctx context.Context, q dlq.Queue) error {
			events, err := q.List(ctx, limit)
			if err != nil {
				return err
			}
			if len(events) == 0 && outputFormat == output.FormatTable {
				output.Info("Dead-letter queue is empty")
				return nil
			}
			return output.Print(outputFormat, events, func() *output.Table {
				table := output.NewTable([]string{"TIME", "KEY", "REASON", "ATTEMPTS", "ERROR"})
				for _, ev := range events {
					table.AddRow([]string{
						ev.Timestamp.Format(time.RFC3339),
						ev.Key,
						ev.Reason,
						strconv.Itoa(ev.Attempts),
						truncate(ev.Error, 60),
					})
				}
				return table
			})
		})
	},
}

var dlqStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dead-letter queue statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDLQ(cmd.Context(), func(ctx context.Context, q dlq.Queue) error {
			st := q.Stats(ctx)
			return output.Print(outputFormat, st, func() *output.Table {
				table := output.NewTable([]string{"BACKEND", "LOCATION", "MESSAGES", "BYTES"})
				table.AddRow([]string{
					st.Backend,
					st.Location,
					strconv.FormatUint(st.Messages, 10),
					strconv.FormatUint(st.Bytes, 10),
				})
				return table
			})
		})
	},
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete every dead-lettered storage event",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("refusing to purge without --force")
		}
		return withDLQ(cmd.Context(), func(ctx context.Context, q dlq.Queue) error {
			if err := q.Purge(ctx); err != nil {
				return err
			}
			output.Success("Dead-letter queue purged")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dlqCmd)
	dlqCmd.AddCommand(dlqListCmd)
	dlqCmd.AddCommand(dlqStatsCmd)
	dlqCmd.AddCommand(dlqPurgeCmd)

	dlqListCmd.Flags().Int("limit", 50, "maximum number of events to list")
	dlqPurgeCmd.Flags().Bool("force", false, "confirm the purge")
}

// withDLQ opens the configured queue backend and runs fn against it.
func withDLQ(ctx context.Context, fn func(context.Context, dlq.Queue) error) error {
	c, err := loadedConfig()
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if c.DLQ.Backend == "file" {
		q, err := dlq.NewFileQueue(c.DLQ.BasePath)
		if err != nil {
			return err
		}
		return fn(ctx, q)
	}

	js, err := natsclient.NewJetStreamClient(natsclient.Config{
		URL:     c.NATS.URL,
		Name:    "ecx-cli",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return err
	}
	defer js.Close()

	q, err := dlq.NewJetStreamQueue(ctx, js)
	if err != nil {
		return err
	}
	return fn(ctx, q)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
