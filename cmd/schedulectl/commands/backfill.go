package commands

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/taskflow/scheduler/internal/infrastructure/postgres"
	"github.com/taskflow/scheduler/internal/scheduler"
	"github.com/spf13/cobra"
)

func newBackfillCmd() *cobra.Command {
	var nowFlag string

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Force-expand every shadow task's window and materialize occurrences in scheduled state",
		Long: `One enqueue pass restricted to tasks with status=shadow, creating occurrences
in state=scheduled. Workers never claim them — the claim predicate requires
state=enqueued — until an operator runs "schedulectl cutover".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			now := time.Now().UTC()
			if nowFlag != "" {
				parsed, err := time.Parse(time.RFC3339, nowFlag)
				if err != nil {
					return fmt.Errorf("--now: %w", err)
				}
				now = parsed.UTC()
			}

			pool, cfg, err := connect(ctx)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			taskRepo := postgres.NewTaskStore(pool)
			occurrenceRepo := postgres.NewOccurrenceStore(pool)
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))

			loop := scheduler.NewEnqueueLoop(
				taskRepo,
				occurrenceRepo,
				logger,
				time.Duration(cfg.EnqueueIntervalSec)*time.Second,
				time.Duration(cfg.LookaheadSeconds)*time.Second,
				cfg.MaxEnqueuedPerTask,
			)

			created, err := loop.Backfill(ctx, now)
			if err != nil {
				return fmt.Errorf("backfill: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %d occurrences in shadow mode\n", created)
			return nil
		},
	}

	cmd.Flags().StringVar(&nowFlag, "now", "", "RFC3339 timestamp to use instead of the current time")
	return cmd
}
