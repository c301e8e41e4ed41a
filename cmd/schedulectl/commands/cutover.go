package commands

import (
	"errors"
	"fmt"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/infrastructure/postgres"
	"github.com/spf13/cobra"
)

func newCutoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cutover <task_name>...",
		Short: "Set status=active for the named tasks",
		Long: `Promotes one or more shadow tasks to active. The next enqueue pass
transitions each task's already-materialized scheduled occurrences straight
to enqueued — occurrence_key collides, so no new row is inserted.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, _, err := connect(ctx)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			taskRepo := postgres.NewTaskStore(pool)

			for _, name := range args {
				task, err := taskRepo.GetByName(ctx, name)
				if err != nil {
					if errors.Is(err, domain.ErrTaskNotFound) {
						return fmt.Errorf("unknown task %q", name)
					}
					return fmt.Errorf("lookup %q: %w", name, err)
				}

				if err := taskRepo.SetStatus(ctx, task.ID, domain.StatusActive); err != nil {
					return fmt.Errorf("cutover %q: %w", name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cutover %s -> active\n", name)
			}
			return nil
		},
	}
	return cmd
}
