package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/infrastructure/postgres"
	"github.com/taskflow/scheduler/internal/scheduleexpr"
	"github.com/spf13/cobra"
)

// taskDefinition is the declarative shape a registration file holds — one
// JSON object (or array of objects) per file.
type taskDefinition struct {
	Name             string              `json:"name"`
	Handler          string              `json:"handler"`
	Payload          map[string]any      `json:"payload"`
	ScheduleKind     domain.ScheduleKind `json:"schedule_kind"`
	ScheduleExpr     string              `json:"schedule_expr"`
	Timezone         string              `json:"timezone"`
	Status           domain.TaskStatus   `json:"status"`
	ConcurrencyLimit int                 `json:"concurrency_limit"`
	RetryPolicy      *domain.RetryPolicy `json:"retry_policy"`
	IdempotencyScope string              `json:"idempotency_scope"`
}

func newRegisterCmd() *cobra.Command {
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "register <definitions.json>...",
		Short: "Insert or update task rows from declarative JSON definitions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pool, _, err := connect(ctx)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer pool.Close()

			taskRepo := postgres.NewTaskStore(pool)

			var defs []taskDefinition
			for _, path := range args {
				fileDefs, err := readDefinitions(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				defs = append(defs, fileDefs...)
			}

			for _, def := range defs {
				if err := registerOne(ctx, taskRepo, def, overwrite); err != nil {
					return fmt.Errorf("register %q: %w", def.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", def.Name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "update the task row if a task with this name already exists")
	return cmd
}

func readDefinitions(path string) ([]taskDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var list []taskDefinition
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var single taskDefinition
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("parse task definition: %w", err)
	}
	return []taskDefinition{single}, nil
}

func registerOne(ctx context.Context, taskRepo *postgres.TaskStore, def taskDefinition, overwrite bool) error {
	if def.Timezone == "" {
		def.Timezone = "UTC"
	}
	if def.Status == "" {
		def.Status = domain.StatusShadow
	}
	if err := scheduleexpr.Validate(def.ScheduleKind, def.ScheduleExpr, def.Timezone); err != nil {
		return err
	}

	retryPolicy := domain.DefaultRetryPolicy
	if def.RetryPolicy != nil {
		retryPolicy = *def.RetryPolicy
	}

	task := &domain.Task{
		Name:             def.Name,
		Handler:          def.Handler,
		Payload:          def.Payload,
		ScheduleKind:     def.ScheduleKind,
		ScheduleExpr:     def.ScheduleExpr,
		Timezone:         def.Timezone,
		Status:           def.Status,
		IsActive:         true,
		ConcurrencyLimit: def.ConcurrencyLimit,
		RetryPolicy:      retryPolicy,
		IdempotencyScope: def.IdempotencyScope,
	}

	_, err := taskRepo.Create(ctx, task)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrTaskNameConflict) {
		return err
	}
	if !overwrite {
		return fmt.Errorf("%w (pass --overwrite to update)", err)
	}

	_, err = taskRepo.Update(ctx, task)
	return err
}
