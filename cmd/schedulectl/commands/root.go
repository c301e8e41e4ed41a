// Package commands implements the schedulectl admin CLI: task registration,
// shadow backfill, and cutover — each a thin transactional wrapper over the
// ledger store (spec.md §4.7/§6.3), in the spirit of the original's
// standalone backfill scripts.
package commands

import (
	"context"

	"github.com/taskflow/scheduler/config"
	"github.com/taskflow/scheduler/internal/infrastructure/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the schedulectl command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "schedulectl",
		Short:   "Administer scheduler tasks: register, backfill, cutover",
		Version: version,
	}

	root.AddCommand(newRegisterCmd())
	root.AddCommand(newBackfillCmd())
	root.AddCommand(newCutoverCmd())

	return root
}

// connect loads config and opens the database pool shared by every
// subcommand. Callers are responsible for closing the returned pool.
func connect(ctx context.Context) (*pgxpool.Pool, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return pool, cfg, nil
}
