package repository

import (
	"context"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
)

// ExecutionRepository persists one row per (occurrence, attempt_no).
type ExecutionRepository interface {
	// Create opens an execution record at the moment handler dispatch begins.
	// Returns the persisted row (with its DB-generated ID).
	Create(ctx context.Context, e *domain.Execution) (*domain.Execution, error)

	// MaxAttempt returns the highest attempt_no recorded for an occurrence, or
	// 0 if none exist yet — the worker computes attempt_no = MaxAttempt()+1.
	MaxAttempt(ctx context.Context, occurrenceID string) (int, error)

	// Complete closes an open execution with its terminal outcome.
	Complete(ctx context.Context, id string, status domain.ExecutionStatus, result map[string]any, execErr *domain.ExecutionError, finishedAt time.Time) error

	ListByOccurrence(ctx context.Context, occurrenceID string) ([]*domain.Execution, error)
}
