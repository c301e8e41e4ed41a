package repository

import (
	"context"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
)

// ListTasksInput filters the task listing used by the admin surface.
type ListTasksInput struct {
	Status     domain.TaskStatus // empty = any
	CursorTime *time.Time        // cursor on (created_at DESC, id DESC)
	CursorID   string
	Limit      int
}

// TaskRepository persists Task rows and exposes the narrow set of queries the
// enqueue loop, worker loop, and admin surface need.
type TaskRepository interface {
	Create(ctx context.Context, t *domain.Task) (*domain.Task, error)

	// Update overwrites the definition fields of the existing task with the
	// same name (t.Name; t.ID is not used), used by
	// the `schedulectl register --overwrite` admin path (spec.md §6.3).
	Update(ctx context.Context, t *domain.Task) (*domain.Task, error)

	GetByID(ctx context.Context, id string) (*domain.Task, error)
	GetByName(ctx context.Context, name string) (*domain.Task, error)
	List(ctx context.Context, input ListTasksInput) ([]*domain.Task, error)

	// ListRunnable returns every task the enqueue loop must consider this pass:
	// is_active = true AND status IN (active, shadow).
	ListRunnable(ctx context.Context) ([]*domain.Task, error)

	SetStatus(ctx context.Context, id string, status domain.TaskStatus) error
	Delete(ctx context.Context, id string) error

	// UpdateNextRunAt is the enqueue loop's best-effort, failure-swallowed
	// observability write (spec.md §4.4 step 4b / step 4).
	UpdateNextRunAt(ctx context.Context, id string, nextRunAt *time.Time) error

	// RecordRun updates last_run_status/last_run_at after a worker finishes
	// processing an occurrence of this task (spec.md §4.5e).
	RecordRun(ctx context.Context, id string, status string, when time.Time) error
}
