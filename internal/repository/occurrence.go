package repository

import (
	"context"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
)

// UpsertOccurrenceInput is the atomic idempotent upsert primitive from
// spec.md §4.1(1): insert if absent; on conflict on (task_id, occurrence_key),
// update only updated_at and return the existing row's id. The occurrence's
// state is never clobbered by this call.
type UpsertOccurrenceInput struct {
	TaskID        string
	OccurrenceKey string
	ScheduledFor  time.Time
	InitialState  domain.OccurrenceState
	EnqueuedAt    *time.Time
}

// ListOccurrencesInput filters the admin/read listing of a task's occurrences.
type ListOccurrencesInput struct {
	TaskID     string
	CursorTime *time.Time
	CursorID   string
	Limit      int
}

// OccurrenceRepository persists Occurrence rows and exposes the claim/
// transition primitives the worker loop and retry scheduler depend on.
type OccurrenceRepository interface {
	// UpsertOccurrence is the primitive from spec.md §4.1(1).
	UpsertOccurrence(ctx context.Context, input UpsertOccurrenceInput, now time.Time) (domain.UpsertOutcome, error)

	GetByID(ctx context.Context, id string) (*domain.Occurrence, error)
	List(ctx context.Context, input ListOccurrencesInput) ([]*domain.Occurrence, error)

	// CountInState counts a task's occurrences currently in the given state —
	// used for the backpressure check (spec.md §4.4 step 3c). The
	// concurrency-limit fence uses CountRunningExcluding instead.
	CountInState(ctx context.Context, taskID string, state domain.OccurrenceState) (int, error)

	// CountRunningExcluding counts occurrences of a task in state=running
	// locked by a worker other than excludeWorkerID (spec.md §4.5b).
	CountRunningExcluding(ctx context.Context, taskID, excludeWorkerID, excludeOccurrenceID string) (int, error)

	// TransitionToEnqueued moves a scheduled/failed occurrence to enqueued,
	// clearing reason (spec.md §4.4 step 3e, first branch).
	TransitionToEnqueued(ctx context.Context, id string, enqueuedAt, now time.Time) (bool, error)

	// RefreshEnqueuedAt advances enqueued_at for an already-enqueued occurrence
	// whose enqueued_at is null or in the past (spec.md §4.4 step 3e, second branch).
	RefreshEnqueuedAt(ctx context.Context, id string, enqueuedAt, now time.Time) error

	// ReclaimExpiredLeases is the lease-recovery pass (spec.md §4.5 step 1):
	// every running occurrence whose locked_at <= now-leaseTimeout is moved
	// back to enqueued with a fresh enqueued_at and cleared lock fields.
	ReclaimExpiredLeases(ctx context.Context, leaseTimeout time.Duration, now time.Time) (int, error)

	// ClaimBatch is the atomic batch-claim primitive from spec.md §4.1(2).
	ClaimBatch(ctx context.Context, workerID string, now time.Time, limit int) ([]domain.ClaimedOccurrence, error)

	MarkExecuted(ctx context.Context, id string, executedAt time.Time) error
	MarkFailed(ctx context.Context, id string, reason string) error
	MarkEnqueuedForRetry(ctx context.Context, id string, enqueuedAt time.Time, reason string) error
	MarkCanceled(ctx context.Context, id string) error
	MarkSkipped(ctx context.Context, id string) error
}
