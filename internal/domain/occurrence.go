package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// OccurrenceState is the position of one occurrence in the state machine
// described in spec.md §4.3.
type OccurrenceState string

const (
	OccurrenceScheduled OccurrenceState = "scheduled"
	OccurrenceEnqueued  OccurrenceState = "enqueued"
	OccurrenceRunning   OccurrenceState = "running"
	OccurrenceExecuted  OccurrenceState = "executed"
	OccurrenceFailed    OccurrenceState = "failed"
	OccurrenceCanceled  OccurrenceState = "canceled"
	OccurrenceSkipped   OccurrenceState = "skipped"
)

// Terminal reports whether the worker loop should never claim this occurrence
// again. failed is terminal with respect to claiming but may still be
// re-enqueued by explicit admin action or by retry scheduling (which moves it
// straight back to enqueued without ever being read as "terminal" again).
func (s OccurrenceState) Terminal() bool {
	switch s {
	case OccurrenceExecuted, OccurrenceFailed, OccurrenceCanceled, OccurrenceSkipped:
		return true
	default:
		return false
	}
}

// Occurrence is a single concrete scheduled fire of a task.
type Occurrence struct {
	ID             string
	TaskID         string
	OccurrenceKey  string
	ScheduledFor   time.Time

	State OccurrenceState

	EnqueuedAt *time.Time
	LockedAt   *time.Time
	LockedBy   *string
	ExecutedAt *time.Time
	Reason     *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ComputeOccurrenceKey derives the deterministic idempotency key described in
// spec.md §3.2: SHA-256(task_id || "|" || schedule_kind || "|" || schedule_expr
// || "|" || scheduled_for.iso8601_utc || "|" || idempotency_scope_or_empty),
// hex-encoded.
func ComputeOccurrenceKey(taskID string, kind ScheduleKind, expr string, scheduledFor time.Time, idempotencyScope string) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s",
		taskID, kind, expr, scheduledFor.UTC().Format(time.RFC3339Nano), idempotencyScope)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ClaimedOccurrence is the minimal row shape the atomic batch-claim primitive
// returns: just enough to drive the per-occurrence processing loop.
type ClaimedOccurrence struct {
	ID     string
	TaskID string
}

// UpsertOutcome distinguishes a freshly inserted occurrence row from one that
// already existed and only had its updated_at timestamp refreshed. Per the
// Open Question in spec.md §9, the enqueue loop counts "newly enqueued" only
// when Inserted is true — it never replicates the |created_at-now|<1s heuristic.
type UpsertOutcome struct {
	ID       string
	Inserted bool
}
