package domain

import "time"

// ScheduleKind identifies how a Task's schedule_expr should be interpreted.
// Only KindCron is implemented by the expander; the others are accepted at
// the storage layer and rejected at expansion time with ErrUnsupportedSchedule.
type ScheduleKind string

const (
	KindCron        ScheduleKind = "cron"
	KindOneShot     ScheduleKind = "one-shot"
	KindRecurrence  ScheduleKind = "recurrence-rule"
	KindFixedInterval ScheduleKind = "fixed-interval"
)

// TaskStatus gates whether a task's occurrences are materialized and,
// separately, whether those occurrences are eligible for claim.
type TaskStatus string

const (
	StatusShadow   TaskStatus = "shadow"
	StatusActive   TaskStatus = "active"
	StatusPaused   TaskStatus = "paused"
	StatusCanceled TaskStatus = "canceled"
)

// Backoff selects how retry delay scales with attempt number.
type Backoff string

const (
	BackoffExponential Backoff = "exponential"
	BackoffConstant    Backoff = "constant"
)

// RetryPolicy bounds the number of attempts and the backoff curve between them.
type RetryPolicy struct {
	MaxAttempts int     `json:"max_attempts"`
	Backoff     Backoff `json:"backoff"`
	BaseSeconds int     `json:"base_seconds"`
}

// DefaultRetryPolicy is applied whenever a Task is created without one.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	Backoff:     BackoffExponential,
	BaseSeconds: 30,
}

// Task is a logical recurring or one-shot job definition. Occurrences are
// materialized from it by the schedule expander and the enqueue loop.
type Task struct {
	ID       string
	Name     string
	Handler  string
	Payload  map[string]any

	ScheduleKind ScheduleKind
	ScheduleExpr string
	Timezone     string

	Status           TaskStatus
	IsActive         bool
	ConcurrencyLimit int

	RetryPolicy      RetryPolicy
	IdempotencyScope string

	NextRunAt      *time.Time
	LastRunAt      *time.Time
	LastRunStatus  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Runnable reports whether this task's occurrences should ever be materialized
// at all (spec.md §4.4 step 2: is_active AND status in {active, shadow}).
func (t *Task) Runnable() bool {
	return t.IsActive && (t.Status == StatusActive || t.Status == StatusShadow)
}

// InitialOccurrenceState is the state the enqueue loop should use when it
// materializes a due fire time for this task (spec.md §4.3).
func (t *Task) InitialOccurrenceState() OccurrenceState {
	if t.Status == StatusActive {
		return OccurrenceEnqueued
	}
	return OccurrenceScheduled
}
