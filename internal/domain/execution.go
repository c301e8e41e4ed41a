package domain

import "time"

// TriggerType records why an execution attempt was created.
type TriggerType string

const (
	TriggerSchedule TriggerType = "schedule"
	TriggerRetry    TriggerType = "retry"
	TriggerManual   TriggerType = "manual"
)

// ExecutionStatus is the terminal-or-not status of one attempt.
type ExecutionStatus string

const (
	ExecutionQueued    ExecutionStatus = "queued"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSucceeded ExecutionStatus = "succeeded"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCanceled  ExecutionStatus = "canceled"
	ExecutionTimedOut  ExecutionStatus = "timed_out"
)

// ExecutionError is the structured shape stored in Execution.Error on failure.
type ExecutionError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Execution is one attempt to run a task's handler for a given occurrence.
type Execution struct {
	ID          string
	TaskID      string
	OccurrenceID string
	AttemptNo   int
	TriggerType TriggerType
	Status      ExecutionStatus
	WorkerID    string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Result      map[string]any
	Error       *ExecutionError
}
