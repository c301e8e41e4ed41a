// Package handlers is the task execution contract: a Handler turns one
// Context and its task payload into a result or an error; the worker loop
// inspects the error's type (retryable vs fatal) to decide the next
// occurrence state.
package handlers

import (
	"context"
	"fmt"
	"time"
)

// Context is the information a handler needs about the occurrence it is
// running for, beyond the task's own payload.
type Context struct {
	OccurrenceID string
	TaskID       string
	TaskName     string
	ScheduledFor time.Time
	Now          time.Time
	AttemptNo    int
}

// Handler executes one attempt of a task and returns a JSON-serializable
// result, or an error — return a *RetryableError to get backoff-and-retry
// semantics; any other error, including a bare unclassified one, is treated
// as fatal.
type Handler func(ctx context.Context, tc Context, payload map[string]any) (map[string]any, error)

// RetryableError signals a transient failure: the occurrence should be
// re-enqueued with backoff if attempts remain.
type RetryableError struct {
	Cause error
}

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable: %v", e.Cause) }
func (e *RetryableError) Unwrap() error { return e.Cause }

// NewRetryable wraps cause as a RetryableError.
func NewRetryable(cause error) *RetryableError { return &RetryableError{Cause: cause} }

// FatalError signals the occurrence must not be retried regardless of
// attempts remaining.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Cause) }
func (e *FatalError) Unwrap() error { return e.Cause }

// NewFatal wraps cause as a FatalError.
func NewFatal(cause error) *FatalError { return &FatalError{Cause: cause} }
