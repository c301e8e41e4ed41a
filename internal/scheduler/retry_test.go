package scheduler

import (
	"testing"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
)

func TestComputeRetryDelay_Exponential(t *testing.T) {
	policy := domain.RetryPolicy{Backoff: domain.BackoffExponential, BaseSeconds: 30, MaxAttempts: 5}

	for attempt := 1; attempt <= 4; attempt++ {
		d := computeRetryDelay(policy, attempt)
		floor := time.Duration(30) * time.Second * (1 << max(attempt-1, 0))
		ceil := floor + 30*time.Second
		if d < floor || d > ceil {
			t.Fatalf("attempt %d: delay %v out of bounds [%v, %v]", attempt, d, floor, ceil)
		}
	}
}

func TestComputeRetryDelay_ConstantJitterBoundedByBase(t *testing.T) {
	policy := domain.RetryPolicy{Backoff: domain.BackoffConstant, BaseSeconds: 10, MaxAttempts: 5}

	for attempt := 1; attempt <= 10; attempt++ {
		d := computeRetryDelay(policy, attempt)
		// jitter must never push the delay past base + base, regardless of attempt.
		if d < 10*time.Second || d > 20*time.Second {
			t.Fatalf("attempt %d: constant-backoff delay %v not bounded by base_seconds jitter", attempt, d)
		}
	}
}
