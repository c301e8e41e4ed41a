package scheduler

import (
	"math"
	"math/rand"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
)

// computeRetryDelay returns the delay before attemptNo+1 should become
// eligible for claim again. The jitter term is always bounded by
// base_seconds regardless of attempt number — it is additive noise against
// thundering-herd retries, not part of the backoff curve itself.
func computeRetryDelay(policy domain.RetryPolicy, attemptNo int) time.Duration {
	base := time.Duration(policy.BaseSeconds) * time.Second

	var delay time.Duration
	switch policy.Backoff {
	case domain.BackoffExponential:
		delay = time.Duration(float64(base) * math.Pow(2, float64(max(attemptNo-1, 0))))
	default:
		delay = base
	}

	jitter := time.Duration(rand.Int63n(int64(base) + 1))
	return delay + jitter
}
