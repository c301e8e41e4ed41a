package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/handlers"
	"github.com/taskflow/scheduler/internal/infrastructure/memstore"
)

func newTestWorker(t *testing.T, taskRepo *memstore.TaskStore, occRepo *memstore.OccurrenceStore, execRepo *memstore.ExecutionStore, registry *handlers.Registry) *Worker {
	t.Helper()
	return NewWorker(taskRepo, occRepo, execRepo, registry, discardLogger(), time.Second, 10*time.Minute, 10)
}

func enqueueOneNow(t *testing.T, occRepo *memstore.OccurrenceStore, taskID string, now time.Time) string {
	t.Helper()
	outcome, err := occRepo.UpsertOccurrence(context.Background(), repoUpsertInput(taskID, now), now)
	if err != nil {
		t.Fatalf("upsert occurrence: %v", err)
	}
	return outcome.ID
}

// P4: attempt numbers for a retried occurrence are contiguous (1, 2, 3, ...)
// regardless of how many times it is reclaimed or retried.
func TestWorker_ContiguousAttemptNumbers(t *testing.T) {
	taskRepo := memstore.NewTaskStore()
	occRepo := memstore.NewOccurrenceStore()
	execRepo := memstore.NewExecutionStore()
	registry := handlers.NewRegistry()

	callCount := 0
	registry.Register("flaky", func(ctx context.Context, tc handlers.Context, payload map[string]any) (map[string]any, error) {
		callCount++
		if callCount < 3 {
			return nil, handlers.NewRetryable(errors.New("transient"))
		}
		return map[string]any{"ok": true}, nil
	})

	task := mustCreateTask(t, taskRepo, func(tk *domain.Task) {
		tk.Handler = "flaky"
		tk.RetryPolicy = domain.RetryPolicy{MaxAttempts: 5, Backoff: domain.BackoffConstant, BaseSeconds: 1}
	})

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	occID := enqueueOneNow(t, occRepo, task.ID, now)

	w := newTestWorker(t, taskRepo, occRepo, execRepo, registry)
	for i := 0; i < 3; i++ {
		cycleNow := now.Add(time.Duration(i) * time.Hour)
		w.runCycle(context.Background(), cycleNow)
		// force the retried occurrence immediately claimable on the next cycle
		occ, err := occRepo.GetByID(context.Background(), occID)
		if err != nil {
			t.Fatalf("get occurrence: %v", err)
		}
		if occ.State == domain.OccurrenceEnqueued && occ.EnqueuedAt != nil {
			*occ.EnqueuedAt = cycleNow
		}
	}

	executions, err := execRepo.ListByOccurrence(context.Background(), occID)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	if len(executions) != 3 {
		t.Fatalf("expected 3 execution attempts, got %d", len(executions))
	}
	for i, e := range executions {
		if e.AttemptNo != i+1 {
			t.Fatalf("attempt %d: expected attempt_no %d, got %d", i, i+1, e.AttemptNo)
		}
	}

	final, err := occRepo.GetByID(context.Background(), occID)
	if err != nil {
		t.Fatalf("get occurrence: %v", err)
	}
	if final.State != domain.OccurrenceExecuted {
		t.Fatalf("expected final state executed, got %s", final.State)
	}
}

// B3: once attempts are exhausted, the occurrence is permanently failed
// rather than re-enqueued again.
func TestWorker_RetriesExhausted(t *testing.T) {
	taskRepo := memstore.NewTaskStore()
	occRepo := memstore.NewOccurrenceStore()
	execRepo := memstore.NewExecutionStore()
	registry := handlers.NewRegistry()

	registry.Register("always-fails", func(ctx context.Context, tc handlers.Context, payload map[string]any) (map[string]any, error) {
		return nil, handlers.NewRetryable(errors.New("boom"))
	})

	task := mustCreateTask(t, taskRepo, func(tk *domain.Task) {
		tk.Handler = "always-fails"
		tk.RetryPolicy = domain.RetryPolicy{MaxAttempts: 2, Backoff: domain.BackoffConstant, BaseSeconds: 1}
	})

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	occID := enqueueOneNow(t, occRepo, task.ID, now)

	w := newTestWorker(t, taskRepo, occRepo, execRepo, registry)
	for i := 0; i < 2; i++ {
		cycleNow := now.Add(time.Duration(i) * time.Hour)
		w.runCycle(context.Background(), cycleNow)
		occ, _ := occRepo.GetByID(context.Background(), occID)
		if occ.EnqueuedAt != nil {
			*occ.EnqueuedAt = cycleNow
		}
	}

	final, err := occRepo.GetByID(context.Background(), occID)
	if err != nil {
		t.Fatalf("get occurrence: %v", err)
	}
	if final.State != domain.OccurrenceFailed {
		t.Fatalf("expected occurrence permanently failed after exhausting retries, got %s", final.State)
	}
}

// An unclassified error — one that is neither *handlers.RetryableError nor
// *handlers.FatalError — is treated as fatal, matching the original's
// safety-net exception handling rather than being silently retried forever.
func TestWorker_UnknownErrorTreatedAsFatal(t *testing.T) {
	taskRepo := memstore.NewTaskStore()
	occRepo := memstore.NewOccurrenceStore()
	execRepo := memstore.NewExecutionStore()
	registry := handlers.NewRegistry()

	registry.Register("unclassified", func(ctx context.Context, tc handlers.Context, payload map[string]any) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	task := mustCreateTask(t, taskRepo, func(tk *domain.Task) {
		tk.Handler = "unclassified"
		tk.RetryPolicy = domain.RetryPolicy{MaxAttempts: 5, Backoff: domain.BackoffConstant, BaseSeconds: 1}
	})

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	occID := enqueueOneNow(t, occRepo, task.ID, now)

	w := newTestWorker(t, taskRepo, occRepo, execRepo, registry)
	w.runCycle(context.Background(), now)

	final, err := occRepo.GetByID(context.Background(), occID)
	if err != nil {
		t.Fatalf("get occurrence: %v", err)
	}
	if final.State != domain.OccurrenceFailed {
		t.Fatalf("expected unclassified error to fail permanently on first attempt, got %s", final.State)
	}

	executions, err := execRepo.ListByOccurrence(context.Background(), occID)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	if len(executions) != 1 {
		t.Fatalf("expected exactly one attempt since the error is fatal, got %d", len(executions))
	}
}

// B2: a running occurrence whose lease has expired is reclaimed and becomes
// claimable again instead of being stuck forever.
func TestWorker_ReclaimsExpiredLease(t *testing.T) {
	taskRepo := memstore.NewTaskStore()
	occRepo := memstore.NewOccurrenceStore()
	execRepo := memstore.NewExecutionStore()
	registry := handlers.NewRegistry()

	// runCycle runs each claim to completion, so the lock is observed from
	// inside the handler while the occurrence is still held.
	var stateDuringRun domain.OccurrenceState
	var lockedByDuringRun *string
	registry.Register("noop", func(ctx context.Context, tc handlers.Context, payload map[string]any) (map[string]any, error) {
		occ, err := occRepo.GetByID(ctx, tc.OccurrenceID)
		if err != nil {
			return nil, err
		}
		stateDuringRun, lockedByDuringRun = occ.State, occ.LockedBy
		return map[string]any{}, nil
	})

	task := mustCreateTask(t, taskRepo, nil)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	occID := enqueueOneNow(t, occRepo, task.ID, now)

	claimed, err := occRepo.ClaimBatch(context.Background(), "dead-worker", now, 10)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim batch: %v, claimed=%v", err, claimed)
	}

	w := newTestWorker(t, taskRepo, occRepo, execRepo, registry)
	later := now.Add(11 * time.Minute)
	w.runCycle(context.Background(), later)

	occ, err := occRepo.GetByID(context.Background(), occID)
	if err != nil {
		t.Fatalf("get occurrence: %v", err)
	}
	if stateDuringRun != domain.OccurrenceRunning {
		t.Fatalf("expected reclaimed occurrence to be claimed again this cycle, got %s", stateDuringRun)
	}
	if lockedByDuringRun == nil || *lockedByDuringRun == "dead-worker" {
		t.Fatalf("expected occurrence to be relocked by the new worker, got %v", lockedByDuringRun)
	}
	if occ.State != domain.OccurrenceExecuted {
		t.Fatalf("expected reclaimed occurrence to run to completion this cycle, got %s", occ.State)
	}
}

// P2: two disjoint occurrences of the same task are claimed and processed
// independently — one worker cycle's claim never touches the other's row.
func TestWorker_DisjointClaims(t *testing.T) {
	taskRepo := memstore.NewTaskStore()
	occRepo := memstore.NewOccurrenceStore()
	execRepo := memstore.NewExecutionStore()
	registry := handlers.NewRegistry()
	registry.Register("noop", func(ctx context.Context, tc handlers.Context, payload map[string]any) (map[string]any, error) {
		return map[string]any{}, nil
	})

	task := mustCreateTask(t, taskRepo, func(tk *domain.Task) { tk.Handler = "noop" })
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	occA := enqueueOneNow(t, occRepo, task.ID, now)
	occB := enqueueOneNow(t, occRepo, task.ID, now.Add(time.Minute))

	w := newTestWorker(t, taskRepo, occRepo, execRepo, registry)
	w.runCycle(context.Background(), now.Add(2*time.Minute))

	a, _ := occRepo.GetByID(context.Background(), occA)
	b, _ := occRepo.GetByID(context.Background(), occB)
	if a.State != domain.OccurrenceExecuted || b.State != domain.OccurrenceExecuted {
		t.Fatalf("expected both disjoint occurrences to execute independently, got a=%s b=%s", a.State, b.State)
	}
}
