package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/handlers"
	"github.com/taskflow/scheduler/internal/repository"
)

// Worker claims a batch of due occurrences each tick and runs each one's
// handler in its own fresh transaction-equivalent (one repository call set
// per occurrence), mirroring the original's per-occurrence session_scope.
type Worker struct {
	id string

	taskRepo       repository.TaskRepository
	occurrenceRepo repository.OccurrenceRepository
	executionRepo  repository.ExecutionRepository
	registry       *handlers.Registry
	logger         *slog.Logger

	pollInterval time.Duration
	leaseTimeout time.Duration
	batchSize    int
}

func NewWorker(
	taskRepo repository.TaskRepository,
	occurrenceRepo repository.OccurrenceRepository,
	executionRepo repository.ExecutionRepository,
	registry *handlers.Registry,
	logger *slog.Logger,
	pollInterval, leaseTimeout time.Duration,
	batchSize int,
) *Worker {
	hostname, _ := os.Hostname()
	return &Worker{
		id:             fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		taskRepo:       taskRepo,
		occurrenceRepo: occurrenceRepo,
		executionRepo:  executionRepo,
		registry:       registry,
		logger:         logger.With("component", "worker"),
		pollInterval:   pollInterval,
		leaseTimeout:   leaseTimeout,
		batchSize:      batchSize,
	}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker started", "worker_id", w.id, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker shut down", "worker_id", w.id)
			return
		case <-ticker.C:
			w.runCycle(ctx, time.Now().UTC())
		}
	}
}

// runCycle is the worker cycle body, split out so tests can drive it
// deterministically (spec.md §4.5).
func (w *Worker) runCycle(ctx context.Context, now time.Time) int {
	reclaimed, err := w.occurrenceRepo.ReclaimExpiredLeases(ctx, w.leaseTimeout, now)
	if err != nil {
		w.logger.Error("reclaim expired leases", "error", err)
	} else if reclaimed > 0 {
		w.logger.Warn("re-enqueued stale running occurrences", "count", reclaimed, "worker_id", w.id)
	}

	claimed, err := w.occurrenceRepo.ClaimBatch(ctx, w.id, now, w.batchSize)
	if err != nil {
		w.logger.Error("claim batch", "error", err)
		return 0
	}

	processed := 0
	for _, c := range claimed {
		w.processOccurrence(ctx, c)
		processed++
	}
	return processed
}

func (w *Worker) processOccurrence(ctx context.Context, claim domain.ClaimedOccurrence) {
	occurrence, err := w.occurrenceRepo.GetByID(ctx, claim.ID)
	if err != nil {
		w.logger.Error("load claimed occurrence", "occurrence_id", claim.ID, "error", err)
		return
	}
	if occurrence.State != domain.OccurrenceRunning {
		return
	}

	task, err := w.taskRepo.GetByID(ctx, occurrence.TaskID)
	if err != nil {
		w.logger.Error("missing task for occurrence", "occurrence_id", occurrence.ID, "error", err)
		_ = w.occurrenceRepo.MarkFailed(ctx, occurrence.ID, "task missing")
		return
	}

	if task.ConcurrencyLimit > 0 {
		running, err := w.occurrenceRepo.CountRunningExcluding(ctx, task.ID, w.id, occurrence.ID)
		if err != nil {
			w.logger.Error("count running occurrences", "task_id", task.ID, "error", err)
			return
		}
		if running >= task.ConcurrencyLimit {
			// Hand it straight back — another occurrence of this task is
			// already using up the concurrency budget.
			retryAt := time.Now().UTC().Add(time.Second)
			if err := w.occurrenceRepo.MarkEnqueuedForRetry(ctx, occurrence.ID, retryAt, "concurrency_limit"); err != nil {
				w.logger.Error("re-enqueue for concurrency limit", "occurrence_id", occurrence.ID, "error", err)
			}
			return
		}
	}

	startedAt := time.Now().UTC()
	maxAttempt, err := w.executionRepo.MaxAttempt(ctx, occurrence.ID)
	if err != nil {
		w.logger.Error("max attempt", "occurrence_id", occurrence.ID, "error", err)
		return
	}
	attemptNo := maxAttempt + 1

	trigger := domain.TriggerSchedule
	if attemptNo > 1 {
		trigger = domain.TriggerRetry
	}

	execution, err := w.executionRepo.Create(ctx, &domain.Execution{
		TaskID:       task.ID,
		OccurrenceID: occurrence.ID,
		AttemptNo:    attemptNo,
		TriggerType:  trigger,
		Status:       domain.ExecutionRunning,
		WorkerID:     w.id,
		StartedAt:    startedAt,
	})
	if err != nil {
		w.logger.Error("create execution", "occurrence_id", occurrence.ID, "error", err)
		return
	}

	handler, err := w.registry.Resolve(task.Handler)
	if err != nil {
		w.finishFatal(ctx, task, occurrence, execution, attemptNo, err)
		return
	}

	tc := handlers.Context{
		OccurrenceID: occurrence.ID,
		TaskID:       task.ID,
		TaskName:     task.Name,
		ScheduledFor: occurrence.ScheduledFor,
		Now:          startedAt,
		AttemptNo:    attemptNo,
	}

	result, err := handler(ctx, tc, task.Payload)
	finishedAt := time.Now().UTC()

	if err == nil {
		w.finishSuccess(ctx, task, occurrence, execution, result, finishedAt)
		return
	}

	var retryable *handlers.RetryableError
	if errors.As(err, &retryable) {
		w.finishRetry(ctx, task, occurrence, execution, attemptNo, finishedAt, err)
		return
	}

	// Any error that isn't explicitly a RetryableError — including a bare,
	// unclassified error — is treated as fatal, matching the original's
	// safety-net "except Exception" branch.
	w.finishFatal(ctx, task, occurrence, execution, attemptNo, err)
}

func (w *Worker) finishSuccess(ctx context.Context, task *domain.Task, occurrence *domain.Occurrence, execution *domain.Execution, result map[string]any, finishedAt time.Time) {
	if err := w.executionRepo.Complete(ctx, execution.ID, domain.ExecutionSucceeded, result, nil, finishedAt); err != nil {
		w.logger.Error("complete execution", "execution_id", execution.ID, "error", err)
	}
	if err := w.occurrenceRepo.MarkExecuted(ctx, occurrence.ID, finishedAt); err != nil {
		w.logger.Error("mark executed", "occurrence_id", occurrence.ID, "error", err)
	}
	w.recordRun(ctx, task.ID, "succeeded", finishedAt)
	w.logger.Info("handler succeeded", "task_id", task.ID, "occurrence_id", occurrence.ID, "attempt", execution.AttemptNo, "worker_id", w.id)
}

func (w *Worker) finishFatal(ctx context.Context, task *domain.Task, occurrence *domain.Occurrence, execution *domain.Execution, attemptNo int, cause error) {
	finishedAt := time.Now().UTC()
	execErr := &domain.ExecutionError{Type: "fatal", Message: cause.Error()}
	if err := w.executionRepo.Complete(ctx, execution.ID, domain.ExecutionFailed, nil, execErr, finishedAt); err != nil {
		w.logger.Error("complete execution", "execution_id", execution.ID, "error", err)
	}
	if err := w.occurrenceRepo.MarkFailed(ctx, occurrence.ID, cause.Error()); err != nil {
		w.logger.Error("mark failed", "occurrence_id", occurrence.ID, "error", err)
	}
	w.recordRun(ctx, task.ID, "failed", finishedAt)
	w.logger.Error("handler fatal error", "task_id", task.ID, "occurrence_id", occurrence.ID, "attempt", attemptNo, "worker_id", w.id, "error", cause)
}

func (w *Worker) finishRetry(ctx context.Context, task *domain.Task, occurrence *domain.Occurrence, execution *domain.Execution, attemptNo int, finishedAt time.Time, cause error) {
	execErr := &domain.ExecutionError{Type: "retryable", Message: cause.Error()}
	if err := w.executionRepo.Complete(ctx, execution.ID, domain.ExecutionFailed, nil, execErr, finishedAt); err != nil {
		w.logger.Error("complete execution", "execution_id", execution.ID, "error", err)
	}

	if attemptNo >= task.RetryPolicy.MaxAttempts {
		if err := w.occurrenceRepo.MarkFailed(ctx, occurrence.ID, cause.Error()); err != nil {
			w.logger.Error("mark failed (retries exhausted)", "occurrence_id", occurrence.ID, "error", err)
		}
		w.recordRun(ctx, task.ID, "failed", finishedAt)
		w.logger.Warn("retries exhausted, occurrence permanently failed", "task_id", task.ID, "occurrence_id", occurrence.ID, "attempt", attemptNo, "worker_id", w.id)
		return
	}

	delay := computeRetryDelay(task.RetryPolicy, attemptNo)
	nextAvailable := finishedAt.Add(delay)
	if err := w.occurrenceRepo.MarkEnqueuedForRetry(ctx, occurrence.ID, nextAvailable, cause.Error()); err != nil {
		w.logger.Error("mark enqueued for retry", "occurrence_id", occurrence.ID, "error", err)
	}
	w.recordRun(ctx, task.ID, "failed", finishedAt)
	w.logger.Warn("handler requested retry", "task_id", task.ID, "occurrence_id", occurrence.ID, "attempt", attemptNo, "worker_id", w.id, "error", cause, "next_available", nextAvailable)
}

func (w *Worker) recordRun(ctx context.Context, taskID, status string, when time.Time) {
	if err := w.taskRepo.RecordRun(ctx, taskID, status, when); err != nil {
		w.logger.Error("record task run", "task_id", taskID, "error", err)
	}
}
