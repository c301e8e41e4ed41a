package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/repository"
	"github.com/taskflow/scheduler/internal/scheduleexpr"
)

// EnqueueLoop ticks on an interval, expanding every runnable task's schedule
// over a fixed lookahead window and upserting the due occurrences.
type EnqueueLoop struct {
	taskRepo       repository.TaskRepository
	occurrenceRepo repository.OccurrenceRepository
	logger         *slog.Logger

	tickInterval       time.Duration
	lookahead          time.Duration
	maxEnqueuedPerTask int
}

func NewEnqueueLoop(taskRepo repository.TaskRepository, occurrenceRepo repository.OccurrenceRepository, logger *slog.Logger, tickInterval, lookahead time.Duration, maxEnqueuedPerTask int) *EnqueueLoop {
	return &EnqueueLoop{
		taskRepo:           taskRepo,
		occurrenceRepo:     occurrenceRepo,
		logger:             logger.With("component", "enqueue_loop"),
		tickInterval:       tickInterval,
		lookahead:          lookahead,
		maxEnqueuedPerTask: maxEnqueuedPerTask,
	}
}

func (l *EnqueueLoop) Start(ctx context.Context) {
	ticker := time.NewTicker(l.tickInterval)
	defer ticker.Stop()

	l.logger.Info("enqueue loop started", "interval", l.tickInterval, "lookahead", l.lookahead)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("enqueue loop shut down")
			return
		case <-ticker.C:
			l.runOnce(ctx, time.Now().UTC())
		}
	}
}

// runOnce is the enqueue cycle body, split out so tests can drive it with a
// fixed `now` instead of a ticker (spec.md §4.4).
func (l *EnqueueLoop) runOnce(ctx context.Context, now time.Time) int {
	windowEnd := now.Add(l.lookahead)

	tasks, err := l.taskRepo.ListRunnable(ctx)
	if err != nil {
		l.logger.Error("list runnable tasks", "error", err)
		return 0
	}

	enqueued := 0
	for _, task := range tasks {
		enqueued += l.enqueueTask(ctx, task, now, windowEnd)
	}
	return enqueued
}

func (l *EnqueueLoop) enqueueTask(ctx context.Context, task *domain.Task, now, windowEnd time.Time) int {
	dueTimes, err := scheduleexpr.Expand(task.ScheduleKind, task.ScheduleExpr, task.Timezone, now, windowEnd)
	if err != nil {
		l.logger.Error("compute schedule", "task_id", task.ID, "error", err)
		return 0
	}

	if len(dueTimes) == 0 {
		l.advanceNextRunAt(ctx, task, windowEnd)
		return 0
	}

	if task.Status == domain.StatusActive {
		queuedCount, err := l.occurrenceRepo.CountInState(ctx, task.ID, domain.OccurrenceEnqueued)
		if err != nil {
			l.logger.Error("count enqueued occurrences", "task_id", task.ID, "error", err)
			return 0
		}
		if queuedCount >= l.maxEnqueuedPerTask {
			l.logger.Warn("backpressure: refusing to enqueue more occurrences", "task_id", task.ID, "queued", queuedCount)
			return 0
		}
	}

	enqueued := 0
	for _, scheduledFor := range dueTimes {
		enqueued += l.upsertOne(ctx, task, scheduledFor, now)
	}

	l.advanceNextRunAt(ctx, task, windowEnd)
	return enqueued
}

func (l *EnqueueLoop) upsertOne(ctx context.Context, task *domain.Task, scheduledFor, now time.Time) int {
	key := domain.ComputeOccurrenceKey(task.ID, task.ScheduleKind, task.ScheduleExpr, scheduledFor, task.IdempotencyScope)
	initialState := task.InitialOccurrenceState()

	var enqueuedAt *time.Time
	if initialState == domain.OccurrenceEnqueued {
		t := now
		enqueuedAt = &t
	}

	outcome, err := l.occurrenceRepo.UpsertOccurrence(ctx, repository.UpsertOccurrenceInput{
		TaskID:        task.ID,
		OccurrenceKey: key,
		ScheduledFor:  scheduledFor,
		InitialState:  initialState,
		EnqueuedAt:    enqueuedAt,
	}, now)
	if err != nil {
		l.logger.Error("upsert occurrence", "task_id", task.ID, "error", err)
		return 0
	}

	if task.Status != domain.StatusActive {
		return 0
	}

	if outcome.Inserted {
		return 1
	}

	// Occurrence already existed. If it had regressed to scheduled/failed
	// (e.g. the task just transitioned to active), move it forward; if it's
	// already enqueued, only refresh a stale enqueued_at — never count it
	// again, since re-running this loop over the same window must stay
	// idempotent (spec.md §4.1 P1, and the Open Question in §9: no
	// "created recently" heuristic).
	transitioned, err := l.occurrenceRepo.TransitionToEnqueued(ctx, outcome.ID, now, now)
	if err != nil {
		l.logger.Error("transition occurrence to enqueued", "occurrence_id", outcome.ID, "error", err)
		return 0
	}
	if transitioned {
		return 0
	}

	if err := l.occurrenceRepo.RefreshEnqueuedAt(ctx, outcome.ID, now, now); err != nil {
		l.logger.Error("refresh enqueued_at", "occurrence_id", outcome.ID, "error", err)
	}
	return 0
}

// Backfill force-expands every shadow task's window and upserts occurrences
// with initial_state=scheduled, returning how many were newly created. This
// is the CLI-driven path (spec.md §4.7/§6.3 `schedulectl backfill`). Tasks
// with any other status are skipped. Unlike the live enqueue pass, which
// counts only active tasks' insertions, it counts every fresh insertion of a
// shadow task's occurrence, since those never reach state=enqueued.
func (l *EnqueueLoop) Backfill(ctx context.Context, now time.Time) (int, error) {
	windowEnd := now.Add(l.lookahead)

	tasks, err := l.taskRepo.ListRunnable(ctx)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, task := range tasks {
		if task.Status != domain.StatusShadow {
			continue
		}

		dueTimes, err := scheduleexpr.Expand(task.ScheduleKind, task.ScheduleExpr, task.Timezone, now, windowEnd)
		if err != nil {
			l.logger.Error("compute schedule", "task_id", task.ID, "error", err)
			continue
		}

		for _, scheduledFor := range dueTimes {
			key := domain.ComputeOccurrenceKey(task.ID, task.ScheduleKind, task.ScheduleExpr, scheduledFor, task.IdempotencyScope)
			outcome, err := l.occurrenceRepo.UpsertOccurrence(ctx, repository.UpsertOccurrenceInput{
				TaskID:        task.ID,
				OccurrenceKey: key,
				ScheduledFor:  scheduledFor,
				InitialState:  domain.OccurrenceScheduled,
			}, now)
			if err != nil {
				l.logger.Error("upsert shadow occurrence", "task_id", task.ID, "error", err)
				continue
			}
			if outcome.Inserted {
				created++
			}
		}

		l.advanceNextRunAt(ctx, task, windowEnd)
	}
	return created, nil
}

func (l *EnqueueLoop) advanceNextRunAt(ctx context.Context, task *domain.Task, after time.Time) {
	next, err := scheduleexpr.NextAfter(task.ScheduleKind, task.ScheduleExpr, task.Timezone, after)
	if err != nil {
		l.logger.Warn("compute next run at", "task_id", task.ID, "error", err)
		if uerr := l.taskRepo.UpdateNextRunAt(ctx, task.ID, nil); uerr != nil {
			l.logger.Error("clear next_run_at", "task_id", task.ID, "error", uerr)
		}
		return
	}
	if err := l.taskRepo.UpdateNextRunAt(ctx, task.ID, &next); err != nil {
		l.logger.Error("update next_run_at", "task_id", task.ID, "error", err)
	}
}
