package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OccurrenceStore struct {
	pool *pgxpool.Pool
}

func NewOccurrenceStore(pool *pgxpool.Pool) *OccurrenceStore {
	return &OccurrenceStore{pool: pool}
}

// UpsertOccurrence is the idempotency primitive: the unique constraint on
// (task_id, occurrence_key) makes re-running the enqueue loop over the same
// window a no-op beyond refreshing updated_at. xmax = 0 distinguishes an
// actual insert from a conflict-update in the RETURNING clause.
func (s *OccurrenceStore) UpsertOccurrence(ctx context.Context, input repository.UpsertOccurrenceInput, now time.Time) (domain.UpsertOutcome, error) {
	query := `
		INSERT INTO occurrences (
			task_id, occurrence_key, scheduled_for, state, enqueued_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (task_id, occurrence_key) DO UPDATE SET updated_at = $6
		RETURNING id, (xmax = 0) AS inserted`

	var out domain.UpsertOutcome
	err := s.pool.QueryRow(ctx, query,
		input.TaskID, input.OccurrenceKey, input.ScheduledFor, input.InitialState, input.EnqueuedAt, now,
	).Scan(&out.ID, &out.Inserted)
	if err != nil {
		return domain.UpsertOutcome{}, fmt.Errorf("upsert occurrence: %w", err)
	}
	return out, nil
}

func (s *OccurrenceStore) GetByID(ctx context.Context, id string) (*domain.Occurrence, error) {
	row := s.pool.QueryRow(ctx, occurrenceSelect+` WHERE id = $1`, id)
	return scanOccurrence(row)
}

func (s *OccurrenceStore) List(ctx context.Context, input repository.ListOccurrencesInput) ([]*domain.Occurrence, error) {
	args := []any{input.TaskID}
	where := []string{"task_id = $1"}

	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(scheduled_for, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`%s WHERE %s ORDER BY scheduled_for DESC, id DESC LIMIT $%d`,
		occurrenceSelect, strings.Join(where, " AND "), len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list occurrences: %w", err)
	}
	defer rows.Close()

	var out []*domain.Occurrence
	for rows.Next() {
		o, err := scanOccurrence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *OccurrenceStore) CountInState(ctx context.Context, taskID string, state domain.OccurrenceState) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM occurrences WHERE task_id = $1 AND state = $2`,
		taskID, state).Scan(&n)
	return n, err
}

func (s *OccurrenceStore) CountRunningExcluding(ctx context.Context, taskID, excludeWorkerID, excludeOccurrenceID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM occurrences
		WHERE task_id = $1 AND state = 'running'
		  AND id != $2
		  AND (locked_by IS DISTINCT FROM $3)`,
		taskID, excludeOccurrenceID, excludeWorkerID).Scan(&n)
	return n, err
}

func (s *OccurrenceStore) TransitionToEnqueued(ctx context.Context, id string, enqueuedAt, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE occurrences
		SET state = 'enqueued', enqueued_at = $2, reason = NULL, updated_at = $3
		WHERE id = $1 AND state IN ('scheduled', 'failed')`,
		id, enqueuedAt, now)
	if err != nil {
		return false, fmt.Errorf("transition to enqueued: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *OccurrenceStore) RefreshEnqueuedAt(ctx context.Context, id string, enqueuedAt, now time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE occurrences
		SET enqueued_at = $2, updated_at = $3
		WHERE id = $1 AND state = 'enqueued' AND (enqueued_at IS NULL OR enqueued_at < $2)`,
		id, enqueuedAt, now)
	return err
}

// ReclaimExpiredLeases is the lease-recovery pass: any occurrence still
// running past its lease timeout is handed back to the pool. Scoping on
// locked_at (not updated_at) means a crashed worker's heartbeat-free row
// ages out deterministically from the moment it was claimed.
func (s *OccurrenceStore) ReclaimExpiredLeases(ctx context.Context, leaseTimeout time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-leaseTimeout)
	tag, err := s.pool.Exec(ctx, `
		UPDATE occurrences
		SET state = 'enqueued', enqueued_at = $2, locked_at = NULL, locked_by = NULL, updated_at = $2
		WHERE state = 'running' AND locked_at <= $1`,
		cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("reclaim expired leases: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ClaimBatch atomically locks up to limit enqueued-and-due occurrences for
// workerID. FOR UPDATE SKIP LOCKED lets concurrent workers race the same
// table without blocking on each other's in-flight claims.
func (s *OccurrenceStore) ClaimBatch(ctx context.Context, workerID string, now time.Time, limit int) ([]domain.ClaimedOccurrence, error) {
	query := `
		UPDATE occurrences
		SET state = 'running', locked_at = $2, locked_by = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM occurrences
			WHERE state = 'enqueued' AND enqueued_at <= $2
			ORDER BY scheduled_for ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, task_id`

	rows, err := s.pool.Query(ctx, query, workerID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var claimed []domain.ClaimedOccurrence
	for rows.Next() {
		var c domain.ClaimedOccurrence
		if err := rows.Scan(&c.ID, &c.TaskID); err != nil {
			return nil, fmt.Errorf("scan claimed occurrence: %w", err)
		}
		claimed = append(claimed, c)
	}
	return claimed, rows.Err()
}

func (s *OccurrenceStore) MarkExecuted(ctx context.Context, id string, executedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE occurrences SET state = 'executed', executed_at = $2, reason = NULL,
		       locked_at = NULL, locked_by = NULL, updated_at = $2
		WHERE id = $1`, id, executedAt)
	return err
}

func (s *OccurrenceStore) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE occurrences SET state = 'failed', reason = $2,
		       locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE id = $1`, id, reason)
	return err
}

func (s *OccurrenceStore) MarkEnqueuedForRetry(ctx context.Context, id string, enqueuedAt time.Time, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE occurrences SET state = 'enqueued', enqueued_at = $2, reason = $3,
		       locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE id = $1`, id, enqueuedAt, reason)
	return err
}

func (s *OccurrenceStore) MarkCanceled(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE occurrences SET state = 'canceled', locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (s *OccurrenceStore) MarkSkipped(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE occurrences SET state = 'skipped', locked_at = NULL, locked_by = NULL, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

const occurrenceSelect = `
	SELECT id, task_id, occurrence_key, scheduled_for, state,
	       enqueued_at, locked_at, locked_by, executed_at, reason, created_at, updated_at
	FROM occurrences`

func scanOccurrence(row rowScanner) (*domain.Occurrence, error) {
	var o domain.Occurrence
	err := row.Scan(
		&o.ID, &o.TaskID, &o.OccurrenceKey, &o.ScheduledFor, &o.State,
		&o.EnqueuedAt, &o.LockedAt, &o.LockedBy, &o.ExecutedAt, &o.Reason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOccurrenceNotFound
		}
		return nil, fmt.Errorf("scan occurrence: %w", err)
	}
	return &o, nil
}
