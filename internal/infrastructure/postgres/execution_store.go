package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ExecutionStore struct {
	pool *pgxpool.Pool
}

func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

func (s *ExecutionStore) Create(ctx context.Context, e *domain.Execution) (*domain.Execution, error) {
	query := `
		INSERT INTO executions (
			task_id, occurrence_id, attempt_no, trigger_type, status, worker_id, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, task_id, occurrence_id, attempt_no, trigger_type, status,
		          worker_id, started_at, finished_at, result, error`

	row := s.pool.QueryRow(ctx, query,
		e.TaskID, e.OccurrenceID, e.AttemptNo, e.TriggerType, e.Status, e.WorkerID, e.StartedAt,
	)
	return scanExecution(row)
}

func (s *ExecutionStore) MaxAttempt(ctx context.Context, occurrenceID string) (int, error) {
	var max *int
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(attempt_no) FROM executions WHERE occurrence_id = $1`, occurrenceID).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("max attempt: %w", err)
	}
	if max == nil {
		return 0, nil
	}
	return *max, nil
}

func (s *ExecutionStore) Complete(ctx context.Context, id string, status domain.ExecutionStatus, result map[string]any, execErr *domain.ExecutionError, finishedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, result = $3, error = $4, finished_at = $5
		WHERE id = $1`, id, status, result, execErr, finishedAt)
	return err
}

func (s *ExecutionStore) ListByOccurrence(ctx context.Context, occurrenceID string) ([]*domain.Execution, error) {
	query := `
		SELECT id, task_id, occurrence_id, attempt_no, trigger_type, status,
		       worker_id, started_at, finished_at, result, error
		FROM executions
		WHERE occurrence_id = $1
		ORDER BY attempt_no ASC`

	rows, err := s.pool.Query(ctx, query, occurrenceID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var e domain.Execution
	err := row.Scan(
		&e.ID, &e.TaskID, &e.OccurrenceID, &e.AttemptNo, &e.TriggerType, &e.Status,
		&e.WorkerID, &e.StartedAt, &e.FinishedAt, &e.Result, &e.Error,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrExecutionNotFound
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	return &e, nil
}
