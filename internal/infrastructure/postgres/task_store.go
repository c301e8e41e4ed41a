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
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TaskStore struct {
	pool *pgxpool.Pool
}

func NewTaskStore(pool *pgxpool.Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

func (s *TaskStore) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	query := `
		INSERT INTO tasks (
			name, handler, payload, schedule_kind, schedule_expr, timezone,
			status, is_active, concurrency_limit, retry_policy, idempotency_scope
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, name, handler, payload, schedule_kind, schedule_expr, timezone,
		          status, is_active, concurrency_limit, retry_policy, idempotency_scope,
		          next_run_at, last_run_at, last_run_status, created_at, updated_at`

	row := s.pool.QueryRow(ctx, query,
		t.Name, t.Handler, t.Payload, t.ScheduleKind, t.ScheduleExpr, t.Timezone,
		t.Status, t.IsActive, t.ConcurrencyLimit, t.RetryPolicy, t.IdempotencyScope,
	)

	created, err := scanTask(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrTaskNameConflict
		}
		return nil, err
	}
	return created, nil
}

func (s *TaskStore) Update(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	query := `
		UPDATE tasks SET
			handler = $2, payload = $3, schedule_kind = $4, schedule_expr = $5,
			timezone = $6, status = $7, is_active = $8, concurrency_limit = $9,
			retry_policy = $10, idempotency_scope = $11, updated_at = NOW()
		WHERE name = $1
		RETURNING id, name, handler, payload, schedule_kind, schedule_expr, timezone,
		          status, is_active, concurrency_limit, retry_policy, idempotency_scope,
		          next_run_at, last_run_at, last_run_status, created_at, updated_at`

	row := s.pool.QueryRow(ctx, query,
		t.Name, t.Handler, t.Payload, t.ScheduleKind, t.ScheduleExpr, t.Timezone,
		t.Status, t.IsActive, t.ConcurrencyLimit, t.RetryPolicy, t.IdempotencyScope,
	)
	return scanTask(row)
}

func (s *TaskStore) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, taskSelect+` WHERE id = $1`, id)
	return scanTask(row)
}

func (s *TaskStore) GetByName(ctx context.Context, name string) (*domain.Task, error) {
	row := s.pool.QueryRow(ctx, taskSelect+` WHERE name = $1`, name)
	return scanTask(row)
}

func (s *TaskStore) List(ctx context.Context, input repository.ListTasksInput) ([]*domain.Task, error) {
	args := []any{}
	where := []string{"1=1"}

	if input.Status != "" {
		args = append(args, input.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}
	args = append(args, input.Limit)

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		taskSelect, strings.Join(where, " AND "), len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) ListRunnable(ctx context.Context) ([]*domain.Task, error) {
	query := taskSelect + ` WHERE is_active AND status IN ('active', 'shadow')`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list runnable tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (s *TaskStore) SetStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (s *TaskStore) UpdateNextRunAt(ctx context.Context, id string, nextRunAt *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET next_run_at = $2, updated_at = NOW() WHERE id = $1`, id, nextRunAt)
	return err
}

func (s *TaskStore) RecordRun(ctx context.Context, id string, status string, when time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tasks SET last_run_status = $2, last_run_at = $3, updated_at = NOW() WHERE id = $1`,
		id, status, when)
	return err
}

const taskSelect = `
	SELECT id, name, handler, payload, schedule_kind, schedule_expr, timezone,
	       status, is_active, concurrency_limit, retry_policy, idempotency_scope,
	       next_run_at, last_run_at, last_run_status, created_at, updated_at
	FROM tasks`

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var lastRunStatus *string
	err := row.Scan(
		&t.ID, &t.Name, &t.Handler, &t.Payload, &t.ScheduleKind, &t.ScheduleExpr, &t.Timezone,
		&t.Status, &t.IsActive, &t.ConcurrencyLimit, &t.RetryPolicy, &t.IdempotencyScope,
		&t.NextRunAt, &t.LastRunAt, &lastRunStatus, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if lastRunStatus != nil {
		t.LastRunStatus = *lastRunStatus
	}
	return &t, nil
}
