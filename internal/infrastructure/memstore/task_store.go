// Package memstore is the embedded, single-writer dialect of the repository
// layer: every operation serializes on one mutex instead of relying on
// Postgres row locks, giving tests the same claim-exactly-once guarantees as
// the production dialect without a database (spec.md §4.1/§9 "dual dialect").
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/repository"
	"github.com/google/uuid"
)

type TaskStore struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
}

func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[string]*domain.Task)}
}

func (s *TaskStore) Create(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tasks {
		if existing.Name == t.Name {
			return nil, domain.ErrTaskNameConflict
		}
	}

	cp := *t
	cp.ID = uuid.NewString()
	cp.CreatedAt = time.Now().UTC()
	cp.UpdatedAt = cp.CreatedAt
	s.tasks[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *TaskStore) Update(ctx context.Context, t *domain.Task) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.tasks {
		if existing.Name == t.Name {
			cp := *existing
			cp.Handler = t.Handler
			cp.Payload = t.Payload
			cp.ScheduleKind = t.ScheduleKind
			cp.ScheduleExpr = t.ScheduleExpr
			cp.Timezone = t.Timezone
			cp.Status = t.Status
			cp.IsActive = t.IsActive
			cp.ConcurrencyLimit = t.ConcurrencyLimit
			cp.RetryPolicy = t.RetryPolicy
			cp.IdempotencyScope = t.IdempotencyScope
			cp.UpdatedAt = time.Now().UTC()
			s.tasks[cp.ID] = &cp
			out := cp
			return &out, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (s *TaskStore) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	out := *t
	return &out, nil
}

func (s *TaskStore) GetByName(ctx context.Context, name string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.Name == name {
			out := *t
			return &out, nil
		}
	}
	return nil, domain.ErrTaskNotFound
}

func (s *TaskStore) List(ctx context.Context, input repository.ListTasksInput) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Task
	for _, t := range s.tasks {
		if input.Status != "" && t.Status != input.Status {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if input.Limit > 0 && len(out) > input.Limit {
		out = out[:input.Limit]
	}
	return out, nil
}

func (s *TaskStore) ListRunnable(ctx context.Context) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Task
	for _, t := range s.tasks {
		if t.Runnable() {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *TaskStore) SetStatus(ctx context.Context, id string, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	t.Status = status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return domain.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *TaskStore) UpdateNextRunAt(ctx context.Context, id string, nextRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	t.NextRunAt = nextRunAt
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *TaskStore) RecordRun(ctx context.Context, id string, status string, when time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return domain.ErrTaskNotFound
	}
	t.LastRunStatus = status
	t.LastRunAt = &when
	t.UpdatedAt = time.Now().UTC()
	return nil
}
