package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/google/uuid"
)

type ExecutionStore struct {
	mu         sync.Mutex
	executions map[string]*domain.Execution
}

func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{executions: make(map[string]*domain.Execution)}
}

func (s *ExecutionStore) Create(ctx context.Context, e *domain.Execution) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	cp.ID = uuid.NewString()
	s.executions[cp.ID] = &cp

	out := cp
	return &out, nil
}

func (s *ExecutionStore) MaxAttempt(ctx context.Context, occurrenceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	max := 0
	for _, e := range s.executions {
		if e.OccurrenceID == occurrenceID && e.AttemptNo > max {
			max = e.AttemptNo
		}
	}
	return max, nil
}

func (s *ExecutionStore) Complete(ctx context.Context, id string, status domain.ExecutionStatus, result map[string]any, execErr *domain.ExecutionError, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return domain.ErrExecutionNotFound
	}
	e.Status = status
	e.Result = result
	e.Error = execErr
	e.FinishedAt = &finishedAt
	return nil
}

func (s *ExecutionStore) ListByOccurrence(ctx context.Context, occurrenceID string) ([]*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Execution
	for _, e := range s.executions {
		if e.OccurrenceID == occurrenceID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AttemptNo < out[j].AttemptNo })
	return out, nil
}
