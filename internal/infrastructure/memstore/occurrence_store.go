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

type occurrenceKey struct {
	taskID string
	key    string
}

type OccurrenceStore struct {
	mu          sync.Mutex
	occurrences map[string]*domain.Occurrence
	byKey       map[occurrenceKey]string // (task_id, occurrence_key) -> id
}

func NewOccurrenceStore() *OccurrenceStore {
	return &OccurrenceStore{
		occurrences: make(map[string]*domain.Occurrence),
		byKey:       make(map[occurrenceKey]string),
	}
}

func (s *OccurrenceStore) UpsertOccurrence(ctx context.Context, input repository.UpsertOccurrenceInput, now time.Time) (domain.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := occurrenceKey{taskID: input.TaskID, key: input.OccurrenceKey}
	if id, ok := s.byKey[k]; ok {
		s.occurrences[id].UpdatedAt = now
		return domain.UpsertOutcome{ID: id, Inserted: false}, nil
	}

	id := uuid.NewString()
	o := &domain.Occurrence{
		ID:            id,
		TaskID:        input.TaskID,
		OccurrenceKey: input.OccurrenceKey,
		ScheduledFor:  input.ScheduledFor,
		State:         input.InitialState,
		EnqueuedAt:    input.EnqueuedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.occurrences[id] = o
	s.byKey[k] = id
	return domain.UpsertOutcome{ID: id, Inserted: true}, nil
}

func (s *OccurrenceStore) GetByID(ctx context.Context, id string) (*domain.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.occurrences[id]
	if !ok {
		return nil, domain.ErrOccurrenceNotFound
	}
	out := *o
	return &out, nil
}

func (s *OccurrenceStore) List(ctx context.Context, input repository.ListOccurrencesInput) ([]*domain.Occurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Occurrence
	for _, o := range s.occurrences {
		if o.TaskID != input.TaskID {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledFor.Equal(out[j].ScheduledFor) {
			return out[i].ScheduledFor.After(out[j].ScheduledFor)
		}
		return out[i].ID > out[j].ID
	})
	if input.Limit > 0 && len(out) > input.Limit {
		out = out[:input.Limit]
	}
	return out, nil
}

func (s *OccurrenceStore) CountInState(ctx context.Context, taskID string, state domain.OccurrenceState) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, o := range s.occurrences {
		if o.TaskID == taskID && o.State == state {
			n++
		}
	}
	return n, nil
}

func (s *OccurrenceStore) CountRunningExcluding(ctx context.Context, taskID, excludeWorkerID, excludeOccurrenceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, o := range s.occurrences {
		if o.TaskID != taskID || o.State != domain.OccurrenceRunning || o.ID == excludeOccurrenceID {
			continue
		}
		if o.LockedBy != nil && *o.LockedBy == excludeWorkerID {
			continue
		}
		n++
	}
	return n, nil
}

func (s *OccurrenceStore) TransitionToEnqueued(ctx context.Context, id string, enqueuedAt, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.occurrences[id]
	if !ok {
		return false, domain.ErrOccurrenceNotFound
	}
	if o.State != domain.OccurrenceScheduled && o.State != domain.OccurrenceFailed {
		return false, nil
	}
	o.State = domain.OccurrenceEnqueued
	o.EnqueuedAt = &enqueuedAt
	o.Reason = nil
	o.UpdatedAt = now
	return true, nil
}

func (s *OccurrenceStore) RefreshEnqueuedAt(ctx context.Context, id string, enqueuedAt, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.occurrences[id]
	if !ok {
		return domain.ErrOccurrenceNotFound
	}
	if o.State != domain.OccurrenceEnqueued {
		return nil
	}
	if o.EnqueuedAt == nil || o.EnqueuedAt.Before(enqueuedAt) {
		o.EnqueuedAt = &enqueuedAt
		o.UpdatedAt = now
	}
	return nil
}

func (s *OccurrenceStore) ReclaimExpiredLeases(ctx context.Context, leaseTimeout time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-leaseTimeout)
	n := 0
	for _, o := range s.occurrences {
		if o.State != domain.OccurrenceRunning || o.LockedAt == nil {
			continue
		}
		if o.LockedAt.After(cutoff) {
			continue
		}
		o.State = domain.OccurrenceEnqueued
		o.EnqueuedAt = &now
		o.LockedAt = nil
		o.LockedBy = nil
		o.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *OccurrenceStore) ClaimBatch(ctx context.Context, workerID string, now time.Time, limit int) ([]domain.ClaimedOccurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*domain.Occurrence
	for _, o := range s.occurrences {
		if o.State != domain.OccurrenceEnqueued {
			continue
		}
		if o.EnqueuedAt == nil || o.EnqueuedAt.After(now) {
			continue
		}
		candidates = append(candidates, o)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ScheduledFor.Before(candidates[j].ScheduledFor)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	claimed := make([]domain.ClaimedOccurrence, 0, len(candidates))
	for _, o := range candidates {
		o.State = domain.OccurrenceRunning
		o.LockedAt = &now
		o.LockedBy = &workerID
		o.UpdatedAt = now
		claimed = append(claimed, domain.ClaimedOccurrence{ID: o.ID, TaskID: o.TaskID})
	}
	return claimed, nil
}

func (s *OccurrenceStore) MarkExecuted(ctx context.Context, id string, executedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.occurrences[id]
	if !ok {
		return domain.ErrOccurrenceNotFound
	}
	o.State = domain.OccurrenceExecuted
	o.ExecutedAt = &executedAt
	o.Reason = nil
	o.LockedAt, o.LockedBy = nil, nil
	o.UpdatedAt = executedAt
	return nil
}

func (s *OccurrenceStore) MarkFailed(ctx context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.occurrences[id]
	if !ok {
		return domain.ErrOccurrenceNotFound
	}
	o.State = domain.OccurrenceFailed
	o.Reason = &reason
	o.LockedAt, o.LockedBy = nil, nil
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *OccurrenceStore) MarkEnqueuedForRetry(ctx context.Context, id string, enqueuedAt time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.occurrences[id]
	if !ok {
		return domain.ErrOccurrenceNotFound
	}
	o.State = domain.OccurrenceEnqueued
	o.EnqueuedAt = &enqueuedAt
	o.Reason = &reason
	o.LockedAt, o.LockedBy = nil, nil
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *OccurrenceStore) MarkCanceled(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.occurrences[id]
	if !ok {
		return domain.ErrOccurrenceNotFound
	}
	o.State = domain.OccurrenceCanceled
	o.LockedAt, o.LockedBy = nil, nil
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *OccurrenceStore) MarkSkipped(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.occurrences[id]
	if !ok {
		return domain.ErrOccurrenceNotFound
	}
	o.State = domain.OccurrenceSkipped
	o.LockedAt, o.LockedBy = nil, nil
	o.UpdatedAt = time.Now().UTC()
	return nil
}
