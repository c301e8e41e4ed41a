package handler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/infrastructure/memstore"
	"github.com/taskflow/scheduler/internal/repository"
	"github.com/taskflow/scheduler/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

func newOccurrenceTestEngine() (*gin.Engine, *memstore.OccurrenceStore) {
	occurrenceRepo := memstore.NewOccurrenceStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewOccurrenceHandler(occurrenceRepo, logger)

	r := gin.New()
	r.GET("/occurrences/:id", h.GetByID)
	r.DELETE("/occurrences/:id", h.Cancel)
	r.GET("/tasks/:id/occurrences", h.ListForTask)
	return r, occurrenceRepo
}

func TestOccurrenceGetByID_NotFound_Returns404(t *testing.T) {
	r, _ := newOccurrenceTestEngine()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/occurrences/does-not-exist", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestOccurrenceGetByID_Found(t *testing.T) {
	r, occurrenceRepo := newOccurrenceTestEngine()
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	outcome, err := occurrenceRepo.UpsertOccurrence(t.Context(), repository.UpsertOccurrenceInput{
		TaskID:        "task-1",
		OccurrenceKey: "key-1",
		ScheduledFor:  now,
		InitialState:  domain.OccurrenceEnqueued,
	}, now)
	if err != nil {
		t.Fatalf("seed occurrence: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/occurrences/"+outcome.ID, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var got domain.Occurrence
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != outcome.ID || got.TaskID != "task-1" {
		t.Errorf("got %+v, want id=%s task_id=task-1", got, outcome.ID)
	}
}

func TestOccurrenceCancel_MarksCanceled(t *testing.T) {
	r, occurrenceRepo := newOccurrenceTestEngine()
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	outcome, err := occurrenceRepo.UpsertOccurrence(t.Context(), repository.UpsertOccurrenceInput{
		TaskID:        "task-1",
		OccurrenceKey: "key-1",
		ScheduledFor:  now,
		InitialState:  domain.OccurrenceEnqueued,
	}, now)
	if err != nil {
		t.Fatalf("seed occurrence: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/occurrences/"+outcome.ID, nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	got, err := occurrenceRepo.GetByID(t.Context(), outcome.ID)
	if err != nil {
		t.Fatalf("get after cancel: %v", err)
	}
	if got.State != domain.OccurrenceCanceled {
		t.Errorf("state = %q, want canceled", got.State)
	}
}

func TestOccurrenceListForTask(t *testing.T) {
	r, occurrenceRepo := newOccurrenceTestEngine()
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)

	if _, err := occurrenceRepo.UpsertOccurrence(t.Context(), repository.UpsertOccurrenceInput{
		TaskID: "task-1", OccurrenceKey: "key-1", ScheduledFor: now, InitialState: domain.OccurrenceEnqueued,
	}, now); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := occurrenceRepo.UpsertOccurrence(t.Context(), repository.UpsertOccurrenceInput{
		TaskID: "task-2", OccurrenceKey: "key-2", ScheduledFor: now, InitialState: domain.OccurrenceEnqueued,
	}, now); err != nil {
		t.Fatalf("seed: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/task-1/occurrences", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Occurrences []*domain.Occurrence `json:"occurrences"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Occurrences) != 1 || resp.Occurrences[0].TaskID != "task-1" {
		t.Errorf("expected one occurrence for task-1, got %+v", resp.Occurrences)
	}
}
