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
	"github.com/taskflow/scheduler/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

func newExecutionTestEngine() (*gin.Engine, *memstore.ExecutionStore) {
	executionRepo := memstore.NewExecutionStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewExecutionHandler(executionRepo, logger)

	r := gin.New()
	r.GET("/occurrences/:id/executions", h.ListForOccurrence)
	return r, executionRepo
}

func TestExecutionListForOccurrence_Empty(t *testing.T) {
	r, _ := newExecutionTestEngine()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/occurrences/does-not-exist/executions", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Executions []*domain.Execution `json:"executions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Executions) != 0 {
		t.Errorf("expected no executions, got %d", len(resp.Executions))
	}
}

func TestExecutionListForOccurrence_OrderedByAttempt(t *testing.T) {
	r, executionRepo := newExecutionTestEngine()
	started := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)

	for attempt := 2; attempt >= 1; attempt-- {
		if _, err := executionRepo.Create(t.Context(), &domain.Execution{
			TaskID:       "task-1",
			OccurrenceID: "occ-1",
			AttemptNo:    attempt,
			TriggerType:  domain.TriggerSchedule,
			Status:       domain.ExecutionFailed,
			WorkerID:     "worker-a",
			StartedAt:    started,
		}); err != nil {
			t.Fatalf("seed execution attempt %d: %v", attempt, err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/occurrences/occ-1/executions", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Executions []*domain.Execution `json:"executions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Executions) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(resp.Executions))
	}
	if resp.Executions[0].AttemptNo != 1 || resp.Executions[1].AttemptNo != 2 {
		t.Errorf("expected attempts ordered 1,2 — got %d,%d", resp.Executions[0].AttemptNo, resp.Executions[1].AttemptNo)
	}
}
