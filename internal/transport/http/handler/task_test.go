package handler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/infrastructure/memstore"
	"github.com/taskflow/scheduler/internal/transport/http/handler"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTaskTestEngine() (*gin.Engine, *memstore.TaskStore) {
	taskRepo := memstore.NewTaskStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.NewTaskHandler(taskRepo, logger)

	r := gin.New()
	r.POST("/tasks", h.Create)
	r.GET("/tasks", h.List)
	r.GET("/tasks/:id", h.GetByID)
	r.POST("/tasks/:id/pause", h.Pause)
	r.POST("/tasks/:id/resume", h.Resume)
	r.DELETE("/tasks/:id", h.Cancel)
	return r, taskRepo
}

func TestTaskCreate_InvalidJSON_Returns400(t *testing.T) {
	r, _ := newTaskTestEngine()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{bad json}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTaskCreate_MissingRequiredFields_Returns400(t *testing.T) {
	r, _ := newTaskTestEngine()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(`{"name":"nightly-report"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTaskCreate_InvalidCronExpr_Returns400(t *testing.T) {
	r, _ := newTaskTestEngine()
	body := `{"name":"nightly-report","handler":"notify.email",
		"schedule_kind":"cron","schedule_expr":"not a cron expr","timezone":"UTC"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestTaskCreate_Success_DefaultsToShadow(t *testing.T) {
	r, _ := newTaskTestEngine()
	body := `{"name":"nightly-report","handler":"notify.email",
		"schedule_kind":"cron","schedule_expr":"0 2 * * *"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}

	var created domain.Task
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if created.Status != domain.StatusShadow {
		t.Errorf("status = %q, want shadow by default", created.Status)
	}
	if created.ID == "" {
		t.Error("expected a generated ID")
	}
}

func TestTaskCreate_DuplicateName_Returns409(t *testing.T) {
	r, _ := newTaskTestEngine()
	body := `{"name":"nightly-report","handler":"notify.email",
		"schedule_kind":"cron","schedule_expr":"0 2 * * *"}`

	w1 := httptest.NewRecorder()
	req1 := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body))
	req1.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w1, req1)
	if w1.Code != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", w1.Code)
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/tasks", strings.NewReader(body))
	req2.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusConflict {
		t.Errorf("second create status = %d, want 409", w2.Code)
	}
}

func TestTaskGetByID_NotFound_Returns404(t *testing.T) {
	r, _ := newTaskTestEngine()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks/does-not-exist", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestTaskLifecycle_PauseResumeCancel(t *testing.T) {
	r, taskRepo := newTaskTestEngine()
	created, err := taskRepo.Create(t.Context(), &domain.Task{
		Name:         "nightly-report",
		Handler:      "notify.email",
		ScheduleKind: domain.KindCron,
		ScheduleExpr: "CRON_TZ=UTC 0 2 * * *",
		Timezone:     "UTC",
		Status:       domain.StatusActive,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("seed task: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tasks/"+created.ID+"/pause", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("pause status = %d, want 204", w.Code)
	}

	paused, err := taskRepo.GetByID(t.Context(), created.ID)
	if err != nil {
		t.Fatalf("get after pause: %v", err)
	}
	if paused.Status != domain.StatusPaused {
		t.Errorf("status after pause = %q, want paused", paused.Status)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/tasks/"+created.ID+"/resume", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("resume status = %d, want 204", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/tasks/"+created.ID, nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want 204", w.Code)
	}

	canceled, err := taskRepo.GetByID(t.Context(), created.ID)
	if err != nil {
		t.Fatalf("get after cancel: %v", err)
	}
	if canceled.Status != domain.StatusCanceled {
		t.Errorf("status after cancel = %q, want canceled", canceled.Status)
	}
}

func TestTaskList_FiltersByStatus(t *testing.T) {
	r, taskRepo := newTaskTestEngine()
	mustSeedTask(t, taskRepo, "task-a", domain.StatusActive)
	mustSeedTask(t, taskRepo, "task-b", domain.StatusShadow)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tasks?status=shadow", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Tasks []*domain.Task `json:"tasks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].Name != "task-b" {
		t.Errorf("expected only task-b, got %+v", resp.Tasks)
	}
}

func mustSeedTask(t *testing.T, taskRepo *memstore.TaskStore, name string, status domain.TaskStatus) *domain.Task {
	t.Helper()
	created, err := taskRepo.Create(t.Context(), &domain.Task{
		Name:         name,
		Handler:      "notify.email",
		ScheduleKind: domain.KindCron,
		ScheduleExpr: "CRON_TZ=UTC 0 2 * * *",
		Timezone:     "UTC",
		Status:       status,
		IsActive:     true,
	})
	if err != nil {
		t.Fatalf("seed task %q: %v", name, err)
	}
	return created
}
