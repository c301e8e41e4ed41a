package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/repository"
	"github.com/taskflow/scheduler/internal/scheduleexpr"
	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskRepo repository.TaskRepository
	logger   *slog.Logger
}

func NewTaskHandler(taskRepo repository.TaskRepository, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{taskRepo: taskRepo, logger: logger.With("component", "task_handler")}
}

type createTaskRequest struct {
	Name             string                `json:"name"              binding:"required"`
	Handler          string                `json:"handler"           binding:"required"`
	Payload          map[string]any        `json:"payload"`
	ScheduleKind     domain.ScheduleKind   `json:"schedule_kind"     binding:"required,oneof=cron one-shot recurrence-rule fixed-interval"`
	ScheduleExpr     string                `json:"schedule_expr"     binding:"required"`
	Timezone         string                `json:"timezone"`
	Status           domain.TaskStatus     `json:"status"            binding:"omitempty,oneof=shadow active paused"`
	ConcurrencyLimit int                   `json:"concurrency_limit"`
	RetryPolicy      *domain.RetryPolicy   `json:"retry_policy"`
	IdempotencyScope string                `json:"idempotency_scope"`
}

func (h *TaskHandler) Create(ctx *gin.Context) {
	var req createTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if err := scheduleexpr.Validate(req.ScheduleKind, req.ScheduleExpr, req.Timezone); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": errInvalidSchedule, "detail": err.Error()})
		return
	}

	status := req.Status
	if status == "" {
		status = domain.StatusShadow
	}
	retryPolicy := domain.DefaultRetryPolicy
	if req.RetryPolicy != nil {
		retryPolicy = *req.RetryPolicy
	}

	task := &domain.Task{
		Name:             req.Name,
		Handler:          req.Handler,
		Payload:          req.Payload,
		ScheduleKind:     req.ScheduleKind,
		ScheduleExpr:     req.ScheduleExpr,
		Timezone:         req.Timezone,
		Status:           status,
		IsActive:         true,
		ConcurrencyLimit: req.ConcurrencyLimit,
		RetryPolicy:      retryPolicy,
		IdempotencyScope: req.IdempotencyScope,
	}

	created, err := h.taskRepo.Create(ctx.Request.Context(), task)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNameConflict) {
			ctx.JSON(http.StatusConflict, gin.H{"error": errDuplicateTask})
			return
		}
		h.logger.Error("create task", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusCreated, created)
}

func (h *TaskHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	task, err := h.taskRepo.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTaskNotFound})
			return
		}
		h.logger.Error("get task by id", "task_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, task)
}

func (h *TaskHandler) List(ctx *gin.Context) {
	input := repository.ListTasksInput{
		Status: domain.TaskStatus(ctx.Query("status")),
		Limit:  100,
	}

	tasks, err := h.taskRepo.List(ctx.Request.Context(), input)
	if err != nil {
		h.logger.Error("list tasks", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (h *TaskHandler) Pause(ctx *gin.Context) {
	h.setStatus(ctx, domain.StatusPaused)
}

func (h *TaskHandler) Resume(ctx *gin.Context) {
	h.setStatus(ctx, domain.StatusActive)
}

func (h *TaskHandler) Cancel(ctx *gin.Context) {
	h.setStatus(ctx, domain.StatusCanceled)
}

func (h *TaskHandler) setStatus(ctx *gin.Context, status domain.TaskStatus) {
	id := ctx.Param("id")

	if err := h.taskRepo.SetStatus(ctx.Request.Context(), id, status); err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errTaskNotFound})
			return
		}
		h.logger.Error("set task status", "task_id", id, "status", status, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.Status(http.StatusNoContent)
}
