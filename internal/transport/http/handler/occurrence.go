package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/repository"
	"github.com/gin-gonic/gin"
)

// OccurrenceHandler exposes read-only visibility into a task's materialized
// fire times, plus the admin-triggered cancel action.
type OccurrenceHandler struct {
	occurrenceRepo repository.OccurrenceRepository
	logger         *slog.Logger
}

func NewOccurrenceHandler(occurrenceRepo repository.OccurrenceRepository, logger *slog.Logger) *OccurrenceHandler {
	return &OccurrenceHandler{occurrenceRepo: occurrenceRepo, logger: logger.With("component", "occurrence_handler")}
}

func (h *OccurrenceHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	occurrence, err := h.occurrenceRepo.GetByID(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrOccurrenceNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errOccurrenceNotFound})
			return
		}
		h.logger.Error("get occurrence by id", "occurrence_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, occurrence)
}

// ListForTask lists occurrences belonging to the :id task (mounted under
// /tasks/:id/occurrences).
func (h *OccurrenceHandler) ListForTask(ctx *gin.Context) {
	taskID := ctx.Param("id")

	occurrences, err := h.occurrenceRepo.List(ctx.Request.Context(), repository.ListOccurrencesInput{
		TaskID: taskID,
		Limit:  100,
	})
	if err != nil {
		h.logger.Error("list occurrences", "task_id", taskID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"occurrences": occurrences})
}

// Cancel marks a not-yet-terminal occurrence canceled, keeping the worker
// loop from ever claiming it (spec.md's occurrence state machine).
func (h *OccurrenceHandler) Cancel(ctx *gin.Context) {
	id := ctx.Param("id")

	if err := h.occurrenceRepo.MarkCanceled(ctx.Request.Context(), id); err != nil {
		if errors.Is(err, domain.ErrOccurrenceNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errOccurrenceNotFound})
			return
		}
		h.logger.Error("cancel occurrence", "occurrence_id", id, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.Status(http.StatusNoContent)
}
