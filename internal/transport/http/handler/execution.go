package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/taskflow/scheduler/internal/repository"
	"github.com/gin-gonic/gin"
)

// ExecutionHandler exposes the per-attempt execution history of an
// occurrence — the audit trail a human needs when asking "why did this fire
// retry three times".
type ExecutionHandler struct {
	executionRepo repository.ExecutionRepository
	logger        *slog.Logger
}

func NewExecutionHandler(executionRepo repository.ExecutionRepository, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{executionRepo: executionRepo, logger: logger.With("component", "execution_handler")}
}

// ListForOccurrence lists executions for the :id occurrence (mounted under
// /occurrences/:id/executions).
func (h *ExecutionHandler) ListForOccurrence(ctx *gin.Context) {
	occurrenceID := ctx.Param("id")

	executions, err := h.executionRepo.ListByOccurrence(ctx.Request.Context(), occurrenceID)
	if err != nil {
		if errors.Is(err, domain.ErrExecutionNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": errExecutionNotFound})
			return
		}
		h.logger.Error("list executions", "occurrence_id", occurrenceID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": errInternalServer})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"executions": executions})
}
