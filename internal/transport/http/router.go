package httptransport

import (
	"log/slog"

	"github.com/taskflow/scheduler/internal/transport/http/handler"
	"github.com/taskflow/scheduler/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"
)

// NewRouter wires the admin/read HTTP surface: task lifecycle management
// plus read-only occurrence and execution visibility. Every route under
// /tasks and /occurrences, reads included, sits behind bearer auth; there is
// no separate read-only role.
func NewRouter(logger *slog.Logger, taskHandler *handler.TaskHandler, occurrenceHandler *handler.OccurrenceHandler, executionHandler *handler.ExecutionHandler, jwtKey []byte) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	auth := middleware.Auth(jwtKey)

	tasks := r.Group("/tasks", auth)
	tasks.POST("", taskHandler.Create)
	tasks.GET("", taskHandler.List)
	tasks.GET("/:id", taskHandler.GetByID)
	tasks.POST("/:id/pause", taskHandler.Pause)
	tasks.POST("/:id/resume", taskHandler.Resume)
	tasks.DELETE("/:id", taskHandler.Cancel)
	tasks.GET("/:id/occurrences", occurrenceHandler.ListForTask)

	occurrences := r.Group("/occurrences", auth)
	occurrences.GET("/:id", occurrenceHandler.GetByID)
	occurrences.DELETE("/:id", occurrenceHandler.Cancel)
	occurrences.GET("/:id/executions", executionHandler.ListForOccurrence)

	return r
}
