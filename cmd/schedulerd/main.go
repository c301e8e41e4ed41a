// schedulerd runs the enqueue loop and the worker loop: the two halves of
// the scheduling engine that turn task definitions into executed handlers.
// Run: go run ./cmd/schedulerd
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taskflow/scheduler/config"
	"github.com/taskflow/scheduler/internal/handlers"
	"github.com/taskflow/scheduler/internal/handlers/notify"
	"github.com/taskflow/scheduler/internal/health"
	"github.com/taskflow/scheduler/internal/infrastructure/postgres"
	ctxlog "github.com/taskflow/scheduler/internal/log"
	"github.com/taskflow/scheduler/internal/metrics"
	"github.com/taskflow/scheduler/internal/scheduler"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	taskRepo := postgres.NewTaskStore(pool)
	occurrenceRepo := postgres.NewOccurrenceStore(pool)
	executionRepo := postgres.NewExecutionStore(pool)

	registry := handlers.NewRegistry()
	notifySender := notify.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)
	registry.Register("notify.email", notify.Handler(notifySender))

	enqueueLoop := scheduler.NewEnqueueLoop(
		taskRepo,
		occurrenceRepo,
		logger,
		time.Duration(cfg.EnqueueIntervalSec)*time.Second,
		time.Duration(cfg.LookaheadSeconds)*time.Second,
		cfg.MaxEnqueuedPerTask,
	)
	go enqueueLoop.Start(ctx)

	worker := scheduler.NewWorker(
		taskRepo,
		occurrenceRepo,
		executionRepo,
		registry,
		logger,
		time.Duration(cfg.PollIntervalSec)*time.Second,
		cfg.LeaseTimeout(),
		cfg.ClaimBatchSize,
	)
	go worker.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("schedulerd shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
