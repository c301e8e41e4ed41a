package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/taskflow/scheduler/internal/domain"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env  string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	Port string `env:"PORT" envDefault:"8080" validate:"required"`

	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	WorkerCount       int `env:"WORKER_COUNT" envDefault:"5" validate:"min=1,max=100"`
	PollIntervalSec   int `env:"POLL_INTERVAL_SEC" envDefault:"1" validate:"min=1,max=60"`
	EnqueueIntervalSec int `env:"ENQUEUE_INTERVAL_SEC" envDefault:"10" validate:"min=1,max=60"`

	LookaheadSeconds    int `env:"LOOKAHEAD_SECONDS" envDefault:"60" validate:"min=1"`
	MaxEnqueuedPerTask  int `env:"MAX_ENQUEUED_PER_TASK" envDefault:"100" validate:"min=1"`
	ClaimBatchSize      int `env:"CLAIM_BATCH_SIZE" envDefault:"10" validate:"min=1,max=1000"`
	LeaseTimeoutSeconds int `env:"LEASE_TIMEOUT_SECONDS" envDefault:"600" validate:"min=1"`

	DefaultMaxAttempts int    `env:"DEFAULT_MAX_ATTEMPTS" envDefault:"3" validate:"min=1"`
	DefaultBackoff     string `env:"DEFAULT_BACKOFF" envDefault:"exponential" validate:"oneof=exponential constant"`
	DefaultBaseSeconds int    `env:"DEFAULT_BASE_SECONDS" envDefault:"30" validate:"min=1"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	JWTSecret    string `env:"JWT_SECRET" validate:"required_if=Env production,required_if=Env staging"`
	ResendAPIKey string `env:"RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	ResendFrom   string `env:"RESEND_FROM" validate:"required_if=Env production,required_if=Env staging"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) LeaseTimeout() time.Duration {
	return time.Duration(c.LeaseTimeoutSeconds) * time.Second
}

// DefaultRetryPolicy builds a RetryPolicy from the DEFAULT_* settings. Task
// creation (the HTTP handler and schedulectl register) does not call it: a
// task created without a retry policy gets domain.DefaultRetryPolicy, so the
// DEFAULT_* settings have no effect on new tasks.
func (c *Config) DefaultRetryPolicy() domain.RetryPolicy {
	return domain.RetryPolicy{
		MaxAttempts: c.DefaultMaxAttempts,
		Backoff:     domain.Backoff(c.DefaultBackoff),
		BaseSeconds: c.DefaultBaseSeconds,
	}
}
