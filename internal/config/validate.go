package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that would stop the service from running.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// Queue and workers
	if c.Queue.Capacity < 0 {
		errs = append(errs, fmt.Sprintf("QUEUE_CAPACITY must be >= 0, got %d", c.Queue.Capacity))
	}
	if c.Worker.Count < 1 {
		errs = append(errs, fmt.Sprintf("WORKER_COUNT must be >= 1, got %d", c.Worker.Count))
	}
	if c.Worker.Cooldown < 0 {
		errs = append(errs, "WORKER_COOLDOWN must not be negative")
	}
	if c.Worker.ShutdownTimeout <= 0 {
		errs = append(errs, "WORKER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Worker.AbortGrace < 0 {
		errs = append(errs, "WORKER_ABORT_GRACE must not be negative")
	}

	// Quota
	switch c.Quota.Backend {
	case BackendMemory, BackendSQLite, BackendPostgres, BackendRedis:
	default:
		errs = append(errs, fmt.Sprintf("QUOTA_BACKEND must be one of memory, sqlite, postgres, redis; got %q", c.Quota.Backend))
	}
	if c.Quota.DailyLimit < 0 {
		errs = append(errs, fmt.Sprintf("QUOTA_DAILY_LIMIT must be >= 0, got %d", c.Quota.DailyLimit))
	}
	if c.Quota.Backend == BackendSQLite && c.Quota.SQLitePath == "" {
		errs = append(errs, "QUOTA_SQLITE_PATH is required for the sqlite backend")
	}

	// Rate limiter
	switch c.RateLimit.Backend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Sprintf("RATELIMIT_BACKEND must be memory or redis; got %q", c.RateLimit.Backend))
	}
	if c.RateLimit.Burst < 1 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_BURST must be >= 1, got %d", c.RateLimit.Burst))
	}
	if c.RateLimit.Period <= 0 {
		errs = append(errs, "RATELIMIT_PERIOD must be positive")
	}
	if c.RateLimit.IPBurst < 0 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_IP_BURST must be >= 0, got %d", c.RateLimit.IPBurst))
	}
	if c.RateLimit.Rate <= 0 {
		slog.Warn("RATELIMIT_RATE is not positive, users over the burst limit will wait for the window to clear")
	}

	// Fetcher and delivery
	if c.Fetch.Command == "" {
		errs = append(errs, "FETCH_COMMAND is required")
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, "FETCH_TIMEOUT must be positive")
	}
	if c.Delivery.MaxBytes <= 0 {
		errs = append(errs, "DELIVERY_MAX_BYTES must be positive")
	}
	if c.NATS.URL == "" {
		errs = append(errs, "NATS_URL is required")
	}

	// Backing stores
	if c.NeedsPostgres() && c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required when QUOTA_BACKEND=postgres or HISTORY_ENABLED=true")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.NeedsPostgres() && (c.DB.Port < 1 || c.DB.Port > 65535) {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.NeedsRedis() && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
