package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tunequeue/tunequeue/internal/config"
)

// NewPostgresPool connects to PostgreSQL without touching the schema.
func NewPostgresPool(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return pool, nil
}

// Open brings the schema up to date and returns a pool for the quota store
// and history repository. A dirty schema is fatal.
func Open(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	ver, err := RunMigrations(cfg.DSN(), cfg.MigrationsPath)
	if err != nil {
		return nil, err
	}
	pool, err := NewPostgresPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("database: connected", "host", cfg.Host, "db", cfg.Name, "schema_version", ver, "max_conns", cfg.MaxConns)
	return pool, nil
}

// HealthCheck reports whether the pool can reach the server.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool) error {
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}
