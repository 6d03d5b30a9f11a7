package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tunequeue/tunequeue/internal/api"
	"github.com/tunequeue/tunequeue/internal/config"
	"github.com/tunequeue/tunequeue/internal/database"
	"github.com/tunequeue/tunequeue/internal/delivery"
	"github.com/tunequeue/tunequeue/internal/fetch"
	"github.com/tunequeue/tunequeue/internal/history"
	"github.com/tunequeue/tunequeue/internal/metrics"
	mw "github.com/tunequeue/tunequeue/internal/middleware"
	inats "github.com/tunequeue/tunequeue/internal/nats"
	"github.com/tunequeue/tunequeue/internal/queue"
	"github.com/tunequeue/tunequeue/internal/quota"
	"github.com/tunequeue/tunequeue/internal/ratelimit"
	iredis "github.com/tunequeue/tunequeue/internal/redis"
	"github.com/tunequeue/tunequeue/internal/server"
	"github.com/tunequeue/tunequeue/internal/shutdown"
	"github.com/tunequeue/tunequeue/internal/submission"
	"github.com/tunequeue/tunequeue/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	if err := run(cfg); err != nil {
		slog.Error("tunequeue stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var checks []api.HealthCheck

	// PostgreSQL
	var pool *pgxpool.Pool
	if cfg.NeedsPostgres() {
		var err error
		pool, err = database.Open(ctx, cfg.DB)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		checks = append(checks, api.HealthCheck{Name: "database", Check: func(ctx context.Context) error {
			return database.HealthCheck(ctx, pool)
		}})
	}

	// Redis
	var redisClient *goredis.Client
	if cfg.NeedsRedis() {
		var err error
		redisClient, err = iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer redisClient.Close()
		checks = append(checks, api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return iredis.HealthCheck(ctx, redisClient)
		}})
	}

	// NATS
	natsClient, err := inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer natsClient.Close()
	checks = append(checks, api.HealthCheck{Name: "nats", Check: func(context.Context) error {
		if !natsClient.Healthy() {
			return errors.New("nats disconnected")
		}
		return nil
	}})

	publisher := inats.NewPublisher(natsClient.JetStream())
	consumerMgr := inats.NewConsumerManager(natsClient.JetStream())

	// Quota
	store, storeCheck, closeStore, err := openQuotaStore(ctx, cfg, pool, redisClient)
	if err != nil {
		return err
	}
	defer closeStore()
	if storeCheck != nil {
		checks = append(checks, *storeCheck)
	}
	gate := quota.NewGate(quota.NewService(store, cfg.Quota.Location), cfg.Quota.DailyLimit)

	// Rate limiting
	params := ratelimit.Params{Rate: cfg.RateLimit.Rate, Burst: cfg.RateLimit.Burst, Period: cfg.RateLimit.Period}
	limiter := newLimiter(cfg.RateLimit.Backend, params, redisClient)
	if c, ok := limiter.(interface{ Close() }); ok {
		defer c.Close()
	}

	// Queue and workers
	q := queue.New(cfg.Queue.Capacity)
	metrics.RegisterQueueGauges(q.Len, q.Cap())

	transport := delivery.NewNATS(publisher, cfg.Delivery.MaxBytes, natsClient.MaxPayload())
	workers := worker.NewPool(worker.Config{Count: cfg.Worker.Count, Cooldown: cfg.Worker.Cooldown}, q, worker.Deps{
		Gate:     gate,
		Fetcher:  fetch.NewCommand(cfg.Fetch),
		Delivery: transport,
		Notifier: transport,
		Recorder: history.NewRecorder(publisher),
	})
	coordinator := shutdown.NewCoordinator(shutdown.Config{
		Timeout:    cfg.Worker.ShutdownTimeout,
		AbortGrace: cfg.Worker.AbortGrace,
	}, q, workers, transport)

	// Submission
	submitSvc := submission.NewService(limiter, gate, q)
	submitHandler := submission.NewHandler(submitSvc, workers)
	submitConsumer := submission.NewConsumer(submitSvc, transport, consumerMgr)

	// History
	var historyConsumer *history.Consumer
	handlers := api.HandlerSet{
		SubmitDownload:    submitHandler.Submit,
		GetUserQuota:      submitHandler.GetQuota,
		QueueStatus:       submitHandler.QueueStatus,
		WorkerPoolHealthy: workers.Healthy,
	}
	if cfg.History.Enabled {
		repo := history.NewRepository(pool)
		historyConsumer = history.NewConsumer(repo, consumerMgr)
		handlers.ListUserHistory = history.NewHandler(repo).ListByUser
	} else {
		handlers.ListUserHistory = history.NewHandler(nil).ListByUser
	}

	// Router
	routerCfg := api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		HealthChecks:       checks,
	}
	if cfg.RateLimit.IPBurst > 0 {
		ipLimiter := ratelimit.NewMemoryLimiter(ratelimit.Params{
			Rate:   cfg.RateLimit.Rate,
			Burst:  cfg.RateLimit.IPBurst,
			Period: cfg.RateLimit.Period,
		})
		defer ipLimiter.Close()
		routerCfg.SubmitThrottle = mw.ThrottleByIP(ipLimiter, cfg.RateLimit.Period)
	}
	srv := server.New(cfg.Server, api.NewRouter(routerCfg, handlers))

	workers.Start(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return submitConsumer.Start(gctx) })
	if historyConsumer != nil {
		g.Go(func() error { return historyConsumer.Start(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		report := coordinator.Shutdown(context.Background())
		if len(report.Abandoned) > 0 {
			return fmt.Errorf("%d jobs abandoned in flight", len(report.Abandoned))
		}
		return nil
	})

	slog.Info("tunequeue running",
		"workers", cfg.Worker.Count,
		"queue_capacity", cfg.Queue.Capacity,
		"quota_backend", cfg.Quota.Backend,
		"daily_limit", cfg.Quota.DailyLimit,
		"ratelimit_backend", cfg.RateLimit.Backend,
		"history", cfg.History.Enabled,
	)

	return g.Wait()
}

// openQuotaStore builds the configured quota backend. The returned closer is
// always safe to call.
func openQuotaStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, rdb *goredis.Client) (quota.Store, *api.HealthCheck, func(), error) {
	noop := func() {}
	switch cfg.Quota.Backend {
	case config.BackendMemory:
		slog.Warn("quota counts are kept in memory and reset on restart")
		return quota.NewMemoryStore(), nil, noop, nil
	case config.BackendPostgres:
		return quota.NewPostgresStore(pool), nil, noop, nil
	case config.BackendRedis:
		return quota.NewRedisStore(rdb), nil, noop, nil
	default:
		store, err := quota.OpenSQLite(ctx, cfg.Quota.SQLitePath)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("opening quota database: %w", err)
		}
		closer := func() {
			if err := store.Close(); err != nil {
				slog.Warn("closing quota database", "error", err)
			}
		}
		return store, &api.HealthCheck{Name: "quota_db", Check: store.Ping}, closer, nil
	}
}

func newLimiter(backend string, params ratelimit.Params, rdb *goredis.Client) ratelimit.Limiter {
	if backend == config.BackendRedis {
		return ratelimit.NewRedisLimiter(rdb, params)
	}
	return ratelimit.NewMemoryLimiter(params)
}

func setupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
