package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/tunequeue/tunequeue/internal/middleware"
)

// readinessTimeout bounds each dependency check on /health/ready.
const readinessTimeout = 2 * time.Second

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	SubmitDownload  http.HandlerFunc
	GetUserQuota    http.HandlerFunc
	ListUserHistory http.HandlerFunc
	QueueStatus     http.HandlerFunc

	// Worker pool health
	WorkerPoolHealthy func() bool
}

// HealthCheck is one dependency probed by the readiness endpoint.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	SubmitThrottle     func(http.Handler) http.Handler
	HealthChecks       []HealthCheck
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe: always 200, no dependency checks.
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{"status": "healthy"}
		status := http.StatusOK

		for _, hc := range cfg.HealthChecks {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			err := hc.Check(ctx)
			cancel()
			if err != nil {
				health[hc.Name] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			health[hc.Name] = "healthy"
		}

		if h.WorkerPoolHealthy != nil {
			if h.WorkerPoolHealthy() {
				health["workers"] = "healthy"
			} else {
				health["workers"] = "no workers running"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		} else {
			health["workers"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.SubmitThrottle != nil {
				r.Use(cfg.SubmitThrottle)
			}
			r.Post("/downloads", h.SubmitDownload)
		})

		r.Get("/queue", h.QueueStatus)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/quota", h.GetUserQuota)
			if h.ListUserHistory != nil {
				r.Get("/history", h.ListUserHistory)
			}
		})
	})

	return r
}
