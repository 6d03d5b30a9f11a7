// Package submission turns download requests into queued jobs. Each request
// passes the per-user rate limiter, then the daily quota gate, then the
// bounded queue.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tunequeue/tunequeue/internal/metrics"
	"github.com/tunequeue/tunequeue/internal/queue"
	"github.com/tunequeue/tunequeue/internal/quota"
	"github.com/tunequeue/tunequeue/internal/ratelimit"
)

// Sources label where a request came from.
const (
	SourceHTTP = "http"
	SourceNATS = "nats"
)

var (
	// ErrThrottled means the requester is submitting too fast. Callers drop
	// the request without telling the requester.
	ErrThrottled = errors.New("submission throttled")
	// ErrQueueFull is retriable.
	ErrQueueFull = errors.New("queue full")
	// ErrShuttingDown means the queue no longer accepts jobs.
	ErrShuttingDown = errors.New("shutting down")
	// ErrInvalid wraps malformed requests.
	ErrInvalid = errors.New("invalid request")
)

// Request is one download request.
type Request struct {
	UserID   string
	Resource string
	ReplyTo  string
}

// Receipt confirms an accepted request.
type Receipt struct {
	Job      queue.Job
	Position int
}

type Service struct {
	limiter ratelimit.Limiter
	gate    *quota.Gate
	q       *queue.Queue
}

// NewService wires the admission chain. limiter may be nil to disable throttling.
func NewService(limiter ratelimit.Limiter, gate *quota.Gate, q *queue.Queue) *Service {
	return &Service{limiter: limiter, gate: gate, q: q}
}

// Gate returns the quota gate used for admission.
func (s *Service) Gate() *quota.Gate {
	return s.gate
}

// Queue returns the job queue.
func (s *Service) Queue() *queue.Queue {
	return s.q
}

// RetryAfter is how long a requester denied by the daily limit should wait.
func (s *Service) RetryAfter() time.Duration {
	return s.gate.Service().UntilReset()
}

// Submit admits a request into the queue. A denied quota check returns the
// gate's *quota.LimitExceededError unchanged.
func (s *Service) Submit(ctx context.Context, source string, req Request) (Receipt, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Resource = strings.TrimSpace(req.Resource)
	if req.UserID == "" || req.Resource == "" {
		s.count(source, "invalid")
		return Receipt{}, fmt.Errorf("%w: user and resource are required", ErrInvalid)
	}

	if s.q.Closed() {
		s.count(source, "shutting_down")
		return Receipt{}, ErrShuttingDown
	}

	if s.limiter != nil && !s.limiter.Allow(ctx, req.UserID) {
		s.count(source, "throttled")
		slog.Debug("submission: throttled", "user_id", req.UserID, "source", source)
		return Receipt{}, ErrThrottled
	}

	if err := s.gate.Admit(ctx, req.UserID); err != nil {
		s.count(source, "denied")
		slog.Info("submission: admission denied", "user_id", req.UserID, "error", err)
		return Receipt{}, err
	}

	job := queue.NewJob(req.UserID, req.Resource, req.ReplyTo)
	pos, err := s.q.Enqueue(job)
	switch {
	case errors.Is(err, queue.ErrFull):
		s.count(source, "queue_full")
		slog.Warn("submission: queue full", "user_id", req.UserID, "capacity", s.q.Cap())
		return Receipt{}, ErrQueueFull
	case errors.Is(err, queue.ErrClosed):
		s.count(source, "shutting_down")
		return Receipt{}, ErrShuttingDown
	case err != nil:
		return Receipt{}, fmt.Errorf("enqueueing job: %w", err)
	}

	s.count(source, "accepted")
	slog.Info("submission: job queued",
		"job_id", job.ID, "user_id", job.RequesterID, "resource", job.Resource,
		"position", pos, "source", source)
	return Receipt{Job: job, Position: pos}, nil
}

func (s *Service) count(source, result string) {
	metrics.SubmissionsTotal.WithLabelValues(source, result).Inc()
}
