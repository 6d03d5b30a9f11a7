// Package shutdown stops the job pipeline in order: producers first, then
// workers, then whatever is left in the queue.
package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tunequeue/tunequeue/internal/metrics"
	"github.com/tunequeue/tunequeue/internal/queue"
	"github.com/tunequeue/tunequeue/internal/worker"
)

const droppedText = "The service is restarting and your request was not processed. Please send it again in a moment."

// notifyTimeout bounds each best-effort notice sent to a dropped requester.
const notifyTimeout = 5 * time.Second

// Pool is the part of the worker pool the coordinator drives.
type Pool interface {
	Stop()
	Abort()
	Wait(ctx context.Context) error
	InFlight() []queue.Job
}

// Config holds the two shutdown deadlines.
type Config struct {
	// Timeout is how long workers get to finish their current job.
	Timeout time.Duration
	// AbortGrace is how long aborted jobs get to reach a checkpoint.
	AbortGrace time.Duration
}

// Report summarizes what a shutdown left behind.
type Report struct {
	// Dropped were still queued and never started.
	Dropped []queue.Job
	// Abandoned were taken by a worker that had not finished after the grace period.
	Abandoned []queue.Job
	// TimedOut is set when workers had to be aborted.
	TimedOut bool
}

type Coordinator struct {
	cfg      Config
	q        *queue.Queue
	pool     Pool
	notifier worker.Notifier
}

// NewCoordinator creates a coordinator. notifier may be nil.
func NewCoordinator(cfg Config, q *queue.Queue, pool Pool, notifier worker.Notifier) *Coordinator {
	return &Coordinator{cfg: cfg, q: q, pool: pool, notifier: notifier}
}

// Shutdown closes the queue, lets workers finish, aborts them after the
// timeout and reports dropped and abandoned jobs. ctx bounds the whole
// sequence on top of the configured deadlines.
func (c *Coordinator) Shutdown(ctx context.Context) Report {
	var report Report
	start := time.Now()

	c.q.Close()
	slog.Info("shutdown: queue closed", "queued", c.q.Len(), "in_flight", len(c.pool.InFlight()))

	c.pool.Stop()
	if err := c.wait(ctx, c.cfg.Timeout); err != nil {
		report.TimedOut = true
		slog.Warn("shutdown: workers did not finish in time, aborting",
			"timeout", c.cfg.Timeout, "in_flight", len(c.pool.InFlight()))

		c.pool.Abort()
		if err := c.wait(ctx, c.cfg.AbortGrace); err != nil {
			report.Abandoned = c.pool.InFlight()
			for _, job := range report.Abandoned {
				slog.Error("shutdown: job abandoned in flight",
					"job_id", job.ID, "user_id", job.RequesterID, "resource", job.Resource)
			}
		}
	}

	report.Dropped = c.q.Drain()
	for _, job := range report.Dropped {
		slog.Warn("shutdown: dropping queued job",
			"job_id", job.ID, "user_id", job.RequesterID, "resource", job.Resource)
		c.notifyDropped(job)
	}
	metrics.ShutdownDroppedTotal.Add(float64(len(report.Dropped)))

	slog.Info("shutdown: complete",
		"dropped", len(report.Dropped),
		"abandoned", len(report.Abandoned),
		"timed_out", report.TimedOut,
		"elapsed", time.Since(start))
	return report
}

func (c *Coordinator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = time.Nanosecond
	}
	wctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	err := c.pool.Wait(wctx)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if err != nil {
		slog.Warn("shutdown: waiting for workers", "error", err)
	}
	return nil
}

func (c *Coordinator) notifyDropped(job queue.Job) {
	if c.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	err := c.notifier.Notify(ctx, job, worker.Notice{Kind: worker.NoticeDropped, Text: droppedText})
	if err != nil {
		slog.Warn("shutdown: notifying dropped requester", "job_id", job.ID, "error", err)
	}
}
