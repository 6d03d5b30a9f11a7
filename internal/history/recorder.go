// Package history publishes every job outcome as an event and, when enabled,
// persists those events to Postgres for per-user listing.
package history

import (
	"context"
	"log/slog"

	inats "github.com/tunequeue/tunequeue/internal/nats"
	"github.com/tunequeue/tunequeue/internal/worker"
)

// OutcomePublisher is the subset of the NATS publisher used by Recorder.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, event inats.OutcomeEvent) error
}

// Recorder implements worker.Recorder by publishing outcome events.
type Recorder struct {
	pub OutcomePublisher
}

func NewRecorder(pub OutcomePublisher) *Recorder {
	return &Recorder{pub: pub}
}

// Record publishes out. Failures are logged and dropped.
func (r *Recorder) Record(ctx context.Context, out worker.Outcome) {
	if err := r.pub.PublishOutcome(ctx, EventFromOutcome(out)); err != nil {
		slog.Warn("history: publishing outcome", "job_id", out.Job.ID, "outcome", out.Kind, "error", err)
	}
}

// EventFromOutcome flattens a worker outcome into its wire form.
func EventFromOutcome(out worker.Outcome) inats.OutcomeEvent {
	return inats.OutcomeEvent{
		JobID:       out.Job.ID,
		UserID:      out.Job.RequesterID,
		Resource:    out.Job.Resource,
		Outcome:     string(out.Kind),
		WorkerID:    out.WorkerID,
		Title:       out.Title,
		Error:       out.Error,
		DurationMS:  out.Duration().Milliseconds(),
		SubmittedAt: out.Job.SubmittedAt,
		FinishedAt:  out.FinishedAt,
	}
}
