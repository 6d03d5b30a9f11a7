package history

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tunequeue/tunequeue/internal/metrics"
	inats "github.com/tunequeue/tunequeue/internal/nats"
)

const consumerName = "history-persister"

// Inserter stores history entries.
type Inserter interface {
	Insert(ctx context.Context, e *Entry) error
}

// Consumer listens on the outcome event NATS subject and persists entries to the database.
type Consumer struct {
	repo        Inserter
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new history Consumer.
func NewConsumer(repo Inserter, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		repo:        repo,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectOutcomeEvent)
	if err != nil {
		return err
	}

	slog.Info("history consumer started", "consumer", consumerName)
	return inats.FetchLoop(ctx, "history consumer", consumer, c.handleEvent)
}

func (c *Consumer) handleEvent(ctx context.Context, msg jetstream.Msg) {
	var event inats.OutcomeEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("history consumer: unmarshaling event", "error", err)
		metrics.HistoryPersistedTotal.WithLabelValues("malformed").Inc()
		_ = msg.Term()
		return
	}

	if err := c.repo.Insert(ctx, entryFromEvent(event)); err != nil {
		slog.Error("history consumer: persisting entry", "error", err, "job_id", event.JobID)
		metrics.HistoryPersistedTotal.WithLabelValues("error").Inc()
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()
	metrics.HistoryPersistedTotal.WithLabelValues("ok").Inc()

	slog.Debug("history consumer: persisted event",
		"job_id", event.JobID,
		"user_id", event.UserID,
		"outcome", event.Outcome,
	)
}

func entryFromEvent(event inats.OutcomeEvent) *Entry {
	return &Entry{
		ID:          uuid.New(),
		JobID:       event.JobID,
		RequesterID: event.UserID,
		Resource:    event.Resource,
		Outcome:     event.Outcome,
		WorkerID:    event.WorkerID,
		Title:       event.Title,
		Error:       event.Error,
		DurationMS:  event.DurationMS,
		SubmittedAt: event.SubmittedAt,
		FinishedAt:  event.FinishedAt,
	}
}
