package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/tunequeue/tunequeue/internal/nats"
	"github.com/tunequeue/tunequeue/internal/queue"
	"github.com/tunequeue/tunequeue/internal/quota"
	"github.com/tunequeue/tunequeue/internal/worker"
)

const consumerName = "submission-intake"

// redeliverDelay keeps a request in the stream while this instance shuts down.
const redeliverDelay = 10 * time.Second

const textQueueFull = "The download queue is full right now. Please try again in a minute."

// Consumer reads download requests from the inbound NATS subject and submits them.
type Consumer struct {
	svc         *Service
	notifier    worker.Notifier
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new inbound request Consumer. notifier may be nil.
func NewConsumer(svc *Service, notifier worker.Notifier, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		svc:         svc,
		notifier:    notifier,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamRequests, consumerName, inats.SubjectInboundRequest)
	if err != nil {
		return err
	}

	slog.Info("submission consumer started", "consumer", consumerName)
	return inats.FetchLoop(ctx, "submission consumer", consumer, c.handleMessage)
}

func (c *Consumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	var req inats.InboundRequest
	if err := json.Unmarshal(msg.Data(), &req); err != nil {
		slog.Error("submission consumer: unmarshaling request", "error", err)
		_ = msg.Term()
		return
	}

	if c.handle(ctx, req) {
		_ = msg.Ack()
		return
	}
	_ = msg.NakWithDelay(redeliverDelay)
}

// handle submits req and tells the requester what happened. It returns false
// when the request should stay in the stream for another instance.
func (c *Consumer) handle(ctx context.Context, req inats.InboundRequest) bool {
	receipt, err := c.svc.Submit(ctx, SourceNATS, Request{
		UserID:   req.UserID,
		Resource: req.Resource,
		ReplyTo:  req.ReplyTo,
	})
	if err == nil {
		c.notify(ctx, receipt.Job, worker.Notice{
			Kind: worker.NoticeAccepted,
			Text: fmt.Sprintf("Added to the download queue, position %d.", receipt.Position),
		})
		return true
	}

	job := queue.Job{RequesterID: req.UserID, Resource: req.Resource, ReplyTo: req.ReplyTo}
	var limitErr *quota.LimitExceededError
	switch {
	case errors.Is(err, ErrThrottled), errors.Is(err, ErrInvalid):
		slog.Debug("submission consumer: dropping request", "id", req.ID, "user_id", req.UserID, "error", err)
	case errors.As(err, &limitErr):
		c.notify(ctx, job, worker.Notice{Kind: worker.NoticeDenied, Text: worker.DeniedText(err)})
	case errors.Is(err, ErrQueueFull):
		c.notify(ctx, job, worker.Notice{Kind: worker.NoticeFailed, Text: textQueueFull})
	case errors.Is(err, ErrShuttingDown):
		slog.Info("submission consumer: shutting down, leaving request in stream", "id", req.ID)
		return false
	default:
		slog.Error("submission consumer: submitting request", "id", req.ID, "error", err)
	}
	return true
}

func (c *Consumer) notify(ctx context.Context, job queue.Job, n worker.Notice) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, job, n); err != nil {
		slog.Warn("submission consumer: notifying requester", "kind", n.Kind, "error", err)
	}
}
