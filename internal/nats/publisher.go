package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishInboundRequest publishes a download request for the submission consumer.
func (p *Publisher) PublishInboundRequest(ctx context.Context, req InboundRequest) error {
	return p.publish(ctx, SubjectInboundRequest, req)
}

// PublishOutboundMessage publishes a text message for the requester.
func (p *Publisher) PublishOutboundMessage(ctx context.Context, msg OutboundMessage) error {
	return p.publish(ctx, SubjectOutboundMessage, msg)
}

// PublishOutcome publishes a finished job's outcome.
func (p *Publisher) PublishOutcome(ctx context.Context, event OutcomeEvent) error {
	return p.publish(ctx, SubjectOutcomeEvent, event)
}

// PublishDelivery publishes a raw payload with delivery headers.
func (p *Publisher) PublishDelivery(ctx context.Context, header nats.Header, payload []byte) error {
	msg := &nats.Msg{Subject: SubjectDelivery, Header: header, Data: payload}
	if _, err := p.js.PublishMsg(ctx, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", SubjectDelivery, err)
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
