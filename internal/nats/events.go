package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamRequests = "TUNEQUEUE_REQUESTS"
	StreamMessages = "TUNEQUEUE_MESSAGES"
	StreamEvents   = "TUNEQUEUE_EVENTS"
)

// Subject constants.
const (
	SubjectInboundRequest  = "tunequeue.requests.inbound"
	SubjectOutboundMessage = "tunequeue.messages.outbound"
	SubjectDelivery        = "tunequeue.messages.delivery"
	SubjectOutcomeEvent    = "tunequeue.events.outcome"
)

// Headers carried by delivery messages. The payload is the raw audio file.
const (
	HeaderJobID     = "Tunequeue-Job-Id"
	HeaderReplyTo   = "Tunequeue-Reply-To"
	HeaderFilename  = "Tunequeue-Filename"
	HeaderTitle     = "Tunequeue-Title"
	HeaderPerformer = "Tunequeue-Performer"
	HeaderCaption   = "Tunequeue-Caption"
)

// InboundRequest is published by a front-end when a user asks for a track.
type InboundRequest struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Resource   string    `json:"resource"`
	ReplyTo    string    `json:"reply_to"`
	ReceivedAt time.Time `json:"received_at"`
}

// OutboundMessage is a short text for the requester's conversation.
type OutboundMessage struct {
	ID        string `json:"id"`
	ReplyTo   string `json:"reply_to"`
	UserID    string `json:"user_id"`
	Kind      string `json:"kind"`
	Body      string `json:"body"`
	InReplyTo string `json:"in_reply_to,omitempty"`
}

// OutcomeEvent is published once per finished job.
type OutcomeEvent struct {
	JobID       uuid.UUID `json:"job_id"`
	UserID      string    `json:"user_id"`
	Resource    string    `json:"resource"`
	Outcome     string    `json:"outcome"`
	WorkerID    int       `json:"worker_id"`
	Title       string    `json:"title,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	SubmittedAt time.Time `json:"submitted_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
