// Package delivery sends finished downloads and status notices to requesters
// over NATS JetStream. A front-end (chat bot, web client) subscribes to the
// outbound subjects and forwards them to the right conversation.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	inats "github.com/tunequeue/tunequeue/internal/nats"
	"github.com/tunequeue/tunequeue/internal/queue"
	"github.com/tunequeue/tunequeue/internal/worker"
)

// ErrPayloadTooLarge means the file exceeds what the transport accepts.
var ErrPayloadTooLarge = errors.New("payload too large")

// headerOverhead is reserved for delivery headers within the server's max payload.
const headerOverhead = 4 << 10

// Publisher is the subset of the NATS publisher used here.
type Publisher interface {
	PublishDelivery(ctx context.Context, header nats.Header, payload []byte) error
	PublishOutboundMessage(ctx context.Context, msg inats.OutboundMessage) error
}

// NATS publishes audio files and notices. It implements worker.Delivery and
// worker.Notifier.
type NATS struct {
	pub      Publisher
	maxBytes int64
}

// NewNATS creates the adapter. The effective size limit is the smaller of
// maxBytes and what the server accepts; a non-positive value means no limit
// from that side.
func NewNATS(pub Publisher, maxBytes, serverMax int64) *NATS {
	if serverMax > headerOverhead {
		serverMax -= headerOverhead
		if maxBytes <= 0 || serverMax < maxBytes {
			maxBytes = serverMax
		}
	}
	return &NATS{pub: pub, maxBytes: maxBytes}
}

// MaxBytes is the largest file Send accepts, 0 when unlimited.
func (n *NATS) MaxBytes() int64 {
	return n.maxBytes
}

// Send publishes the artifact's file with its metadata in headers.
func (n *NATS) Send(ctx context.Context, job queue.Job, art worker.Artifact) error {
	info, err := os.Stat(art.Path)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}
	if n.maxBytes > 0 && info.Size() > n.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, info.Size(), n.maxBytes)
	}

	payload, err := os.ReadFile(art.Path)
	if err != nil {
		return fmt.Errorf("reading artifact: %w", err)
	}

	meta := BuildMetadata(art.Title, art.Path)
	header := nats.Header{}
	header.Set(inats.HeaderJobID, job.ID.String())
	header.Set(inats.HeaderReplyTo, job.ReplyTo)
	header.Set(inats.HeaderFilename, headerValue(meta.Filename))
	header.Set(inats.HeaderTitle, headerValue(meta.Title))
	header.Set(inats.HeaderPerformer, headerValue(meta.Performer))
	header.Set(inats.HeaderCaption, headerValue(meta.Caption))

	if err := n.pub.PublishDelivery(ctx, header, payload); err != nil {
		return err
	}

	slog.Debug("delivery: sent audio", "job_id", job.ID, "bytes", len(payload), "filename", meta.Filename)
	return nil
}

// Notify publishes a text notice for the job's requester.
func (n *NATS) Notify(ctx context.Context, job queue.Job, notice worker.Notice) error {
	msg := inats.OutboundMessage{
		ID:      uuid.New().String(),
		ReplyTo: job.ReplyTo,
		UserID:  job.RequesterID,
		Kind:    string(notice.Kind),
		Body:    notice.Text,
	}
	if job.ID != uuid.Nil {
		msg.InReplyTo = job.ID.String()
	}
	return n.pub.PublishOutboundMessage(ctx, msg)
}

// headerValue drops line breaks, which NATS headers cannot carry.
func headerValue(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
