package worker

import (
	"context"
	"time"

	"github.com/tunequeue/tunequeue/internal/queue"
)

// State is the phase a worker is in.
type State int

const (
	StateIdle State = iota
	StateDequeuing
	StateAdmitting
	StateFetching
	StateDelivering
	StateAccounting
	StateCooldown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDequeuing:
		return "dequeuing"
	case StateAdmitting:
		return "admitting"
	case StateFetching:
		return "fetching"
	case StateDelivering:
		return "delivering"
	case StateAccounting:
		return "accounting"
	case StateCooldown:
		return "cooldown"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OutcomeKind is the terminal result of one job.
type OutcomeKind string

const (
	OutcomeDelivered      OutcomeKind = "delivered"
	OutcomeDenied         OutcomeKind = "denied"
	OutcomeFetchFailed    OutcomeKind = "fetch_failed"
	OutcomeDeliveryFailed OutcomeKind = "delivery_failed"
	OutcomeAborted        OutcomeKind = "aborted"
	OutcomePanicked       OutcomeKind = "panicked"
)

// Outcome describes how a job ended.
type Outcome struct {
	Job        queue.Job   `json:"job"`
	WorkerID   int         `json:"worker_id"`
	Kind       OutcomeKind `json:"outcome"`
	Title      string      `json:"title,omitempty"`
	Error      string      `json:"error,omitempty"`
	Charged    bool        `json:"charged"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// Duration returns how long the worker held the job.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Artifact is a fetched file ready for delivery. Dir, when set, is a scratch
// directory owned by the artifact and removed together with it.
type Artifact struct {
	Path  string
	Title string
	Dir   string
}

// NoticeKind classifies messages sent back to a requester.
type NoticeKind string

const (
	NoticeAccepted NoticeKind = "accepted"
	NoticeProgress NoticeKind = "progress"
	NoticeDenied   NoticeKind = "denied"
	NoticeFailed   NoticeKind = "failed"
	NoticeDropped  NoticeKind = "dropped"
)

// Notice is a short status message for the requester.
type Notice struct {
	Kind NoticeKind `json:"kind"`
	Text string     `json:"text"`
}

// Fetcher downloads a resource into a local artifact.
type Fetcher interface {
	Fetch(ctx context.Context, resource string) (Artifact, error)
}

// Delivery hands a fetched artifact to the requester.
type Delivery interface {
	Send(ctx context.Context, job queue.Job, art Artifact) error
}

// Notifier sends status messages to the requester. Failures are logged and
// otherwise ignored.
type Notifier interface {
	Notify(ctx context.Context, job queue.Job, n Notice) error
}

// Recorder receives every job outcome.
type Recorder interface {
	Record(ctx context.Context, o Outcome)
}
