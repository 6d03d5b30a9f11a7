package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrFull is returned by Enqueue when a bounded queue is at capacity.
	ErrFull = errors.New("queue is full")

	// ErrClosed is returned by Enqueue and Dequeue once the queue has been closed.
	ErrClosed = errors.New("queue is closed")
)

// Job is one accepted request to fetch a resource and deliver it to a user.
type Job struct {
	ID          uuid.UUID `json:"id"`
	RequesterID string    `json:"requester_id"`
	Resource    string    `json:"resource"`
	ReplyTo     string    `json:"reply_to,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// NewJob creates a Job with a fresh ID.
func NewJob(requesterID, resource, replyTo string) Job {
	return Job{
		ID:          uuid.New(),
		RequesterID: requesterID,
		Resource:    resource,
		ReplyTo:     replyTo,
		SubmittedAt: time.Now().UTC(),
	}
}

// Queue is a FIFO of pending jobs shared by many producers and consumers.
// Enqueue never blocks; Dequeue blocks until a job arrives, the queue is
// closed, or the caller's context is done.
type Queue struct {
	capacity int

	mu     sync.Mutex
	items  []Job
	closed bool
	// ready is closed and replaced whenever a job is added or the queue is
	// closed, waking every blocked consumer.
	ready chan struct{}
}

// New creates a queue holding at most capacity jobs. Zero means unbounded.
func New(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		capacity: capacity,
		ready:    make(chan struct{}),
	}
}

// Enqueue appends a job and returns the queue length after the insert.
func (q *Queue) Enqueue(job Job) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrClosed
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return 0, ErrFull
	}

	q.items = append(q.items, job)
	q.broadcast()
	return len(q.items), nil
}

// Dequeue removes and returns the oldest job. A done ctx wins over a queued
// job, so a stopped consumer never takes new work.
func (q *Queue) Dequeue(ctx context.Context) (Job, error) {
	return q.DequeueFunc(ctx, nil)
}

// DequeueFunc is Dequeue with a hook that runs while the queue lock is still
// held, after the job has been removed. Observers that read Len under the
// lock never see a job that is neither queued nor handed to take. take must
// not call back into the queue.
func (q *Queue) DequeueFunc(ctx context.Context, take func(Job)) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Job{}, ErrClosed
		}
		if len(q.items) > 0 {
			job := q.items[0]
			q.items[0] = Job{}
			q.items = q.items[1:]
			if take != nil {
				take(job)
			}
			q.mu.Unlock()
			return job, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-ready:
		}
	}
}

// Len returns the current number of queued jobs. The value may be stale as
// soon as it is returned.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the configured capacity (0 for unbounded).
func (q *Queue) Cap() int {
	return q.capacity
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops the queue accepting jobs and releases blocked consumers.
// Jobs still queued stay in place until Drain is called.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.broadcast()
}

// Drain removes and returns every job still queued.
func (q *Queue) Drain() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := q.items
	q.items = nil
	return jobs
}

// broadcast must be called with mu held.
func (q *Queue) broadcast() {
	close(q.ready)
	q.ready = make(chan struct{})
}
