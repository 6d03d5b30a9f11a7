package shutdown

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunequeue/tunequeue/internal/queue"
	"github.com/tunequeue/tunequeue/internal/quota"
	"github.com/tunequeue/tunequeue/internal/worker"
)

type fetchFunc func(ctx context.Context, resource string) (worker.Artifact, error)

func (f fetchFunc) Fetch(ctx context.Context, resource string) (worker.Artifact, error) {
	return f(ctx, resource)
}

type sendFunc func(ctx context.Context, job queue.Job, art worker.Artifact) error

func (f sendFunc) Send(ctx context.Context, job queue.Job, art worker.Artifact) error {
	return f(ctx, job, art)
}

type recorder struct {
	mu       sync.Mutex
	notices  map[string][]worker.NoticeKind
	outcomes []worker.Outcome
}

func newRecorder() *recorder {
	return &recorder{notices: make(map[string][]worker.NoticeKind)}
}

func (r *recorder) Notify(_ context.Context, job queue.Job, n worker.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices[job.Resource] = append(r.notices[job.Resource], n.Kind)
	return nil
}

func (r *recorder) Record(_ context.Context, o worker.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recorder) outcomeFor(resource string) (worker.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.outcomes {
		if o.Job.Resource == resource {
			return o, true
		}
	}
	return worker.Outcome{}, false
}

type pipeline struct {
	q    *queue.Queue
	svc  *quota.Service
	pool *worker.Pool
	rec  *recorder
}

func newPipeline(t *testing.T, f worker.Fetcher, d worker.Delivery) *pipeline {
	t.Helper()
	q := queue.New(10)
	svc := quota.NewService(quota.NewMemoryStore(), time.UTC)
	rec := newRecorder()
	pool := worker.NewPool(worker.Config{Count: 1}, q, worker.Deps{
		Gate:     quota.NewGate(svc, 5),
		Fetcher:  f,
		Delivery: d,
		Notifier: rec,
		Recorder: rec,
	})
	return &pipeline{q: q, svc: svc, pool: pool, rec: rec}
}

// waitFetching blocks until the fetcher has signalled it holds a job.
func waitFetching(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("worker never started fetching")
	}
}

func TestShutdown_CompletesInFlightAndDropsQueued(t *testing.T) {
	inFetch := make(chan struct{}, 1)
	fetcher := fetchFunc(func(ctx context.Context, resource string) (worker.Artifact, error) {
		inFetch <- struct{}{}
		time.Sleep(100 * time.Millisecond)
		return worker.Artifact{Title: resource}, nil
	})
	p := newPipeline(t, fetcher, sendFunc(func(context.Context, queue.Job, worker.Artifact) error { return nil }))
	p.pool.Start(context.Background())

	_, err := p.q.Enqueue(queue.NewJob("alice", "running", ""))
	require.NoError(t, err)
	waitFetching(t, inFetch)
	_, err = p.q.Enqueue(queue.NewJob("bob", "queued", ""))
	require.NoError(t, err)

	c := NewCoordinator(Config{Timeout: 5 * time.Second, AbortGrace: time.Second}, p.q, p.pool, p.rec)
	report := c.Shutdown(context.Background())

	assert.False(t, report.TimedOut)
	assert.Empty(t, report.Abandoned)
	require.Len(t, report.Dropped, 1)
	assert.Equal(t, "queued", report.Dropped[0].Resource)

	out, ok := p.rec.outcomeFor("running")
	require.True(t, ok)
	assert.Equal(t, worker.OutcomeDelivered, out.Kind)

	count, err := p.svc.GetCount(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, []worker.NoticeKind{worker.NoticeDropped}, p.rec.notices["queued"])

	_, err = p.q.Enqueue(queue.NewJob("carol", "late", ""))
	assert.ErrorIs(t, err, queue.ErrClosed)
}

func TestShutdown_AbortsAfterTimeout(t *testing.T) {
	inFetch := make(chan struct{}, 1)
	fetcher := fetchFunc(func(ctx context.Context, resource string) (worker.Artifact, error) {
		inFetch <- struct{}{}
		<-ctx.Done()
		return worker.Artifact{}, ctx.Err()
	})
	delivered := false
	p := newPipeline(t, fetcher, sendFunc(func(context.Context, queue.Job, worker.Artifact) error {
		delivered = true
		return nil
	}))
	p.pool.Start(context.Background())

	_, _ = p.q.Enqueue(queue.NewJob("dan", "slow", ""))
	waitFetching(t, inFetch)

	c := NewCoordinator(Config{Timeout: 50 * time.Millisecond, AbortGrace: 2 * time.Second}, p.q, p.pool, p.rec)
	report := c.Shutdown(context.Background())

	assert.True(t, report.TimedOut)
	assert.Empty(t, report.Abandoned)
	assert.Empty(t, report.Dropped)
	assert.False(t, delivered)

	out, ok := p.rec.outcomeFor("slow")
	require.True(t, ok)
	assert.Equal(t, worker.OutcomeAborted, out.Kind)

	count, err := p.svc.GetCount(context.Background(), "dan")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestShutdown_ReportsAbandonedJobs(t *testing.T) {
	inFetch := make(chan struct{}, 1)
	release := make(chan struct{})
	fetcher := fetchFunc(func(ctx context.Context, resource string) (worker.Artifact, error) {
		inFetch <- struct{}{}
		<-release // ignores cancellation
		return worker.Artifact{}, nil
	})
	p := newPipeline(t, fetcher, sendFunc(func(context.Context, queue.Job, worker.Artifact) error { return nil }))
	p.pool.Start(context.Background())
	t.Cleanup(func() { close(release) })

	job := queue.NewJob("erin", "stuck", "")
	_, _ = p.q.Enqueue(job)
	waitFetching(t, inFetch)

	c := NewCoordinator(Config{Timeout: 20 * time.Millisecond, AbortGrace: 20 * time.Millisecond}, p.q, p.pool, nil)
	report := c.Shutdown(context.Background())

	assert.True(t, report.TimedOut)
	assert.Equal(t, []queue.Job{job}, report.Abandoned)
}

func TestShutdown_IdleWorkersExitImmediately(t *testing.T) {
	p := newPipeline(t,
		fetchFunc(func(context.Context, string) (worker.Artifact, error) { return worker.Artifact{}, nil }),
		sendFunc(func(context.Context, queue.Job, worker.Artifact) error { return nil }))
	p.pool.Start(context.Background())

	c := NewCoordinator(Config{Timeout: time.Second, AbortGrace: time.Second}, p.q, p.pool, p.rec)

	start := time.Now()
	report := c.Shutdown(context.Background())

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, report.TimedOut)
	assert.Empty(t, report.Dropped)
	assert.Equal(t, []worker.State{worker.StateStopped}, p.pool.States())
}

type stubPool struct {
	waitErr error
	stopped bool
	aborted bool
}

func (s *stubPool) Stop()                      { s.stopped = true }
func (s *stubPool) Abort()                     { s.aborted = true }
func (s *stubPool) Wait(context.Context) error { return s.waitErr }
func (s *stubPool) InFlight() []queue.Job      { return nil }

func TestShutdown_UnstartedPoolIsNotAborted(t *testing.T) {
	q := queue.New(2)
	_, _ = q.Enqueue(queue.NewJob("fay", "a", ""))

	pool := &stubPool{waitErr: assert.AnError}
	report := NewCoordinator(Config{Timeout: time.Second}, q, pool, nil).Shutdown(context.Background())

	assert.True(t, pool.stopped)
	assert.False(t, pool.aborted)
	assert.False(t, report.TimedOut)
	assert.Len(t, report.Dropped, 1)
}
