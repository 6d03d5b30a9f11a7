package worker

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunequeue/tunequeue/internal/metrics"
	"github.com/tunequeue/tunequeue/internal/queue"
	"github.com/tunequeue/tunequeue/internal/quota"
)

// Config sizes the pool.
type Config struct {
	Count    int
	Cooldown time.Duration
}

// Deps are the collaborators every worker uses. Notifier and Recorder are optional.
type Deps struct {
	Gate     *quota.Gate
	Fetcher  Fetcher
	Delivery Delivery
	Notifier Notifier
	Recorder Recorder
}

type inFlightJob struct {
	job      queue.Job
	workerID int
}

// Pool runs a fixed number of workers that take jobs from a queue, re-check
// the requester's quota, fetch, deliver and charge the quota.
//
// Stop lets every worker finish its current job and exit. Abort additionally
// makes in-flight jobs fail at their next checkpoint; the fetcher and
// delivery see the abort as context cancellation.
type Pool struct {
	cfg  Config
	q    *queue.Queue
	deps Deps

	stopCtx   context.Context
	stop      context.CancelFunc
	abortCtx  context.Context
	abort     context.CancelFunc
	startOnce sync.Once
	wg        sync.WaitGroup
	done      chan struct{}

	mu       sync.Mutex
	states   []State
	inFlight map[uuid.UUID]inFlightJob
}

// NewPool creates a pool. Workers are not started until Start.
func NewPool(cfg Config, q *queue.Queue, deps Deps) *Pool {
	if cfg.Count < 1 {
		cfg.Count = 1
	}
	abortCtx, abort := context.WithCancel(context.Background())
	states := make([]State, cfg.Count)
	return &Pool{
		cfg:      cfg,
		q:        q,
		deps:     deps,
		abortCtx: abortCtx,
		abort:    abort,
		done:     make(chan struct{}),
		states:   states,
		inFlight: make(map[uuid.UUID]inFlightJob),
	}
}

// Start launches the workers. Cancelling ctx has the same effect as Stop.
// Calling Start more than once has no effect.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.mu.Lock()
		p.stopCtx, p.stop = context.WithCancel(ctx)
		p.mu.Unlock()

		for id := 0; id < p.cfg.Count; id++ {
			p.wg.Add(1)
			go p.run(id)
		}
		go func() {
			p.wg.Wait()
			close(p.done)
		}()
		slog.Info("worker pool started", "workers", p.cfg.Count)
	})
}

// Stop asks every worker to exit after its current job.
func (p *Pool) Stop() {
	p.mu.Lock()
	stop := p.stop
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Abort stops the pool and cancels in-flight jobs.
func (p *Pool) Abort() {
	p.Stop()
	p.abort()
}

// Wait blocks until every worker has exited or ctx is done.
func (p *Pool) Wait(ctx context.Context) error {
	p.mu.Lock()
	started := p.stop != nil
	p.mu.Unlock()
	if !started {
		return errors.New("worker pool not started")
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InFlight returns the jobs workers have taken but not finished, ordered by
// worker id.
func (p *Pool) InFlight() []queue.Job {
	p.mu.Lock()
	entries := make([]inFlightJob, 0, len(p.inFlight))
	for _, e := range p.inFlight {
		entries = append(entries, e)
	}
	p.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].workerID < entries[j].workerID })
	jobs := make([]queue.Job, len(entries))
	for i, e := range entries {
		jobs[i] = e.job
	}
	return jobs
}

// States returns a snapshot of every worker's state, indexed by worker id.
func (p *Pool) States() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]State, len(p.states))
	copy(out, p.states)
	return out
}

// Healthy reports whether at least one worker is still running.
func (p *Pool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop == nil {
		return false
	}
	for _, s := range p.states {
		if s != StateStopped {
			return true
		}
	}
	return false
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	defer p.setState(id, StateStopped)

	log := slog.With("worker_id", id)
	log.Debug("worker: started")

	for {
		p.setState(id, StateDequeuing)
		// The job is registered as in flight before it leaves the queue lock,
		// so shutdown always sees it either queued or taken.
		job, err := p.q.DequeueFunc(p.stopCtx, func(job queue.Job) { p.track(id, job) })
		if err != nil {
			if errors.Is(err, queue.ErrClosed) {
				log.Debug("worker: queue closed, exiting")
			} else {
				log.Debug("worker: stop requested, exiting")
			}
			return
		}

		if panicked := p.process(id, job); panicked {
			p.cooldown(id)
		}
		p.setState(id, StateIdle)
	}
}

func (p *Pool) cooldown(id int) {
	if p.cfg.Cooldown <= 0 {
		return
	}
	p.setState(id, StateCooldown)
	timer := time.NewTimer(p.cfg.Cooldown)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.stopCtx.Done():
	}
}

func (p *Pool) setState(id int, s State) {
	p.mu.Lock()
	p.states[id] = s
	p.mu.Unlock()
}

// track runs under the queue lock and must not call back into the queue.
func (p *Pool) track(id int, job queue.Job) {
	p.mu.Lock()
	p.inFlight[job.ID] = inFlightJob{job: job, workerID: id}
	p.mu.Unlock()
	metrics.WorkersBusy.Inc()
}

func (p *Pool) untrack(job queue.Job) {
	p.mu.Lock()
	delete(p.inFlight, job.ID)
	p.mu.Unlock()
	metrics.WorkersBusy.Dec()
}
