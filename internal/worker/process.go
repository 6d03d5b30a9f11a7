package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/tunequeue/tunequeue/internal/metrics"
	"github.com/tunequeue/tunequeue/internal/queue"
	"github.com/tunequeue/tunequeue/internal/quota"
)

// sideTimeout bounds calls that must still run after an abort: notices,
// quota accounting and outcome recording.
const sideTimeout = 10 * time.Second

const (
	textProgress      = "Downloading your track..."
	textFetchFailed   = "Download failed. Please try another track."
	textDeliveryFail  = "Could not send the audio. The file may be too large."
	textAborted       = "The service is shutting down and your download was cancelled. Please send it again later."
	textInternalError = "Something went wrong while processing your request."
)

var errAborted = errors.New("job aborted")

// process runs one job to completion and reports whether it panicked.
func (p *Pool) process(id int, job queue.Job) (panicked bool) {
	log := slog.With("worker_id", id, "job_id", job.ID, "user_id", job.RequesterID)
	started := time.Now()

	defer p.untrack(job)

	var art Artifact
	defer func() { cleanup(log, art) }()

	defer func() {
		if r := recover(); r != nil {
			log.Error("worker: panic while processing job", "panic", r, "stack", string(debug.Stack()))
			p.notify(log, job, Notice{Kind: NoticeFailed, Text: textInternalError})
			p.finish(log, Outcome{
				Job: job, WorkerID: id, Kind: OutcomePanicked,
				Error: fmt.Sprint(r), StartedAt: started,
			})
			panicked = true
		}
	}()

	out := p.handle(log, id, job, &art)
	out.Job, out.WorkerID, out.StartedAt = job, id, started
	p.finish(log, out)
	return false
}

func (p *Pool) handle(log *slog.Logger, id int, job queue.Job, art *Artifact) Outcome {
	ctx := p.abortCtx

	p.setState(id, StateAdmitting)
	if err := p.deps.Gate.Admit(ctx, job.RequesterID); err != nil {
		if ctx.Err() != nil {
			return p.aborted(log, job, "during admission")
		}
		var limitErr *quota.LimitExceededError
		if errors.As(err, &limitErr) && limitErr.Current >= 0 {
			log.Info("worker: daily limit reached", "current", limitErr.Current, "limit", limitErr.Limit)
		}
		p.notify(log, job, Notice{Kind: NoticeDenied, Text: DeniedText(err)})
		return Outcome{Kind: OutcomeDenied, Error: err.Error()}
	}

	if ctx.Err() != nil {
		return p.aborted(log, job, "before fetch")
	}

	p.notify(log, job, Notice{Kind: NoticeProgress, Text: textProgress})

	p.setState(id, StateFetching)
	fetched, err := p.deps.Fetcher.Fetch(ctx, job.Resource)
	*art = fetched
	if err != nil {
		if ctx.Err() != nil {
			return p.aborted(log, job, "during fetch")
		}
		log.Warn("worker: fetch failed", "resource", job.Resource, "error", err)
		p.notify(log, job, Notice{Kind: NoticeFailed, Text: textFetchFailed})
		return Outcome{Kind: OutcomeFetchFailed, Error: err.Error()}
	}

	if ctx.Err() != nil {
		return p.aborted(log, job, "before delivery")
	}

	p.setState(id, StateDelivering)
	if err := p.deps.Delivery.Send(ctx, job, fetched); err != nil {
		if ctx.Err() != nil {
			return p.aborted(log, job, "during delivery")
		}
		log.Warn("worker: delivery failed", "path", fetched.Path, "error", err)
		p.notify(log, job, Notice{Kind: NoticeFailed, Text: textDeliveryFail})
		return Outcome{Kind: OutcomeDeliveryFailed, Title: fetched.Title, Error: err.Error()}
	}

	p.setState(id, StateAccounting)
	actx, cancel := context.WithTimeout(context.Background(), sideTimeout)
	charged := p.deps.Gate.Service().Increment(actx, job.RequesterID)
	cancel()

	log.Info("worker: delivered", "title", fetched.Title, "charged", charged)
	return Outcome{Kind: OutcomeDelivered, Title: fetched.Title, Charged: charged}
}

func (p *Pool) aborted(log *slog.Logger, job queue.Job, stage string) Outcome {
	log.Warn("worker: job aborted", "stage", stage)
	p.notify(log, job, Notice{Kind: NoticeFailed, Text: textAborted})
	return Outcome{Kind: OutcomeAborted, Error: fmt.Sprintf("%v %s", errAborted, stage)}
}

func (p *Pool) notify(log *slog.Logger, job queue.Job, n Notice) {
	if p.deps.Notifier == nil {
		return
	}
	defer contain(log, "notifier")
	ctx, cancel := context.WithTimeout(context.Background(), sideTimeout)
	defer cancel()
	if err := p.deps.Notifier.Notify(ctx, job, n); err != nil {
		log.Warn("worker: notifying requester", "kind", n.Kind, "error", err)
	}
}

func (p *Pool) finish(log *slog.Logger, out Outcome) {
	out.FinishedAt = time.Now()
	metrics.JobsCompletedTotal.WithLabelValues(string(out.Kind)).Inc()
	metrics.JobDuration.WithLabelValues(string(out.Kind)).Observe(out.Duration().Seconds())
	log.Debug("worker: job finished", "outcome", out.Kind, "duration", out.Duration())

	if p.deps.Recorder == nil {
		return
	}
	defer contain(log, "recorder")
	ctx, cancel := context.WithTimeout(context.Background(), sideTimeout)
	defer cancel()
	p.deps.Recorder.Record(ctx, out)
}

// contain swallows a panic raised by a side call. It also runs from the
// job's own recover path, so it must never re-panic.
func contain(log *slog.Logger, call string) {
	if r := recover(); r != nil {
		log.Error("worker: panic in "+call, "panic", r, "stack", string(debug.Stack()))
	}
}

// DeniedText renders an admission error for the requester.
func DeniedText(err error) string {
	var limitErr *quota.LimitExceededError
	if errors.As(err, &limitErr) && limitErr.Current >= 0 {
		return fmt.Sprintf("Daily download limit reached (%d/%d). Try again tomorrow.",
			limitErr.Current, limitErr.Limit)
	}
	return "Your download limit could not be checked right now. Please try again later."
}

func cleanup(log *slog.Logger, art Artifact) {
	target := art.Dir
	if target == "" {
		target = art.Path
	}
	if target == "" {
		return
	}
	if err := os.RemoveAll(target); err != nil {
		log.Warn("worker: removing artifact", "path", target, "error", err)
	}
}
