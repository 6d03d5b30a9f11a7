package queue

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_EnqueueReturnsPosition(t *testing.T) {
	q := New(10)

	pos, err := q.Enqueue(NewJob("u1", "a", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = q.Enqueue(NewJob("u1", "b", ""))
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
	assert.Equal(t, 2, q.Len())
}

func TestQueue_FullRejectsWithoutBlocking(t *testing.T) {
	q := New(3)

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(NewJob("u", fmt.Sprint(i), ""))
		require.NoError(t, err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(NewJob("u", "overflow", ""))
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrFull)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	assert.Equal(t, 3, q.Len())
}

func TestQueue_ConcurrentEnqueueNeverExceedsCapacity(t *testing.T) {
	const capacity = 5
	q := New(capacity)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, full := 0, 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := q.Enqueue(NewJob("u", fmt.Sprint(i), ""))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				accepted++
			} else {
				assert.ErrorIs(t, err, ErrFull)
				full++
			}
			assert.LessOrEqual(t, q.Len(), capacity)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, accepted)
	assert.Equal(t, 45, full)
	assert.Equal(t, capacity, q.Len())
}

func TestQueue_ZeroCapacityIsUnbounded(t *testing.T) {
	q := New(0)
	for i := 0; i < 1000; i++ {
		_, err := q.Enqueue(NewJob("u", fmt.Sprint(i), ""))
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, q.Len())
	assert.Equal(t, 0, q.Cap())
}

func TestQueue_FIFOWithManyProducers(t *testing.T) {
	const producers = 8
	const perProducer = 200
	q := New(0)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				_, err := q.Enqueue(NewJob(fmt.Sprint(p), fmt.Sprint(i), ""))
				assert.NoError(t, err)
			}
		}(p)
	}
	wg.Wait()

	// Per producer, tags must come out in the order they went in.
	last := make(map[string]int)
	ctx := context.Background()
	for n := 0; n < producers*perProducer; n++ {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		var tag int
		_, err = fmt.Sscan(job.Resource, &tag)
		require.NoError(t, err)
		if prev, ok := last[job.RequesterID]; ok {
			assert.Greater(t, tag, prev, "producer %s out of order", job.RequesterID)
		}
		last[job.RequesterID] = tag
	}
	assert.Equal(t, 0, q.Len())
}

func TestQueue_FIFOInterleavedProducersAndConsumer(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Producers tag jobs with a global sequence under a lock, so the enqueue
	// order is total and known.
	var mu sync.Mutex
	seq := 0
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				mu.Lock()
				_, err := q.Enqueue(NewJob("u", fmt.Sprint(seq), ""))
				seq++
				mu.Unlock()
				assert.NoError(t, err)
			}
		}()
	}

	for want := 0; want < 400; want++ {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(want), job.Resource)
	}
	wg.Wait()
}

func TestQueue_DequeueBlocksUntilJob(t *testing.T) {
	q := New(1)
	got := make(chan Job, 1)

	go func() {
		job, err := q.Dequeue(context.Background())
		if err == nil {
			got <- job
		}
	}()

	select {
	case <-got:
		t.Fatal("Dequeue returned before anything was enqueued")
	case <-time.After(50 * time.Millisecond):
	}

	want := NewJob("u", "x", "")
	_, err := q.Enqueue(want)
	require.NoError(t, err)

	select {
	case job := <-got:
		assert.Equal(t, want.ID, job.ID)
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not wake up")
	}
}

func TestQueue_ConcurrentConsumersNeverShareAJob(t *testing.T) {
	q := New(0)
	const total = 500
	for i := 0; i < total; i++ {
		_, err := q.Enqueue(NewJob("u", fmt.Sprint(i), ""))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for c := 0; c < 6; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.Dequeue(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[job.ID.String()]++
				if len(seen) == total {
					cancel()
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s delivered %d times", id, n)
	}
}

func TestQueue_DequeueHonoursContext(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Dequeue ignored cancellation")
	}
}

func TestQueue_CloseReleasesConsumersAndRejectsProducers(t *testing.T) {
	q := New(2)

	errCh := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, err := q.Dequeue(context.Background())
			errCh <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()
	q.Close() // idempotent

	for i := 0; i < 3; i++ {
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrClosed)
		case <-time.After(time.Second):
			t.Fatal("consumer not released by Close")
		}
	}

	_, err := q.Enqueue(NewJob("u", "late", ""))
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, q.Closed())
}

func TestQueue_DrainAfterClose(t *testing.T) {
	q := New(0)
	a := NewJob("u", "a", "")
	b := NewJob("u", "b", "")
	_, _ = q.Enqueue(a)
	_, _ = q.Enqueue(b)

	q.Close()
	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrClosed, "closed queue must not hand out leftovers")

	drained := q.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, a.ID, drained[0].ID)
	assert.Equal(t, b.ID, drained[1].ID)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

func TestQueue_DoneContextWinsOverQueuedJob(t *testing.T) {
	q := New(1)
	_, err := q.Enqueue(NewJob("u", "a", ""))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, q.Len())
}

func TestQueue_DequeueFuncHandsOverUnderLock(t *testing.T) {
	q := New(0)
	job := NewJob("u", "a", "")
	_, err := q.Enqueue(job)
	require.NoError(t, err)

	var taken []Job
	got, err := q.DequeueFunc(context.Background(), func(j Job) { taken = append(taken, j) })
	require.NoError(t, err)
	assert.Equal(t, job, got)
	assert.Equal(t, []Job{job}, taken)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = q.Enqueue(NewJob("u", "b", ""))
	_, err = q.DequeueFunc(ctx, func(j Job) { taken = append(taken, j) })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, taken, 1, "hook must not run when nothing is taken")
}

func TestQueue_JobIsAlwaysQueuedOrTaken(t *testing.T) {
	const total = 2000
	q := New(0)
	for i := 0; i < total; i++ {
		_, err := q.Enqueue(NewJob("u", fmt.Sprint(i), ""))
		require.NoError(t, err)
	}

	var taken atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			_, err := q.DequeueFunc(context.Background(), func(Job) { taken.Add(1) })
			assert.NoError(t, err)
		}
	}()

	// Len is read before taken, and taken only grows, so every job is
	// counted at least once.
	missed := 0
	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		if int64(q.Len())+taken.Load() < total {
			missed++
		}
	}

	assert.Zero(t, missed)
	assert.Equal(t, int64(total), taken.Load())
}
