// Package queue carries bucket aggregation jobs from a pass to the workers.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/commutewatch/riskengine/internal/domain/ingest"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Job asks a worker to recompute one bucket. Each key appears in at most one
// job per pass, so a bucket is only ever written by one worker at a time.
type Job struct {
	// Ctx bounds the store writes of the job. It is detached from scheduler
	// shutdown so dispatched writes are not aborted.
	Ctx    context.Context
	Key    model.BucketKey
	Events []ingest.Event
	Now    time.Time
	// Done is called exactly once with the job's outcome.
	Done func(model.Score, error)
}

// Finish reports the outcome when a Done callback is set.
func (j *Job) Finish(s model.Score, err error) {
	if j.Done != nil {
		j.Done(s, err)
	}
}

// Queue provides blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue blocks until the job is queued, ctx is done or the queue closes.
	Enqueue(ctx context.Context, j Job) error

	// Dequeue returns the channel workers read jobs from. It is closed when
	// the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Job

	Len(ctx context.Context) int

	// Close stops accepting jobs. Queued jobs are still delivered.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	return q
}

// Enqueue implements Queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam: Job is passed by value over the channel
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- j:
		metrics.UpdateQueueSize(len(q.jobs))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", j.Key, ctx.Err())
	}
}

// Dequeue implements Queue.
func (q *InMemoryQueue) Dequeue(_ context.Context) <-chan Job {
	return q.jobs
}

// Len returns the number of queued jobs.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	return size
}

// Close implements Queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed implements Queue.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
