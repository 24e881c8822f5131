// Package worker runs bucket aggregation jobs over a bounded pool.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/commutewatch/riskengine/internal/adapters/mq/queue"
	"github.com/commutewatch/riskengine/internal/domain/ingest"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/pkg/logger"
	"github.com/commutewatch/riskengine/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Aggregator recomputes one bucket.
type Aggregator interface {
	Aggregate(routeID string, bucket model.TimeBucket, events []ingest.Event, now time.Time) model.Score
}

// Writer persists a score, replacing the whole record.
type Writer interface {
	Upsert(ctx context.Context, s model.Score) error
}

// Publisher announces a written score. Failures do not fail the job.
type Publisher interface {
	Publish(ctx context.Context, s model.Score) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Worker processes jobs until its queue closes.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue      Queue
	aggregator Aggregator
	writer     Writer
	publisher  Publisher
	name       string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, agg Aggregator, w Writer, opts ...Option) *InMemoryWorker {
	wk := &InMemoryWorker{
		queue:      q,
		aggregator: agg,
		writer:     w,
		name:       "worker",
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(wk)
	}
	if wk.name != "worker" {
		wk.logger = wk.logger.With(logger.String("worker", wk.name))
	}
	return wk
}

// Run consumes jobs until the queue closes, ctx ends or Shutdown is called.
// A job already taken off the queue always runs to completion.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(&j)
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// process aggregates, writes and announces one bucket. Panics are turned into
// job errors so a single bad bucket cannot take the pool down.
func (w *InMemoryWorker) process(j *queue.Job) {
	ctx := j.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	var (
		score model.Score
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("aggregate %s: panic: %v", j.Key, r)
			}
		}()
		score = w.aggregator.Aggregate(j.Key.RouteID, j.Key.Bucket, j.Events, j.Now)
	}()
	if err != nil {
		w.logger.Error(ctx, "bucket aggregation panicked", logger.String("bucket", j.Key.String()), logger.Error(err))
		j.Finish(model.Score{}, err)
		return
	}

	if err = w.writer.Upsert(ctx, score); err != nil {
		metrics.RecordStoreError("score", "upsert")
		w.logger.Error(ctx, "score write failed", logger.String("bucket", j.Key.String()), logger.Error(err))
		j.Finish(score, fmt.Errorf("write %s: %w", j.Key, err))
		return
	}
	metrics.RecordBucketScored(float64(time.Since(start).Milliseconds()))

	if w.publisher != nil {
		if perr := w.publisher.Publish(ctx, score); perr != nil {
			metrics.RecordScoreEvent(metrics.OutcomeFailure)
			w.logger.Warn(ctx, "score event not published", logger.String("bucket", j.Key.String()), logger.Error(perr))
		} else {
			metrics.RecordScoreEvent(metrics.OutcomeSuccess)
		}
	}

	w.logger.Debug(ctx, "bucket scored",
		logger.String("bucket", j.Key.String()),
		logger.Int("reports", score.TotalReports),
		logger.Float64("overall", score.Overall))
	j.Finish(score, nil)
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates workerCount workers; values below 1 use runtime.NumCPU().
func NewPool(workerCount int, q Queue, agg Aggregator, w Writer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Nop(),
	}
	probe := &InMemoryWorker{logger: p.logger}
	for _, opt := range opts {
		opt(probe)
	}
	p.logger = probe.logger

	for i := 0; i < workerCount; i++ {
		wopts := append(append([]Option{}, opts...), WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, agg, w, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	sctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-sctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", sctx.Err())
		}
	}
	return nil
}
