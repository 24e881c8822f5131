// Package service wires the ingestion filter, bucketer, score aggregator and
// risk analytics behind the scheduler and the dependencies the HTTP API needs.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/commutewatch/riskengine/internal/adapters/mq/queue"
	"github.com/commutewatch/riskengine/internal/adapters/mq/worker"
	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/domain/analytics"
	"github.com/commutewatch/riskengine/internal/domain/bucket"
	"github.com/commutewatch/riskengine/internal/domain/ingest"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/internal/domain/scoring"
	"github.com/commutewatch/riskengine/internal/domain/types"
	"github.com/commutewatch/riskengine/pkg/logger"
	"github.com/commutewatch/riskengine/pkg/metrics"
)

// Service owns the scoring pipeline and answers the API's reads.
type Service struct {
	mu sync.RWMutex

	// Stores
	reports repository.ReportStore
	routes  repository.RouteStore
	scores  repository.ScoreStore

	// Pipeline
	filter     *ingest.Filter
	bucketer   *bucket.Bucketer
	aggregator worker.Aggregator
	analyzer   *analytics.Analyzer
	publisher  worker.Publisher

	// Runtime
	jobs      queue.Queue
	pool      *worker.Pool
	scheduler *Scheduler

	// Configuration
	workerCount  int
	queueSize    int
	interval     time.Duration
	lookback     time.Duration
	passTimeout  time.Duration
	markScored   bool
	analyticsTTL time.Duration
	now          func() time.Time

	// Analytics cache
	snapMu    sync.Mutex
	snapshots map[types.Period]cachedSnapshot
	snapGen   uint64
	flight    singleflight.Group

	started  bool
	lastPass PassSummary

	logger logger.Logger
}

// New constructs a Service. Stores default to in-memory implementations.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  runtime.NumCPU(),
		queueSize:    10_000,
		interval:     15 * time.Minute,
		passTimeout:  5 * time.Minute,
		analyticsTTL: 5 * time.Minute,
		now:          time.Now,
		snapshots:    make(map[types.Period]cachedSnapshot),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Nop()
	}
	if s.reports == nil || s.routes == nil {
		mem := repository.NewMemoryReportStore()
		if s.reports == nil {
			s.reports = mem
		}
		if s.routes == nil {
			s.routes = mem
		}
	}
	if s.scores == nil {
		s.scores = repository.NewMemoryScoreStore()
	}
	if s.bucketer == nil {
		s.bucketer = bucket.New()
	}
	if s.filter == nil {
		s.filter = ingest.New(ingest.WithLogger(s.logger.Named("ingest")))
	}
	if s.aggregator == nil {
		s.aggregator = scoring.NewAggregator()
	}
	if s.analyzer == nil {
		s.analyzer = analytics.New(analytics.WithBucketer(s.bucketer))
	}
	s.scheduler = NewScheduler(s.RunPass,
		WithSchedulerInterval(s.interval),
		WithSchedulerPassTimeout(s.passTimeout),
		WithSchedulerLogger(s.logger.Named("scheduler")),
	)
	return s
}

// Start launches the worker pool and the scheduler, which runs its first
// pass immediately.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting risk engine service...")

	s.jobs = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	wopts := []worker.Option{worker.WithLogger(s.logger.Named("worker"))}
	if s.publisher != nil {
		wopts = append(wopts, worker.WithPublisher(s.publisher))
	}
	s.pool = worker.NewPool(s.workerCount, s.jobs, s.aggregator, s.scores, wopts...)
	// Workers outlive ctx; Stop drains them through the queue.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	if err := s.scheduler.Start(ctx); err != nil {
		s.started = false
		_ = s.pool.Shutdown(ctx)
		return err
	}

	s.logger.Info(ctx, "risk engine service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("interval", s.interval),
		logger.Duration("lookback", s.lookback),
	)
	return nil
}

// Stop stops scheduling, waits for an in-flight pass to finish its writes and
// then drains the worker pool.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool := s.pool
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping risk engine service...")
	s.scheduler.Stop()
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	s.logger.Info(ctx, "risk engine service stopped")
}

// Trigger requests an extra pass and drops cached risk snapshots.
func (s *Service) Trigger(ctx context.Context) error {
	if !s.scheduler.Trigger() {
		return ErrNotStarted
	}
	s.InvalidateSnapshots()
	s.logger.Info(ctx, "recalculation requested")
	return nil
}

// SchedulerState reports whether passes are being scheduled.
func (s *Service) SchedulerState() State { return s.scheduler.State() }

// SchedulerStats returns the pass history.
func (s *Service) SchedulerStats() SchedulerStats { return s.scheduler.Stats() }

// Scores returns every stored bucket of a route in day order. Unknown routes
// yield repository.ErrNotFound.
func (s *Service) Scores(ctx context.Context, routeID string) ([]model.Score, error) {
	out, err := s.scores.Scores(ctx, routeID)
	if err != nil {
		metrics.RecordStoreError("score", "read")
		return nil, err
	}
	if len(out) == 0 {
		return nil, repository.ErrNotFound
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"interval":    s.interval.String(),
		"lookback":    s.lookback.String(),
		"scheduler":   s.scheduler.Stats(),
		"lastPass":    s.lastPass,
	}
	if s.started {
		queueLen := s.jobs.Len(context.Background())
		stats["queueLength"] = queueLen
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}
