package service

import (
	"time"

	"github.com/commutewatch/riskengine/internal/adapters/mq/worker"
	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/config"
	"github.com/commutewatch/riskengine/internal/domain/analytics"
	"github.com/commutewatch/riskengine/internal/domain/bucket"
	"github.com/commutewatch/riskengine/internal/domain/ingest"
	"github.com/commutewatch/riskengine/internal/domain/scoring"
	"github.com/commutewatch/riskengine/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of aggregation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the bucket job queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithReportStore sets where reports are read from.
func WithReportStore(st repository.ReportStore) Option {
	return func(s *Service) { s.reports = st }
}

// WithRouteStore sets where route metadata is read from.
func WithRouteStore(st repository.RouteStore) Option {
	return func(s *Service) { s.routes = st }
}

// WithScoreStore sets where scores are written.
func WithScoreStore(st repository.ScoreStore) Option {
	return func(s *Service) { s.scores = st }
}

// WithPublisher announces every written score.
func WithPublisher(p worker.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithFilter replaces the ingestion filter.
func WithFilter(f *ingest.Filter) Option {
	return func(s *Service) { s.filter = f }
}

// WithBucketer replaces the temporal bucketer.
func WithBucketer(b *bucket.Bucketer) Option {
	return func(s *Service) { s.bucketer = b }
}

// WithAggregator replaces the score aggregator.
func WithAggregator(a worker.Aggregator) Option {
	return func(s *Service) { s.aggregator = a }
}

// WithAnalyzer replaces the risk analytics aggregator.
func WithAnalyzer(a *analytics.Analyzer) Option {
	return func(s *Service) { s.analyzer = a }
}

// WithInterval sets the time between scheduled passes.
func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLookback sets how far back a pass reads reports. Zero reads the full
// history.
func WithLookback(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.lookback = d
		}
	}
}

// WithPassTimeout bounds one pass.
func WithPassTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.passTimeout = d
		}
	}
}

// WithMarkScored writes last-scored timestamps back to the report store.
func WithMarkScored(on bool) Option {
	return func(s *Service) { s.markScored = on }
}

// WithAnalyticsTTL sets how long a snapshot is served from cache. Zero
// disables caching.
func WithAnalyticsTTL(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.analyticsTTL = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// OptionsFromConfig builds the pipeline options described by cfg. Stores and
// the publisher are wired by the caller.
func OptionsFromConfig(cfg *config.Config, log logger.Logger) []Option {
	if log == nil {
		log = logger.Nop()
	}
	b := bucket.New(bucket.WithDefaultZone(cfg.DefaultTimeZone))
	return []Option{
		WithLogger(log),
		WithWorkerCount(cfg.WorkerCount),
		WithQueueSize(cfg.QueueSize),
		WithInterval(cfg.ScoreInterval),
		WithLookback(cfg.ScoreLookback),
		WithPassTimeout(cfg.PassTimeout),
		WithMarkScored(cfg.MarkScored),
		WithAnalyticsTTL(cfg.AnalyticsTTL),
		WithBucketer(b),
		WithFilter(ingest.New(
			ingest.WithAnonymousWeight(cfg.AnonymousWeight),
			ingest.WithDuplicateWeight(cfg.DuplicateWeight),
			ingest.WithCooldown(cfg.CooldownWindow),
			ingest.WithMaxTracked(cfg.CooldownSize),
			ingest.WithLogger(log.Named("ingest")),
		)),
		WithAggregator(scoring.NewAggregator(
			scoring.WithSeverityPenaltiesFromConfig(cfg.SeverityPenalties),
			scoring.WithHalfLife(cfg.DecayHalfLife),
			scoring.WithWeightsFromConfig(cfg.ScoreWeights),
			scoring.WithNeutral(cfg.NeutralScore),
		)),
		WithAnalyzer(analytics.New(
			analytics.WithBucketer(b),
			analytics.WithGridDecimals(cfg.GridDecimals),
			analytics.WithHotspotSigma(cfg.HotspotSigma),
			analytics.WithTopN(cfg.TopN),
			analytics.WithMinReports(cfg.MinReportsForRanking),
		)),
	}
}
