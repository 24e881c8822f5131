package testreports

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/pkg/logger"
)

// Run generates routes and reports and writes them to sink in concurrent
// batches. When BaseURL is set it then asks the service to recalculate.
func Run(ctx context.Context, cfg *Config, sink repository.ReportWriter, now time.Time) (*Stats, error) {
	cfg = cfg.withDefaults()
	log := logger.Get().Named("seed")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting report seeding",
		logger.Int("reports", cfg.NumReports),
		logger.Int("routes", cfg.NumRoutes),
		logger.Int("days", cfg.Days),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed))

	var client *HTTPClient
	if cfg.BaseURL != "" {
		client = newHTTPClient(cfg.Timeout)
		if err := checkServiceHealth(ctx, client, cfg.BaseURL); err != nil {
			return stats, fmt.Errorf("service health check failed: %w", err)
		}
	}

	gen := NewGenerator(cfg)
	routes := gen.Routes()
	reports := gen.Reports(routes, now)
	stats.RoutesGenerated = len(routes)
	stats.ReportsGenerated = len(reports)

	if err := sink.UpsertRoutes(ctx, routes); err != nil {
		return stats, fmt.Errorf("write routes: %w", err)
	}
	written, failed, err := writeBatches(ctx, cfg, sink, reports, log)
	stats.ReportsWritten = written
	stats.BatchesFailed = failed
	if err != nil {
		return stats, err
	}

	if client != nil {
		if err := requestRecalculation(ctx, client, cfg.BaseURL); err != nil {
			return stats, fmt.Errorf("recalculation request failed: %w", err)
		}
		stats.Recalculated = true
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "seeding finished",
		logger.Int("routes", stats.RoutesGenerated),
		logger.Int("reportsGenerated", stats.ReportsGenerated),
		logger.Int("reportsWritten", stats.ReportsWritten),
		logger.Int("batchesFailed", stats.BatchesFailed),
		logger.Bool("recalculated", stats.Recalculated),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

// writeBatches fans batches out to cfg.Workers writers.
func writeBatches(ctx context.Context, cfg *Config, sink repository.ReportWriter, reports []model.Report, log logger.Logger) (int, int, error) {
	batches := make(chan []model.Report, cfg.Workers*2)
	var (
		mu      sync.Mutex
		written int
		failed  int
		errs    []error
		wg      sync.WaitGroup
	)
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range batches {
				err := sink.InsertReports(ctx, b)
				mu.Lock()
				if err != nil {
					failed++
					errs = append(errs, err)
				} else {
					written += len(b)
				}
				mu.Unlock()
				if err != nil {
					log.Warn(ctx, "batch write failed", logger.Int("size", len(b)), logger.Error(err))
				} else if cfg.Verbose {
					log.Debug(ctx, "batch written", logger.Int("size", len(b)))
				}
			}
		}()
	}

feed:
	for start := 0; start < len(reports); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(reports) {
			end = len(reports)
		}
		select {
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			break feed
		case batches <- reports[start:end]:
		}
	}
	close(batches)
	wg.Wait()

	if len(errs) > 0 {
		return written, failed, fmt.Errorf("write reports: %w", errors.Join(errs...))
	}
	return written, failed, nil
}
