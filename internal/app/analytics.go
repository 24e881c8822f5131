package service

import (
	"context"
	"fmt"
	"time"

	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/domain/types"
	"github.com/commutewatch/riskengine/pkg/logger"
	"github.com/commutewatch/riskengine/pkg/metrics"
)

type cachedSnapshot struct {
	snap     types.RiskSnapshot
	cachedAt time.Time
}

// Snapshot returns the risk snapshot for period. Results are cached for the
// analytics TTL and concurrent misses for one period share a computation.
func (s *Service) Snapshot(ctx context.Context, period types.Period) (types.RiskSnapshot, error) {
	period, err := types.ParsePeriod(string(period))
	if err != nil {
		return types.RiskSnapshot{}, err
	}
	snap, gen, ok := s.cached(period)
	if ok {
		metrics.RecordAnalyticsCache(metrics.CacheHit)
		return snap, nil
	}
	metrics.RecordAnalyticsCache(metrics.CacheMiss)

	// Misses after an invalidation never join a computation started before it.
	v, err, _ := s.flight.Do(fmt.Sprintf("%s/%d", period, gen), func() (interface{}, error) {
		return s.computeSnapshot(ctx, period, gen)
	})
	if err != nil {
		return types.RiskSnapshot{}, err
	}
	return v.(types.RiskSnapshot), nil
}

// cached returns the live entry for period, if any, and the cache generation
// it was looked up in.
func (s *Service) cached(period types.Period) (types.RiskSnapshot, uint64, bool) {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	if s.analyticsTTL <= 0 {
		return types.RiskSnapshot{}, s.snapGen, false
	}
	c, ok := s.snapshots[period]
	if !ok || s.now().Sub(c.cachedAt) >= s.analyticsTTL {
		return types.RiskSnapshot{}, s.snapGen, false
	}
	return c.snap, s.snapGen, true
}

func (s *Service) computeSnapshot(ctx context.Context, period types.Period, gen uint64) (types.RiskSnapshot, error) {
	start := time.Now()
	now := s.now()

	reports, err := s.reports.FindReports(ctx, repository.ReportQuery{From: now.Add(-period.Duration()), To: now})
	if err != nil {
		metrics.RecordStoreError("report", "find")
		return types.RiskSnapshot{}, fmt.Errorf("load reports: %w", err)
	}
	routes, err := s.routes.Routes(ctx)
	if err != nil {
		metrics.RecordStoreError("route", "list")
		return types.RiskSnapshot{}, fmt.Errorf("load routes: %w", err)
	}

	snap := s.analyzer.Compute(period, now, reports, routes)
	metrics.RecordAnalyticsDuration(string(period), float64(time.Since(start).Milliseconds()))
	s.logger.Debug(ctx, "risk snapshot computed",
		logger.String("period", string(period)),
		logger.Int("reports", len(reports)),
		logger.Int("routes", len(routes)))

	if s.analyticsTTL > 0 {
		s.snapMu.Lock()
		if s.snapGen == gen {
			s.snapshots[period] = cachedSnapshot{snap: snap, cachedAt: now}
		}
		s.snapMu.Unlock()
	}
	return snap, nil
}

// InvalidateSnapshots drops every cached snapshot. Computations already in
// flight still answer their callers but are not cached.
func (s *Service) InvalidateSnapshots() {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	s.snapshots = make(map[types.Period]cachedSnapshot)
	s.snapGen++
}
