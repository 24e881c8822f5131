package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/commutewatch/riskengine/internal/adapters/mq/queue"
	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/domain/ingest"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/pkg/logger"
	"github.com/commutewatch/riskengine/pkg/metrics"
)

// PassSummary describes the most recent pass.
type PassSummary struct {
	Reports  int `json:"reports"`
	Eligible int `json:"eligible"`
	Rejected int `json:"rejected"`
	Buckets  int `json:"buckets"`
	Failed   int `json:"failed"`
}

type jobResult struct {
	key   model.BucketKey
	score model.Score
	err   error
}

// RunPass reads the lookback window, classifies and buckets it, then fans
// one job per bucket out to the worker pool and waits for every write.
// Stored buckets with no events in the window are rescored from their
// route's full history, which is neutral only once no eligible report is
// left in the bucket.
func (s *Service) RunPass(ctx context.Context) error {
	s.mu.RLock()
	jobs := s.jobs
	s.mu.RUnlock()
	if jobs == nil {
		return ErrNotStarted
	}

	now := s.now()
	q := repository.ReportQuery{To: now}
	if s.lookback > 0 {
		q.From = now.Add(-s.lookback)
	}
	reports, err := s.reports.FindReports(ctx, q)
	if err != nil {
		metrics.RecordStoreError("report", "find")
		return fmt.Errorf("load reports: %w", err)
	}
	routes, err := s.routes.Routes(ctx)
	if err != nil {
		metrics.RecordStoreError("route", "list")
		return fmt.Errorf("load routes: %w", err)
	}
	zones := make(map[string]string, len(routes))
	for i := range routes {
		zones[routes[i].ID] = routes[i].TimeZone
	}

	events, rejected := s.filter.Classify(ctx, reports)
	groups := s.group(events, zones)

	stored, err := s.scores.Keys(ctx)
	if err != nil {
		metrics.RecordStoreError("score", "keys")
		return fmt.Errorf("load score keys: %w", err)
	}
	var stale []model.BucketKey
	for _, k := range stored {
		if _, ok := groups[k]; !ok {
			groups[k] = nil
			stale = append(stale, k)
		}
	}
	if s.lookback > 0 && len(stale) > 0 {
		older, err := s.backfill(ctx, stale, zones, now)
		if err != nil {
			return err
		}
		for k, evs := range older {
			groups[k] = evs
			events = append(events, evs...)
		}
	}

	keys := make([]model.BucketKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	results := make(chan jobResult, len(keys))
	dispatched := 0
	var enqueueErr error
	for _, k := range keys {
		k := k
		job := queue.Job{
			Ctx:    ctx,
			Key:    k,
			Events: groups[k],
			Now:    now,
			Done:   func(sc model.Score, err error) { results <- jobResult{key: k, score: sc, err: err} },
		}
		if err := jobs.Enqueue(ctx, job); err != nil {
			enqueueErr = fmt.Errorf("enqueue %s: %w", k, err)
			break
		}
		dispatched++
	}
	metrics.UpdateQueueSize(jobs.Len(ctx))

	var (
		errs    []error
		written []model.Score
	)
	for i := 0; i < dispatched; i++ {
		select {
		case r := <-results:
			if r.err != nil {
				errs = append(errs, r.err)
				continue
			}
			written = append(written, r.score)
		case <-ctx.Done():
			return fmt.Errorf("wait for %d bucket jobs: %w", dispatched-i, ctx.Err())
		}
	}
	updateOverallGauges(written)

	summary := PassSummary{
		Reports:  len(reports),
		Eligible: len(events),
		Rejected: len(rejected),
		Buckets:  len(keys),
		Failed:   len(errs),
	}
	s.mu.Lock()
	s.lastPass = summary
	s.mu.Unlock()

	if enqueueErr != nil {
		errs = append(errs, enqueueErr)
	}
	if len(errs) == 0 && s.markScored {
		if marker, ok := s.reports.(repository.ScoredMarker); ok {
			if err := marker.MarkScored(ctx, eventIDs(events), now); err != nil {
				metrics.RecordStoreError("report", "mark_scored")
				errs = append(errs, fmt.Errorf("mark scored: %w", err))
			}
		}
	}

	s.logger.Info(ctx, "aggregation pass finished",
		logger.Int("reports", summary.Reports),
		logger.Int("eligible", summary.Eligible),
		logger.Int("rejected", summary.Rejected),
		logger.Int("buckets", summary.Buckets),
		logger.Int("failed", summary.Failed),
	)
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d buckets not written: %w", len(keys)-len(written), len(keys), errors.Join(errs...))
	}
	return nil
}

func (s *Service) group(events []ingest.Event, zones map[string]string) map[model.BucketKey][]ingest.Event {
	groups := make(map[model.BucketKey][]ingest.Event)
	for i := range events {
		r := &events[i].Report
		key := model.BucketKey{RouteID: r.RouteID, Bucket: s.bucketer.BucketOf(r.CreatedAt, zones[r.RouteID])}
		groups[key] = append(groups[key], events[i])
	}
	return groups
}

// backfill reads the full history of each route owning a stale bucket and
// returns the events that fall into those buckets.
func (s *Service) backfill(ctx context.Context, stale []model.BucketKey, zones map[string]string, now time.Time) (map[model.BucketKey][]ingest.Event, error) {
	want := make(map[model.BucketKey]bool, len(stale))
	seen := make(map[string]bool)
	var routeIDs []string
	for _, k := range stale {
		want[k] = true
		if !seen[k.RouteID] {
			seen[k.RouteID] = true
			routeIDs = append(routeIDs, k.RouteID)
		}
	}
	sort.Strings(routeIDs)

	out := make(map[model.BucketKey][]ingest.Event)
	for _, id := range routeIDs {
		history, err := s.reports.FindReports(ctx, repository.ReportQuery{RouteID: id, To: now})
		if err != nil {
			metrics.RecordStoreError("report", "find")
			return nil, fmt.Errorf("load history of route %s: %w", id, err)
		}
		events, _ := s.filter.Classify(ctx, history)
		for k, evs := range s.group(events, zones) {
			if want[k] {
				out[k] = evs
			}
		}
	}
	return out, nil
}

func eventIDs(events []ingest.Event) []string {
	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].Report.ID
	}
	return ids
}

// updateOverallGauges publishes the mean overall score of each time bucket.
func updateOverallGauges(scores []model.Score) {
	sum := make(map[model.TimeBucket]float64)
	n := make(map[model.TimeBucket]int)
	for i := range scores {
		sum[scores[i].TimeBucket] += scores[i].Overall
		n[scores[i].TimeBucket]++
	}
	for b, c := range n {
		metrics.UpdateOverallScore(string(b), sum[b]/float64(c))
	}
}
