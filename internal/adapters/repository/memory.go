package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/commutewatch/riskengine/internal/domain/model"
)

// MemoryReportStore keeps reports and routes in process memory.
type MemoryReportStore struct {
	mu      sync.RWMutex
	reports map[string]model.Report
	order   []string
	routes  map[string]model.Route
}

// NewMemoryReportStore creates a report and route store.
func NewMemoryReportStore(opts ...Option) *MemoryReportStore {
	s := &MemoryReportStore{
		reports: make(map[string]model.Report),
		routes:  make(map[string]model.Route),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InsertReports adds or replaces reports by id.
func (s *MemoryReportStore) InsertReports(_ context.Context, reports []model.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range reports {
		if _, ok := s.reports[r.ID]; !ok {
			s.order = append(s.order, r.ID)
		}
		s.reports[r.ID] = r
	}
	return nil
}

// UpsertRoutes adds or replaces routes by id.
func (s *MemoryReportStore) UpsertRoutes(_ context.Context, routes []model.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range routes {
		s.routes[r.ID] = r
	}
	return nil
}

// FindReports returns matching reports in insertion order.
func (s *MemoryReportStore) FindReports(ctx context.Context, q ReportQuery) ([]model.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, Transient("memory: find reports", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	saccoOf := func(routeID string) string { return s.routes[routeID].SaccoID }
	out := make([]model.Report, 0, len(s.order))
	for _, id := range s.order {
		r := s.reports[id]
		if q.Matches(&r, saccoOf) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MarkScored stamps LastScoredAt on known reports.
func (s *MemoryReportStore) MarkScored(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if r, ok := s.reports[id]; ok {
			stamp := at
			r.LastScoredAt = &stamp
			s.reports[id] = r
		}
	}
	return nil
}

// Route implements RouteStore.
func (s *MemoryReportStore) Route(_ context.Context, id string) (model.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[id]
	if !ok {
		return model.Route{}, ErrNotFound
	}
	return r, nil
}

// Routes returns every route ordered by id.
func (s *MemoryReportStore) Routes(_ context.Context) ([]model.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryScoreStore keeps one record per bucket key.
type MemoryScoreStore struct {
	mu     sync.RWMutex
	scores map[model.BucketKey]model.Score
}

// NewMemoryScoreStore creates an empty score store.
func NewMemoryScoreStore() *MemoryScoreStore {
	return &MemoryScoreStore{scores: make(map[model.BucketKey]model.Score)}
}

// Upsert replaces the whole record of the score's bucket.
func (s *MemoryScoreStore) Upsert(ctx context.Context, sc model.Score) error {
	if err := ctx.Err(); err != nil {
		return Transient("memory: upsert score", err)
	}
	s.mu.Lock()
	s.scores[sc.Key()] = sc
	s.mu.Unlock()
	return nil
}

// Scores implements ScoreStore.
func (s *MemoryScoreStore) Scores(_ context.Context, routeID string) ([]model.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Score
	for k, sc := range s.scores {
		if k.RouteID == routeID {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bucketOrder(out[i].TimeBucket) < bucketOrder(out[j].TimeBucket) })
	return out, nil
}

// Keys implements ScoreStore.
func (s *MemoryScoreStore) Keys(_ context.Context) ([]model.BucketKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BucketKey, 0, len(s.scores))
	for k := range s.scores {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out, nil
}

// Count returns the number of stored buckets.
func (s *MemoryScoreStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scores)
}
