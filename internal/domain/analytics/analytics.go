// Package analytics builds period-scoped risk snapshots for the authority
// dashboard. Every computation is a pure function of its inputs.
package analytics

import (
	"sort"
	"time"

	"github.com/commutewatch/riskengine/internal/domain/bucket"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/internal/domain/types"
)

// UnassignedSacco groups incidents on routes without a known operator.
const UnassignedSacco = "unassigned"

const (
	defaultGridDecimals = 2
	defaultSigma        = 1.5
	defaultTopN         = 10
	defaultMinReports   = 5
	peakCount           = 3
)

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithGridDecimals sets the coordinate rounding used for hotspot cells.
func WithGridDecimals(d int) Option {
	return func(a *Analyzer) {
		if d >= 0 && d <= 6 {
			a.gridDecimals = d
		}
	}
}

// WithHotspotSigma sets k in the mean + k·stddev hotspot threshold.
func WithHotspotSigma(k float64) Option {
	return func(a *Analyzer) {
		if k >= 0 {
			a.sigma = k
		}
	}
}

// WithTopN caps every ranked list.
func WithTopN(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.topN = n
		}
	}
}

// WithMinReports sets the report count a SACCO needs to rank as a top performer.
func WithMinReports(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.minReports = n
		}
	}
}

// WithBucketer sets the zone resolver used for local-time histograms.
func WithBucketer(b *bucket.Bucketer) Option {
	return func(a *Analyzer) {
		if b != nil {
			a.bucketer = b
		}
	}
}

// Analyzer computes risk snapshots. It holds only configuration.
type Analyzer struct {
	gridDecimals int
	sigma        float64
	topN         int
	minReports   int
	bucketer     *bucket.Bucketer
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		gridDecimals: defaultGridDecimals,
		sigma:        defaultSigma,
		topN:         defaultTopN,
		minReports:   defaultMinReports,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.bucketer == nil {
		a.bucketer = bucket.New()
	}
	return a
}

// window holds the reports of one period joined with their routes.
type window struct {
	all       []model.Report // every report created in the window
	incidents []model.Report // all minus dismissed and malformed
	routes    map[string]model.Route
}

func (w *window) saccoOf(routeID string) (id, name string) {
	r, ok := w.routes[routeID]
	if !ok || r.SaccoID == "" {
		return UnassignedSacco, ""
	}
	return r.SaccoID, r.SaccoName
}

// Compute builds the snapshot for [now−period, now]. Reports outside the
// window are ignored, so callers may pass a superset.
func (a *Analyzer) Compute(period types.Period, now time.Time, reports []model.Report, routes []model.Route) types.RiskSnapshot {
	start := now.Add(-period.Duration())
	w := &window{routes: make(map[string]model.Route, len(routes))}
	for _, r := range routes {
		w.routes[r.ID] = r
	}

	for i := range reports {
		r := reports[i]
		if r.CreatedAt.Before(start) || r.CreatedAt.After(now) {
			continue
		}
		w.all = append(w.all, r)
		if r.Status != model.StatusDismissed && r.Validate() == nil {
			w.incidents = append(w.incidents, r)
		}
	}
	// Fixed iteration order keeps float sums identical across calls.
	sortReports(w.all)
	sortReports(w.incidents)

	return types.RiskSnapshot{
		Period:                  period,
		GeneratedAt:             now,
		WindowStart:             start,
		WindowEnd:               now,
		SaccoPerformance:        a.saccoPerformance(w),
		RouteRiskAnalysis:       a.routeRisk(w),
		GeographicRiskMap:       a.geoRisk(w),
		TemporalPatterns:        a.temporal(w),
		SystemHealth:            systemHealth(w),
		ResourceRecommendations: a.recommendations(w),
	}
}

func sortReports(rs []model.Report) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func (a *Analyzer) capped(n int) int {
	if n > a.topN {
		return a.topN
	}
	return n
}
