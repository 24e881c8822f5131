// Package scoring folds weighted report events into per-bucket route scores.
package scoring

import (
	"math"
	"time"

	"github.com/commutewatch/riskengine/internal/domain/ingest"
	"github.com/commutewatch/riskengine/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultHalfLife = 14 * 24 * time.Hour
	defaultNeutral  = 3.0
	minDecay        = 1e-9
)

// DefaultSeverityPenalties increase strictly from low to critical.
var DefaultSeverityPenalties = map[model.Severity]float64{
	model.SeverityLow:      0.2,
	model.SeverityMedium:   0.5,
	model.SeverityHigh:     1.0,
	model.SeverityCritical: 2.0,
}

// subscore identifies one of the four score dimensions.
type subscore int

const (
	reliability subscore = iota
	safety
	punctuality
	comfort
	numSubscores
)

// affects maps each report type to the sub-scores it penalises.
var affects = map[model.ReportType][]subscore{
	model.TypeDelay:     {punctuality, reliability},
	model.TypeSafety:    {safety},
	model.TypeCrowding:  {comfort},
	model.TypeBreakdown: {reliability, safety},
	model.TypeOther:     {comfort},
}

// Option applies a configuration option to the Aggregator.
type Option func(*Aggregator)

// WithSeverityPenaltiesFromConfig overrides penalties keyed by severity name.
// Unknown names and non-positive values are ignored.
func WithSeverityPenaltiesFromConfig(penalties map[string]float64) Option {
	return func(a *Aggregator) {
		for name, p := range penalties {
			sev := model.Severity(name)
			if sev.Valid() && p > 0 {
				a.penalties[sev] = p
			}
		}
	}
}

// WithHalfLife sets the recency decay half-life.
func WithHalfLife(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.halfLife = d
		}
	}
}

// WithWeightsFromConfig sets the overall score weights from a name keyed map
// (reliability, safety, punctuality, comfort).
func WithWeightsFromConfig(weights map[string]float64) Option {
	return func(a *Aggregator) {
		w := model.Weights{
			Reliability: weights["reliability"],
			Safety:      weights["safety"],
			Punctuality: weights["punctuality"],
			Comfort:     weights["comfort"],
		}
		if w.Sum() > 0 {
			a.weights = w
		}
	}
}

// WithNeutral sets the score given to buckets without eligible reports.
func WithNeutral(v float64) Option {
	return func(a *Aggregator) {
		if v >= model.MinScore && v <= model.MaxScore {
			a.neutral = v
		}
	}
}

// Aggregator computes scores. It holds only configuration and is safe for
// concurrent use.
type Aggregator struct {
	penalties map[model.Severity]float64
	halfLife  time.Duration
	weights   model.Weights
	neutral   float64
}

// NewAggregator creates an aggregator with the default constants.
func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		penalties: make(map[model.Severity]float64, len(DefaultSeverityPenalties)),
		halfLife:  defaultHalfLife,
		weights:   model.DefaultWeights,
		neutral:   defaultNeutral,
	}
	for sev, p := range DefaultSeverityPenalties {
		a.penalties[sev] = p
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate recomputes the full score of one bucket from its events. With no
// events every dimension is neutral.
func (a *Aggregator) Aggregate(routeID string, bucket model.TimeBucket, events []ingest.Event, now time.Time) model.Score {
	s := model.Score{
		RouteID:        routeID,
		TimeBucket:     bucket,
		TotalReports:   len(events),
		LastCalculated: now,
	}
	if len(events) == 0 {
		s.Reliability, s.Safety, s.Punctuality, s.Comfort = a.neutral, a.neutral, a.neutral, a.neutral
		s.Recompute(a.weights)
		return s
	}

	var penalty [numSubscores]float64
	for i := range events {
		p := a.Penalty(&events[i], now)
		for _, dim := range affects[events[i].Report.Type] {
			penalty[dim] += p
		}
	}
	s.Reliability = model.MaxScore - penalty[reliability]
	s.Safety = model.MaxScore - penalty[safety]
	s.Punctuality = model.MaxScore - penalty[punctuality]
	s.Comfort = model.MaxScore - penalty[comfort]
	s.Recompute(a.weights)
	return s
}

// Penalty is severityPenalty × weight × decay(age) for one event.
func (a *Aggregator) Penalty(e *ingest.Event, now time.Time) float64 {
	return a.penalties[e.Report.Severity] * e.Weight * a.Decay(now.Sub(e.Report.CreatedAt))
}

// Decay returns 0.5^(age/halfLife), never below 1e-9. Negative ages count as 0.
func (a *Aggregator) Decay(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	d := math.Pow(0.5, float64(age)/float64(a.halfLife))
	return math.Max(d, minDecay)
}

// Weights returns the overall score weights in use.
func (a *Aggregator) Weights() model.Weights { return a.weights }
