package model

import (
	"math"
	"time"
)

// Score bounds.
const (
	MinScore = 0.0
	MaxScore = 5.0
)

// TimeBucket is a coarse slot of the local day.
type TimeBucket string

const (
	BucketMorning   TimeBucket = "morning"
	BucketAfternoon TimeBucket = "afternoon"
	BucketEvening   TimeBucket = "evening"
	BucketNight     TimeBucket = "night"
)

// Buckets lists time buckets in day order.
var Buckets = []TimeBucket{BucketMorning, BucketAfternoon, BucketEvening, BucketNight}

// BucketKey identifies one aggregation unit.
type BucketKey struct {
	RouteID string
	Bucket  TimeBucket
}

func (k BucketKey) String() string { return k.RouteID + "/" + string(k.Bucket) }

// Less orders keys by route then bucket.
func (k BucketKey) Less(o BucketKey) bool {
	if k.RouteID != o.RouteID {
		return k.RouteID < o.RouteID
	}
	return k.Bucket < o.Bucket
}

// Weights blend the four sub-scores into the overall score.
type Weights struct {
	Reliability float64
	Safety      float64
	Punctuality float64
	Comfort     float64
}

// DefaultWeights puts safety first since it drives rider trust.
var DefaultWeights = Weights{Reliability: 0.3, Safety: 0.35, Punctuality: 0.2, Comfort: 0.15}

// Sum returns the total weight.
func (w Weights) Sum() float64 { return w.Reliability + w.Safety + w.Punctuality + w.Comfort }

// Score is the engine's per-bucket quality record.
type Score struct {
	RouteID        string     `json:"routeId"`
	TimeBucket     TimeBucket `json:"timeBucket"`
	Reliability    float64    `json:"reliabilityScore"`
	Safety         float64    `json:"safetyScore"`
	Punctuality    float64    `json:"punctualityScore"`
	Comfort        float64    `json:"comfortScore"`
	Overall        float64    `json:"overallScore"`
	TotalReports   int        `json:"totalReports"`
	LastCalculated time.Time  `json:"lastCalculated"`
}

// Key returns the score's bucket key.
func (s *Score) Key() BucketKey { return BucketKey{RouteID: s.RouteID, Bucket: s.TimeBucket} }

// Recompute clamps the sub-scores and derives Overall from them.
// Overall is never set any other way.
func (s *Score) Recompute(w Weights) {
	s.Reliability = Clamp(s.Reliability)
	s.Safety = Clamp(s.Safety)
	s.Punctuality = Clamp(s.Punctuality)
	s.Comfort = Clamp(s.Comfort)
	sum := w.Sum()
	if sum <= 0 {
		w, sum = DefaultWeights, DefaultWeights.Sum()
	}
	s.Overall = (w.Reliability*s.Reliability + w.Safety*s.Safety +
		w.Punctuality*s.Punctuality + w.Comfort*s.Comfort) / sum
}

// Clamp bounds v to [MinScore, MaxScore].
func Clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}
