// Package ingest classifies raw reports into weighted scoring events.
package ingest

import (
	"context"
	"sort"
	"time"

	"github.com/commutewatch/riskengine/internal/domain/dedupe"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/pkg/logger"
	"github.com/commutewatch/riskengine/pkg/metrics"
)

// Reason explains why a report was rejected.
type Reason string

const (
	ReasonDismissed Reason = "dismissed"
	ReasonMalformed Reason = "malformed"
)

// Event is a scoring-eligible report with its ingestion weight in (0,1].
type Event struct {
	Report model.Report
	Weight float64
}

// Rejection records a report excluded from scoring.
type Rejection struct {
	ReportID string
	Reason   Reason
	Err      error
}

// Filter assigns trust weights to reports.
type Filter struct {
	anonymousWeight float64
	duplicateWeight float64
	cooldown        time.Duration
	maxTracked      int
	log             logger.Logger
}

// New creates a Filter with anonymous weight 0.5, duplicate weight 0.1 and a
// 10 minute cooldown unless overridden.
func New(opts ...Option) *Filter {
	f := &Filter{
		anonymousWeight: 0.5,
		duplicateWeight: 0.1,
		cooldown:        10 * time.Minute,
		maxTracked:      100000,
		log:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Check returns the rejection reason for a single report, or "" when the
// report is eligible. It does not consider duplicates.
func (f *Filter) Check(r *model.Report) (Reason, error) {
	if err := r.Validate(); err != nil {
		return ReasonMalformed, err
	}
	if r.Status == model.StatusDismissed {
		return ReasonDismissed, nil
	}
	return "", nil
}

// Classify splits reports into eligible events and rejections. Reports are
// processed in (CreatedAt, ID) order so the result depends only on the input
// set; events come back in that order. Cooldown state lives for one call.
func (f *Filter) Classify(ctx context.Context, reports []model.Report) ([]Event, []Rejection) {
	ordered := make([]model.Report, len(reports))
	copy(ordered, reports)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	tracker := dedupe.NewCooldownTracker(dedupe.WithWindow(f.cooldown), dedupe.WithMaxSize(f.maxTracked))
	events := make([]Event, 0, len(ordered))
	var rejected []Rejection

	for i := range ordered {
		r := &ordered[i]
		reason, err := f.Check(r)
		if reason != "" {
			if reason == ReasonMalformed {
				f.log.Warn(ctx, "malformed report excluded",
					logger.String("report_id", r.ID), logger.Error(err))
				metrics.RecordReportClassified(metrics.OutcomeMalformed)
			} else {
				metrics.RecordReportClassified(metrics.OutcomeDismissed)
			}
			rejected = append(rejected, Rejection{ReportID: r.ID, Reason: reason, Err: err})
			continue
		}

		w := f.weight(r, tracker)
		metrics.RecordReportClassified(metrics.OutcomeEligible)
		metrics.RecordReportWeight(w)
		events = append(events, Event{Report: *r, Weight: w})
	}
	return events, rejected
}

func (f *Filter) weight(r *model.Report, tracker dedupe.Tracker) float64 {
	// Every fingerprinted report passes through the tracker so a verified
	// report still anchors the device window.
	fresh := true
	if r.DeviceFingerprint != "" {
		fresh = tracker.Admit(r.DeviceFingerprint+"|"+r.RouteID, r.CreatedAt)
	}
	if r.Status == model.StatusVerified {
		return 1.0
	}
	w := 1.0
	if r.IsAnonymous {
		w *= f.anonymousWeight
	}
	if !fresh {
		w *= f.duplicateWeight
	}
	return w
}
