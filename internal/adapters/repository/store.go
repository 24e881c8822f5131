// Package repository defines the storage boundaries of the engine and their
// in-memory implementations.
package repository

import (
	"context"
	"time"

	"github.com/commutewatch/riskengine/internal/domain/model"
)

// ReportQuery filters reports. Zero fields do not constrain; From and To are
// inclusive bounds on CreatedAt.
type ReportQuery struct {
	RouteID string
	SaccoID string
	From    time.Time
	To      time.Time
	Status  model.Status
}

// ReportStore reads submitted reports.
type ReportStore interface {
	FindReports(ctx context.Context, q ReportQuery) ([]model.Report, error)
}

// RouteStore resolves route metadata.
type RouteStore interface {
	// Route returns ErrNotFound for unknown ids.
	Route(ctx context.Context, id string) (model.Route, error)
	Routes(ctx context.Context) ([]model.Route, error)
}

// ScoreStore persists scores with replace-whole-record semantics.
type ScoreStore interface {
	Upsert(ctx context.Context, s model.Score) error
	// Scores returns every bucket of a route in day order; empty when unknown.
	Scores(ctx context.Context, routeID string) ([]model.Score, error)
	// Keys returns every stored bucket key in route, bucket order.
	Keys(ctx context.Context) ([]model.BucketKey, error)
}

// ScoredMarker is implemented by report stores that record when a report was
// last folded into a score.
type ScoredMarker interface {
	MarkScored(ctx context.Context, ids []string, at time.Time) error
}

// ReportWriter loads reports and routes; used by the seeding tool.
type ReportWriter interface {
	InsertReports(ctx context.Context, reports []model.Report) error
	UpsertRoutes(ctx context.Context, routes []model.Route) error
}

// Matches reports whether r satisfies q. saccoOf resolves a route's operator.
func (q ReportQuery) Matches(r *model.Report, saccoOf func(routeID string) string) bool {
	if q.RouteID != "" && r.RouteID != q.RouteID {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if !q.From.IsZero() && r.CreatedAt.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && r.CreatedAt.After(q.To) {
		return false
	}
	if q.SaccoID != "" && (saccoOf == nil || saccoOf(r.RouteID) != q.SaccoID) {
		return false
	}
	return true
}

// bucketOrder sorts buckets in day order rather than alphabetically.
func bucketOrder(b model.TimeBucket) int {
	for i, v := range model.Buckets {
		if v == b {
			return i
		}
	}
	return len(model.Buckets)
}
