// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrMalformedReport marks a report that cannot be scored.
var ErrMalformedReport = errors.New("malformed report")

// ReportType classifies what a commuter reported.
type ReportType string

const (
	TypeDelay     ReportType = "delay"
	TypeSafety    ReportType = "safety"
	TypeCrowding  ReportType = "crowding"
	TypeBreakdown ReportType = "breakdown"
	TypeOther     ReportType = "other"
)

// Valid reports whether t is a known report type.
func (t ReportType) Valid() bool {
	switch t {
	case TypeDelay, TypeSafety, TypeCrowding, TypeBreakdown, TypeOther:
		return true
	}
	return false
}

// Severity is the reporter's assessment of an incident, low to critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists severities in increasing order.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Rank orders severities: low=1 ... critical=4, unknown=0.
func (s Severity) Rank() int {
	for i, v := range Severities {
		if v == s {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return s.Rank() > 0 }

// Status is the moderation state of a report.
type Status string

const (
	StatusPending   Status = "pending"
	StatusVerified  Status = "verified"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusResolved, StatusDismissed:
		return true
	}
	return false
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Valid reports whether the point lies on the globe.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Report is a commuter submission. The engine only reads it, apart from
// LastScoredAt.
type Report struct {
	ID                string     `json:"id"`
	RouteID           string     `json:"routeId"`
	Type              ReportType `json:"reportType"`
	Severity          Severity   `json:"severity"`
	Description       string     `json:"description,omitempty"`
	Location          *GeoPoint  `json:"location,omitempty"`
	IsAnonymous       bool       `json:"isAnonymous"`
	DeviceFingerprint string     `json:"deviceFingerprint,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	Status            Status     `json:"status"`
	ResolvedAt        *time.Time `json:"resolvedAt,omitempty"`
	LastScoredAt      *time.Time `json:"lastScoredAt,omitempty"`
}

// Validate returns an error wrapping ErrMalformedReport when a required field
// is missing or a value is out of range.
func (r *Report) Validate() error {
	var reason string
	switch {
	case strings.TrimSpace(r.ID) == "":
		reason = "missing id"
	case strings.TrimSpace(r.RouteID) == "":
		reason = "missing route id"
	case r.CreatedAt.IsZero():
		reason = "missing created_at"
	case !r.Type.Valid():
		reason = fmt.Sprintf("unknown report type %q", r.Type)
	case !r.Severity.Valid():
		reason = fmt.Sprintf("unknown severity %q", r.Severity)
	case !r.Status.Valid():
		reason = fmt.Sprintf("unknown status %q", r.Status)
	case r.Location != nil && !r.Location.Valid():
		reason = fmt.Sprintf("impossible coordinates %v,%v", r.Location.Lat, r.Location.Lng)
	default:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMalformedReport, reason)
}

// Route is the slice of route metadata the engine needs.
type Route struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	SaccoID   string `json:"saccoId"`
	SaccoName string `json:"saccoName,omitempty"`
	TimeZone  string `json:"timeZone,omitempty"`
}
