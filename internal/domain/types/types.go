// Package types contains the risk snapshot shapes shared by analytics and the API.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPeriod is returned for periods other than 7d, 30d and 90d.
var ErrInvalidPeriod = errors.New("invalid period")

// Period is the rolling window of a risk snapshot.
type Period string

const (
	Period7d  Period = "7d"
	Period30d Period = "30d"
	Period90d Period = "90d"

	DefaultPeriod = Period30d
)

// Periods lists supported periods.
var Periods = []Period{Period7d, Period30d, Period90d}

// ParsePeriod accepts "7d", "30d" or "90d"; empty selects DefaultPeriod.
func ParsePeriod(s string) (Period, error) {
	p := Period(strings.ToLower(strings.TrimSpace(s)))
	if p == "" {
		return DefaultPeriod, nil
	}
	for _, known := range Periods {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
}

// Duration returns the window length.
func (p Period) Duration() time.Duration {
	switch p {
	case Period7d:
		return 7 * 24 * time.Hour
	case Period90d:
		return 90 * 24 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// RiskSnapshot is the authority dashboard's point-in-time analytics bundle.
type RiskSnapshot struct {
	Period                  Period                   `json:"period"`
	GeneratedAt             time.Time                `json:"generatedAt"`
	WindowStart             time.Time                `json:"windowStart"`
	WindowEnd               time.Time                `json:"windowEnd"`
	SaccoPerformance        SaccoPerformance         `json:"saccoPerformance"`
	RouteRiskAnalysis       []RouteRisk              `json:"routeRiskAnalysis"`
	GeographicRiskMap       GeoRiskMap               `json:"geographicRiskMap"`
	TemporalPatterns        TemporalPatterns         `json:"temporalPatterns"`
	SystemHealth            SystemHealth             `json:"systemHealth"`
	ResourceRecommendations []ResourceRecommendation `json:"resourceRecommendations"`
}

// SaccoStat aggregates incidents of one operator.
type SaccoStat struct {
	SaccoID             string  `json:"saccoId"`
	SaccoName           string  `json:"saccoName,omitempty"`
	TotalReportCount    int     `json:"totalReportCount"`
	CriticalReportCount int     `json:"criticalReportCount"`
	CriticalRatio       float64 `json:"criticalRatio"`
	RouteCount          int     `json:"routeCount"`
}

// SaccoPerformance splits operators into worst and best performers.
type SaccoPerformance struct {
	PoorPerformers []SaccoStat `json:"poorPerformers"`
	TopPerformers  []SaccoStat `json:"topPerformers"`
}

// RouteRisk is a route's severity-weighted risk in the period.
type RouteRisk struct {
	RouteID           string  `json:"routeId"`
	SaccoID           string  `json:"saccoId,omitempty"`
	TotalIncidents    int     `json:"totalIncidents"`
	CriticalIncidents int     `json:"criticalIncidents"`
	HighIncidents     int     `json:"highIncidents"`
	MediumIncidents   int     `json:"mediumIncidents"`
	RiskScore         float64 `json:"riskScore"`
}

// GeoCell is one grid cell of rounded coordinates.
type GeoCell struct {
	Lat           float64 `json:"lat"`
	Lng           float64 `json:"lng"`
	IncidentCount int     `json:"incidentCount"`
	CriticalCount int     `json:"criticalCount"`
	HighRisk      bool    `json:"highRisk"`
}

// GeoRiskMap holds populated cells and the adaptive high-risk threshold.
type GeoRiskMap struct {
	Cells         []GeoCell `json:"cells"`
	Threshold     float64   `json:"threshold"`
	HighRiskCells int       `json:"highRiskCells"`
}

// CountBucket is one histogram slot.
type CountBucket struct {
	Index int `json:"index"`
	Count int `json:"count"`
}

// TemporalPatterns are incident histograms by local hour and weekday.
type TemporalPatterns struct {
	Hourly    [24]int       `json:"hourly"`
	Weekly    [7]int        `json:"weekly"`
	PeakHours []CountBucket `json:"peakHours"`
	PeakDays  []CountBucket `json:"peakDays"`
}

// SystemHealth summarises moderation throughput and data quality.
type SystemHealth struct {
	TotalReports         int     `json:"totalReports"`
	ResolutionRate       float64 `json:"resolutionRate"`
	AverageResponseHours float64 `json:"averageResponseHours"`
	DataQuality          float64 `json:"dataQuality"`
}

// Priority levels for resource recommendations.
const (
	PriorityUrgent  = "urgent"
	PriorityHigh    = "high"
	PriorityMonitor = "monitor"
)

// ResourceRecommendation ranks a route for enforcement or fleet attention.
type ResourceRecommendation struct {
	RouteID             string  `json:"routeId"`
	SaccoID             string  `json:"saccoId,omitempty"`
	CriticalReportCount int     `json:"criticalReportCount"`
	TotalReportCount    int     `json:"totalReportCount"`
	PriorityScore       float64 `json:"priorityScore"`
	Level               string  `json:"level"`
}
