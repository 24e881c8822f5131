package analytics

import (
	"sort"

	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/internal/domain/types"
)

// routeCounts tallies incidents per route by severity.
func routeCounts(w *window) map[string]*types.RouteRisk {
	out := make(map[string]*types.RouteRisk)
	for i := range w.incidents {
		r := &w.incidents[i]
		rr, ok := out[r.RouteID]
		if !ok {
			sacco, _ := w.saccoOf(r.RouteID)
			rr = &types.RouteRisk{RouteID: r.RouteID, SaccoID: sacco}
			out[r.RouteID] = rr
		}
		rr.TotalIncidents++
		switch r.Severity {
		case model.SeverityCritical:
			rr.CriticalIncidents++
		case model.SeverityHigh:
			rr.HighIncidents++
		case model.SeverityMedium:
			rr.MediumIncidents++
		}
	}
	return out
}

// routeRisk ranks routes by (3·critical + 2·high + medium) / total. Routes
// without incidents never appear.
func (a *Analyzer) routeRisk(w *window) []types.RouteRisk {
	counts := routeCounts(w)
	out := make([]types.RouteRisk, 0, len(counts))
	for _, rr := range counts {
		if rr.TotalIncidents == 0 {
			continue
		}
		weighted := 3*rr.CriticalIncidents + 2*rr.HighIncidents + rr.MediumIncidents
		rr.RiskScore = float64(weighted) / float64(rr.TotalIncidents)
		out = append(out, *rr)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].RouteID < out[j].RouteID
	})
	return out[:a.capped(len(out))]
}

// recommendations ranks routes by 2·critical + 0.5·total.
func (a *Analyzer) recommendations(w *window) []types.ResourceRecommendation {
	counts := routeCounts(w)
	out := make([]types.ResourceRecommendation, 0, len(counts))
	for _, rr := range counts {
		p := 2*float64(rr.CriticalIncidents) + 0.5*float64(rr.TotalIncidents)
		out = append(out, types.ResourceRecommendation{
			RouteID:             rr.RouteID,
			SaccoID:             rr.SaccoID,
			CriticalReportCount: rr.CriticalIncidents,
			TotalReportCount:    rr.TotalIncidents,
			PriorityScore:       p,
			Level:               PriorityLevel(p),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityScore != out[j].PriorityScore {
			return out[i].PriorityScore > out[j].PriorityScore
		}
		return out[i].RouteID < out[j].RouteID
	})
	return out[:a.capped(len(out))]
}

// PriorityLevel buckets a priority score: urgent from 10, high from 5.
func PriorityLevel(score float64) string {
	switch {
	case score >= 10:
		return types.PriorityUrgent
	case score >= 5:
		return types.PriorityHigh
	default:
		return types.PriorityMonitor
	}
}
