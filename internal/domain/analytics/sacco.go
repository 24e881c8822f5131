package analytics

import (
	"sort"

	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/internal/domain/types"
)

func (a *Analyzer) saccoPerformance(w *window) types.SaccoPerformance {
	stats := make(map[string]*types.SaccoStat)
	routesBySacco := make(map[string]map[string]struct{})
	for i := range w.incidents {
		r := &w.incidents[i]
		id, name := w.saccoOf(r.RouteID)
		st, ok := stats[id]
		if !ok {
			st = &types.SaccoStat{SaccoID: id, SaccoName: name}
			stats[id] = st
			routesBySacco[id] = make(map[string]struct{})
		}
		st.TotalReportCount++
		if r.Severity == model.SeverityCritical {
			st.CriticalReportCount++
		}
		routesBySacco[id][r.RouteID] = struct{}{}
	}

	all := make([]types.SaccoStat, 0, len(stats))
	for id, st := range stats {
		st.RouteCount = len(routesBySacco[id])
		st.CriticalRatio = float64(st.CriticalReportCount) / float64(st.TotalReportCount)
		all = append(all, *st)
	}

	poor := make([]types.SaccoStat, len(all))
	copy(poor, all)
	sort.Slice(poor, func(i, j int) bool {
		if poor[i].CriticalReportCount != poor[j].CriticalReportCount {
			return poor[i].CriticalReportCount > poor[j].CriticalReportCount
		}
		if poor[i].TotalReportCount != poor[j].TotalReportCount {
			return poor[i].TotalReportCount > poor[j].TotalReportCount
		}
		return poor[i].SaccoID < poor[j].SaccoID
	})

	top := make([]types.SaccoStat, 0, len(all))
	for _, st := range all {
		if st.TotalReportCount >= a.minReports {
			top = append(top, st)
		}
	}
	sort.Slice(top, func(i, j int) bool {
		// Compare critical/total ratios by cross-multiplication to stay exact.
		li := top[i].CriticalReportCount * top[j].TotalReportCount
		lj := top[j].CriticalReportCount * top[i].TotalReportCount
		if li != lj {
			return li < lj
		}
		if top[i].TotalReportCount != top[j].TotalReportCount {
			return top[i].TotalReportCount > top[j].TotalReportCount
		}
		return top[i].SaccoID < top[j].SaccoID
	})

	return types.SaccoPerformance{
		PoorPerformers: poor[:a.capped(len(poor))],
		TopPerformers:  top[:a.capped(len(top))],
	}
}
