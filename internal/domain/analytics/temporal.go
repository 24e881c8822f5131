package analytics

import (
	"sort"

	"github.com/commutewatch/riskengine/internal/domain/types"
)

// temporal builds hour-of-day and weekday histograms in each route's local
// time. Weekdays follow time.Weekday (0 = Sunday).
func (a *Analyzer) temporal(w *window) types.TemporalPatterns {
	var tp types.TemporalPatterns
	for i := range w.incidents {
		r := &w.incidents[i]
		local := a.bucketer.LocalTime(r.CreatedAt, w.routes[r.RouteID].TimeZone)
		tp.Hourly[local.Hour()]++
		tp.Weekly[int(local.Weekday())]++
	}
	tp.PeakHours = peaks(tp.Hourly[:])
	tp.PeakDays = peaks(tp.Weekly[:])
	return tp
}

// peaks returns up to three non-empty slots by count desc then index asc.
func peaks(hist []int) []types.CountBucket {
	all := make([]types.CountBucket, 0, len(hist))
	for i, c := range hist {
		if c > 0 {
			all = append(all, types.CountBucket{Index: i, Count: c})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Index < all[j].Index
	})
	if len(all) > peakCount {
		all = all[:peakCount]
	}
	return all
}
