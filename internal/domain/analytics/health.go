package analytics

import (
	"strconv"
	"strings"

	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/internal/domain/types"
)

// preciseDecimals is the minimum fractional precision of a precise location.
const preciseDecimals = 3

// systemHealth counts every report created in the window, dismissed ones
// included.
func systemHealth(w *window) types.SystemHealth {
	h := types.SystemHealth{TotalReports: len(w.all)}
	if h.TotalReports == 0 {
		return h
	}

	var settled, responded int
	var responseHours, quality float64
	for i := range w.all {
		r := &w.all[i]
		if r.Status == model.StatusResolved || r.Status == model.StatusVerified {
			settled++
		}
		if r.ResolvedAt != nil && !r.ResolvedAt.Before(r.CreatedAt) {
			responded++
			responseHours += r.ResolvedAt.Sub(r.CreatedAt).Hours()
		}
		quality += completeness(r)
	}

	h.ResolutionRate = float64(settled) / float64(h.TotalReports)
	if responded > 0 {
		h.AverageResponseHours = responseHours / float64(responded)
	}
	h.DataQuality = quality / float64(h.TotalReports)
	return h
}

// completeness is (hasDescription + hasPreciseLocation) / 2.
func completeness(r *model.Report) float64 {
	score := 0.0
	if strings.TrimSpace(r.Description) != "" {
		score++
	}
	if r.Location != nil && decimals(r.Location.Lat) >= preciseDecimals && decimals(r.Location.Lng) >= preciseDecimals {
		score++
	}
	return score / 2
}

// decimals counts significant fractional digits in the shortest decimal
// representation of v.
func decimals(v float64) int {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}
