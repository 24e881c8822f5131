package analytics

import (
	"math"
	"sort"

	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/internal/domain/types"
)

type cellKey struct {
	lat, lng float64
}

// gridRound rounds v onto the grid. Negative values that round to zero become +0.
func gridRound(v, scale float64) float64 {
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0
	}
	return r
}

// geoRisk groups located incidents into rounded grid cells and flags cells
// whose count exceeds mean + sigma·stddev over populated cells.
func (a *Analyzer) geoRisk(w *window) types.GeoRiskMap {
	scale := math.Pow(10, float64(a.gridDecimals))
	cells := make(map[cellKey]*types.GeoCell)
	for i := range w.incidents {
		r := &w.incidents[i]
		if r.Location == nil {
			continue
		}
		k := cellKey{lat: gridRound(r.Location.Lat, scale), lng: gridRound(r.Location.Lng, scale)}
		c, ok := cells[k]
		if !ok {
			c = &types.GeoCell{Lat: k.lat, Lng: k.lng}
			cells[k] = c
		}
		c.IncidentCount++
		if r.Severity == model.SeverityCritical {
			c.CriticalCount++
		}
	}

	out := make([]types.GeoCell, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IncidentCount != out[j].IncidentCount {
			return out[i].IncidentCount > out[j].IncidentCount
		}
		if out[i].Lat != out[j].Lat {
			return out[i].Lat < out[j].Lat
		}
		return out[i].Lng < out[j].Lng
	})

	counts := make([]float64, len(out))
	for i, c := range out {
		counts[i] = float64(c.IncidentCount)
	}
	m, sd := meanStd(counts)
	threshold := m + a.sigma*sd

	high := 0
	for i := range out {
		if float64(out[i].IncidentCount) > threshold {
			out[i].HighRisk = true
			high++
		}
	}
	return types.GeoRiskMap{Cells: out, Threshold: threshold, HighRiskCells: high}
}

// meanStd returns the mean and population standard deviation.
func meanStd(a []float64) (float64, float64) {
	if len(a) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range a {
		sum += v
	}
	m := sum / float64(len(a))
	var s float64
	for _, v := range a {
		d := v - m
		s += d * d
	}
	return m, math.Sqrt(s / float64(len(a)))
}
