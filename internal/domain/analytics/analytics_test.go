package analytics_test

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/commutewatch/riskengine/internal/domain/analytics"
	"github.com/commutewatch/riskengine/internal/domain/bucket"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

type reportOpt func(*model.Report)

func at(t time.Time) reportOpt { return func(r *model.Report) { r.CreatedAt = t } }
func sev(s model.Severity) reportOpt { return func(r *model.Report) { r.Severity = s } }
func status(s model.Status) reportOpt { return func(r *model.Report) { r.Status = s } }
func loc(lat, lng float64) reportOpt {
	return func(r *model.Report) { r.Location = &model.GeoPoint{Lat: lat, Lng: lng} }
}

var seq int

func rep(route string, opts ...reportOpt) model.Report {
	seq++
	r := model.Report{
		ID:        fmt.Sprintf("rep-%04d", seq),
		RouteID:   route,
		Type:      model.TypeSafety,
		Severity:  model.SeverityLow,
		CreatedAt: now.Add(-time.Hour),
		Status:    model.StatusPending,
	}
	for _, o := range opts {
		o(&r)
	}
	return r
}

func repeat(n int, mk func() model.Report) []model.Report {
	out := make([]model.Report, n)
	for i := range out {
		out[i] = mk()
	}
	return out
}

var routes = []model.Route{
	{ID: "R1", SaccoID: "S-B", SaccoName: "Bravo", TimeZone: "UTC"},
	{ID: "R2", SaccoID: "S-A", SaccoName: "Alpha", TimeZone: "UTC"},
	{ID: "R3", SaccoID: "S-C", TimeZone: "UTC"},
}

func newAnalyzer() *analytics.Analyzer {
	return analytics.New(analytics.WithBucketer(bucket.New(bucket.WithDefaultZone("UTC"))))
}

func TestSaccoPerformance(t *testing.T) {
	Convey("Given two SACCOs tied on critical and total counts", t, func() {
		a := newAnalyzer()
		var reports []model.Report
		reports = append(reports, repeat(3, func() model.Report { return rep("R1", sev(model.SeverityCritical)) })...)
		reports = append(reports, repeat(3, func() model.Report { return rep("R2", sev(model.SeverityCritical)) })...)
		reports = append(reports, repeat(3, func() model.Report { return rep("R1") })...)
		reports = append(reports, repeat(3, func() model.Report { return rep("R2") })...)
		reports = append(reports, rep("R9", sev(model.SeverityCritical)))

		reversed := make([]model.Report, len(reports))
		for i := range reports {
			reversed[len(reports)-1-i] = reports[i]
		}

		first := a.Compute(types.Period7d, now, reports, routes)
		second := a.Compute(types.Period7d, now, reversed, routes)

		Convey("Then they are ordered by SACCO id on every run", func() {
			poor := first.SaccoPerformance.PoorPerformers
			So(poor, ShouldHaveLength, 3)
			So(poor[0].SaccoID, ShouldEqual, "S-A")
			So(poor[1].SaccoID, ShouldEqual, "S-B")
			So(poor[0].SaccoName, ShouldEqual, "Alpha")
			So(second.SaccoPerformance, ShouldResemble, first.SaccoPerformance)
		})

		Convey("Then unknown routes are grouped as unassigned", func() {
			So(first.SaccoPerformance.PoorPerformers[2].SaccoID, ShouldEqual, analytics.UnassignedSacco)
			So(first.SaccoPerformance.PoorPerformers[2].TotalReportCount, ShouldEqual, 1)
		})

		Convey("Then only SACCOs with enough reports rank as top performers", func() {
			top := first.SaccoPerformance.TopPerformers
			So(top, ShouldHaveLength, 2)
			So(top[0].SaccoID, ShouldEqual, "S-A")
			So(top[0].CriticalRatio, ShouldAlmostEqual, 0.5, 1e-12)
		})
	})

	Convey("Given SACCOs with different critical ratios", t, func() {
		a := newAnalyzer()
		var reports []model.Report
		reports = append(reports, repeat(1, func() model.Report { return rep("R1", sev(model.SeverityCritical)) })...)
		reports = append(reports, repeat(9, func() model.Report { return rep("R1") })...)
		reports = append(reports, repeat(3, func() model.Report { return rep("R2", sev(model.SeverityCritical)) })...)
		reports = append(reports, repeat(3, func() model.Report { return rep("R2") })...)
		snap := a.Compute(types.Period30d, now, reports, routes)

		Convey("Then the lowest ratio leads the top performers and the most criticals lead the poor", func() {
			So(snap.SaccoPerformance.TopPerformers[0].SaccoID, ShouldEqual, "S-B")
			So(snap.SaccoPerformance.PoorPerformers[0].SaccoID, ShouldEqual, "S-A")
		})
	})
}

func TestRouteRisk(t *testing.T) {
	Convey("Given incidents on two routes and only dismissed reports on a third", t, func() {
		a := newAnalyzer()
		reports := []model.Report{
			rep("R1", sev(model.SeverityCritical)),
			rep("R1", sev(model.SeverityLow)),
			rep("R2", sev(model.SeverityHigh)),
			rep("R3", sev(model.SeverityCritical), status(model.StatusDismissed)),
			rep("R3", sev(model.SeverityCritical), at(now.Add(-40*24*time.Hour))),
		}
		snap := a.Compute(types.Period30d, now, reports, routes)

		Convey("Then routes are ranked by severity-weighted risk", func() {
			rr := snap.RouteRiskAnalysis
			So(rr, ShouldHaveLength, 2)
			So(rr[0].RouteID, ShouldEqual, "R2")
			So(rr[0].RiskScore, ShouldEqual, 2.0)
			So(rr[1].RouteID, ShouldEqual, "R1")
			So(rr[1].RiskScore, ShouldEqual, 1.5)
			So(rr[1].SaccoID, ShouldEqual, "S-B")
		})

		Convey("Then a route without incidents in the period is absent rather than zero", func() {
			for _, r := range snap.RouteRiskAnalysis {
				So(r.RouteID, ShouldNotEqual, "R3")
			}
		})

		Convey("Then recommendations rank by priority with levels", func() {
			rec := snap.ResourceRecommendations
			So(rec, ShouldHaveLength, 2)
			So(rec[0].RouteID, ShouldEqual, "R1")
			So(rec[0].PriorityScore, ShouldEqual, 3.0)
			So(rec[0].Level, ShouldEqual, types.PriorityMonitor)
		})
	})

	Convey("Given priority scores around the level boundaries", t, func() {
		So(analytics.PriorityLevel(10), ShouldEqual, types.PriorityUrgent)
		So(analytics.PriorityLevel(9.5), ShouldEqual, types.PriorityHigh)
		So(analytics.PriorityLevel(5), ShouldEqual, types.PriorityHigh)
		So(analytics.PriorityLevel(4.5), ShouldEqual, types.PriorityMonitor)
	})

	Convey("Given more routes than the cap", t, func() {
		a := analytics.New(analytics.WithTopN(2))
		var reports []model.Report
		for i := 0; i < 5; i++ {
			reports = append(reports, rep(fmt.Sprintf("X%d", i), sev(model.SeverityHigh)))
		}
		snap := a.Compute(types.Period7d, now, reports, nil)

		So(snap.RouteRiskAnalysis, ShouldHaveLength, 2)
		So(snap.RouteRiskAnalysis[0].RouteID, ShouldEqual, "X0")
		So(snap.ResourceRecommendations, ShouldHaveLength, 2)
	})
}

func TestGeographicRisk(t *testing.T) {
	Convey("Given one dense cell and five sparse cells", t, func() {
		a := newAnalyzer()
		var reports []model.Report
		reports = append(reports, repeat(10, func() model.Report { return rep("R1", loc(-1.2921, 36.8219)) })...)
		for k := 1; k <= 5; k++ {
			reports = append(reports, rep("R1", loc(-1.0-float64(k)/10, 36.5)))
		}
		reports = append(reports, rep("R1"))
		snap := a.Compute(types.Period7d, now, reports, routes)
		geo := snap.GeographicRiskMap

		Convey("Then locations are rounded onto the grid", func() {
			So(geo.Cells, ShouldHaveLength, 6)
			So(geo.Cells[0].Lat, ShouldEqual, -1.29)
			So(geo.Cells[0].Lng, ShouldEqual, 36.82)
			So(geo.Cells[0].IncidentCount, ShouldEqual, 10)
		})

		Convey("Then only the dense cell exceeds mean plus 1.5 standard deviations", func() {
			So(geo.Threshold, ShouldAlmostEqual, 2.5+1.5*3.3541019662, 1e-6)
			So(geo.HighRiskCells, ShouldEqual, 1)
			So(geo.Cells[0].HighRisk, ShouldBeTrue)
			So(geo.Cells[1].HighRisk, ShouldBeFalse)
		})

		Convey("Then ties are ordered by latitude", func() {
			So(geo.Cells[1].Lat, ShouldEqual, -1.5)
			So(geo.Cells[5].Lat, ShouldEqual, -1.1)
		})
	})

	Convey("Given incidents just south and west of the origin", t, func() {
		reports := []model.Report{
			rep("R1", loc(-0.001, -0.002)),
			rep("R1", loc(0.001, 0.002)),
		}
		geo := newAnalyzer().Compute(types.Period7d, now, reports, routes).GeographicRiskMap

		Convey("Then they share one unsigned zero cell", func() {
			So(geo.Cells, ShouldHaveLength, 1)
			So(geo.Cells[0].IncidentCount, ShouldEqual, 2)
			So(math.Signbit(geo.Cells[0].Lat), ShouldBeFalse)
			So(math.Signbit(geo.Cells[0].Lng), ShouldBeFalse)
			raw, err := json.Marshal(geo.Cells[0])
			So(err, ShouldBeNil)
			So(string(raw), ShouldContainSubstring, `"lat":0,"lng":0`)
		})
	})

	Convey("Given no located incidents", t, func() {
		snap := newAnalyzer().Compute(types.Period7d, now, []model.Report{rep("R1")}, routes)

		So(snap.GeographicRiskMap.Cells, ShouldBeEmpty)
		So(snap.GeographicRiskMap.HighRiskCells, ShouldEqual, 0)
	})
}

func TestTemporalPatterns(t *testing.T) {
	Convey("Given 50 reports spread evenly over 24 hours across 7 days", t, func() {
		a := newAnalyzer()
		start := now.Add(-7 * 24 * time.Hour).Add(time.Minute)
		step := 7 * 24 * time.Hour / 50
		var reports []model.Report
		for i := 0; i < 50; i++ {
			reports = append(reports, rep("R1", at(start.Add(time.Duration(i)*step))))
		}
		snap := a.Compute(types.Period7d, now, reports, routes)
		tp := snap.TemporalPatterns

		Convey("Then exactly three peak hours dominate every other hour", func() {
			So(tp.PeakHours, ShouldHaveLength, 3)
			selected := map[int]bool{}
			minPeak := tp.PeakHours[0].Count
			for _, p := range tp.PeakHours {
				selected[p.Index] = true
				So(p.Count, ShouldEqual, tp.Hourly[p.Index])
				if p.Count < minPeak {
					minPeak = p.Count
				}
			}
			for h, c := range tp.Hourly {
				if !selected[h] {
					So(c, ShouldBeLessThanOrEqualTo, minPeak)
				}
			}
		})

		Convey("Then the histograms account for every incident", func() {
			hours, days := 0, 0
			for _, c := range tp.Hourly {
				hours += c
			}
			for _, c := range tp.Weekly {
				days += c
			}
			So(hours, ShouldEqual, 50)
			So(days, ShouldEqual, 50)
			So(tp.PeakDays, ShouldHaveLength, 3)
		})
	})

	Convey("Given a route in a non-UTC zone", t, func() {
		a := newAnalyzer()
		zoned := []model.Route{{ID: "RN", SaccoID: "S-N", TimeZone: "Africa/Nairobi"}}
		ts := time.Date(2026, 3, 19, 22, 30, 0, 0, time.UTC) // Friday 01:30 in Nairobi
		snap := a.Compute(types.Period7d, now, []model.Report{rep("RN", at(ts))}, zoned)

		Convey("Then hours and weekdays use the route's local time", func() {
			So(snap.TemporalPatterns.Hourly[1], ShouldEqual, 1)
			So(snap.TemporalPatterns.Weekly[int(time.Friday)], ShouldEqual, 1)
			So(snap.TemporalPatterns.PeakHours, ShouldResemble, []types.CountBucket{{Index: 1, Count: 1}})
		})
	})
}

func TestSystemHealth(t *testing.T) {
	Convey("Given reports in several moderation states", t, func() {
		a := newAnalyzer()
		created := now.Add(-5 * time.Hour)
		resolved := created.Add(2 * time.Hour)
		reports := []model.Report{
			rep("R1", at(created), status(model.StatusResolved), loc(-1.2921, 36.8219), func(r *model.Report) {
				r.Description = "matatu overloaded"
				r.ResolvedAt = &resolved
			}),
			rep("R1", status(model.StatusVerified), loc(-1.29, 36.82)),
			rep("R2", status(model.StatusDismissed), func(r *model.Report) { r.Description = "spam?" }),
			rep("R2"),
		}
		h := a.Compute(types.Period7d, now, reports, routes).SystemHealth

		Convey("Then every report in the window is counted", func() {
			So(h.TotalReports, ShouldEqual, 4)
			So(h.ResolutionRate, ShouldAlmostEqual, 0.5, 1e-12)
			So(h.AverageResponseHours, ShouldAlmostEqual, 2.0, 1e-9)
			So(h.DataQuality, ShouldAlmostEqual, 0.375, 1e-12)
		})
	})

	Convey("Given an empty window", t, func() {
		snap := newAnalyzer().Compute(types.Period90d, now, nil, routes)

		So(snap.SystemHealth, ShouldResemble, types.SystemHealth{})
		So(snap.RouteRiskAnalysis, ShouldBeEmpty)
		So(snap.WindowStart, ShouldEqual, now.Add(-90*24*time.Hour))
	})
}

func TestComputeDeterminism(t *testing.T) {
	Convey("Given a mixed report set", t, func() {
		a := newAnalyzer()
		var reports []model.Report
		sevs := model.Severities
		for i := 0; i < 200; i++ {
			reports = append(reports, rep(fmt.Sprintf("R%d", i%7),
				sev(sevs[i%len(sevs)]),
				at(now.Add(-time.Duration(i)*37*time.Minute)),
				loc(-1.2+float64(i%5)/100, 36.8+float64(i%3)/100)))
		}

		Convey("Then two computations are identical", func() {
			So(a.Compute(types.Period30d, now, reports, routes), ShouldResemble, a.Compute(types.Period30d, now, reports, routes))
		})
	})
}
