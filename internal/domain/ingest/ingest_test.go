package ingest_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/commutewatch/riskengine/internal/domain/ingest"
	"github.com/commutewatch/riskengine/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var t0 = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func report(id string, at time.Time, mutate ...func(*model.Report)) model.Report {
	r := model.Report{
		ID:        id,
		RouteID:   "R1",
		Type:      model.TypeDelay,
		Severity:  model.SeverityMedium,
		CreatedAt: at,
		Status:    model.StatusPending,
	}
	for _, m := range mutate {
		m(&r)
	}
	return r
}

func weights(events []ingest.Event) map[string]float64 {
	out := make(map[string]float64, len(events))
	for _, e := range events {
		out[e.Report.ID] = e.Weight
	}
	return out
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	Convey("Given an ingestion filter with default weights", t, func() {
		f := ingest.New()

		Convey("When a batch mixes trusted, anonymous and dismissed reports", func() {
			events, rejected := f.Classify(ctx, []model.Report{
				report("a", t0),
				report("b", t0.Add(time.Minute), func(r *model.Report) { r.IsAnonymous = true }),
				report("c", t0.Add(2*time.Minute), func(r *model.Report) { r.Status = model.StatusDismissed }),
			})

			Convey("Then trusted reports keep full weight and anonymous ones are halved", func() {
				w := weights(events)
				So(len(events), ShouldEqual, 2)
				So(w["a"], ShouldEqual, 1.0)
				So(w["b"], ShouldEqual, 0.5)
			})

			Convey("Then dismissed reports are rejected", func() {
				So(rejected, ShouldHaveLength, 1)
				So(rejected[0].ReportID, ShouldEqual, "c")
				So(rejected[0].Reason, ShouldEqual, ingest.ReasonDismissed)
			})
		})

		Convey("When a batch contains malformed reports", func() {
			events, rejected := f.Classify(ctx, []model.Report{
				report("ok", t0),
				report("bad-sev", t0, func(r *model.Report) { r.Severity = "extreme" }),
				report("bad-geo", t0, func(r *model.Report) { r.Location = &model.GeoPoint{Lat: 95, Lng: 10} }),
				report("nan-geo", t0, func(r *model.Report) { r.Location = &model.GeoPoint{Lat: math.NaN(), Lng: 10} }),
				report("", t0),
			})

			Convey("Then they are rejected without aborting the batch", func() {
				So(events, ShouldHaveLength, 1)
				So(events[0].Report.ID, ShouldEqual, "ok")
				So(rejected, ShouldHaveLength, 4)
				for _, r := range rejected {
					So(r.Reason, ShouldEqual, ingest.ReasonMalformed)
					So(r.Err, ShouldNotBeNil)
				}
			})
		})

		Convey("When one device reports the same route three times in the window", func() {
			fp := func(r *model.Report) { r.DeviceFingerprint = "dev-1" }
			events, _ := f.Classify(ctx, []model.Report{
				report("3", t0.Add(6*time.Minute), fp),
				report("1", t0, fp),
				report("2", t0.Add(3*time.Minute), fp),
			})

			Convey("Then only the earliest carries full weight", func() {
				w := weights(events)
				So(w["1"], ShouldEqual, 1.0)
				So(w["2"], ShouldAlmostEqual, 0.1, 1e-12)
				So(w["3"], ShouldAlmostEqual, 0.1, 1e-12)
			})

			Convey("Then events are returned in timestamp order", func() {
				So(events[0].Report.ID, ShouldEqual, "1")
				So(events[2].Report.ID, ShouldEqual, "3")
			})
		})

		Convey("When the same device reports different routes", func() {
			events, _ := f.Classify(ctx, []model.Report{
				report("1", t0, func(r *model.Report) { r.DeviceFingerprint = "dev-1" }),
				report("2", t0.Add(time.Minute), func(r *model.Report) { r.DeviceFingerprint = "dev-1"; r.RouteID = "R2" }),
			})

			Convey("Then neither is a duplicate", func() {
				w := weights(events)
				So(w["1"], ShouldEqual, 1.0)
				So(w["2"], ShouldEqual, 1.0)
			})
		})

		Convey("When an anonymous duplicate is not verified", func() {
			events, _ := f.Classify(ctx, []model.Report{
				report("1", t0, func(r *model.Report) { r.DeviceFingerprint = "dev-1" }),
				report("2", t0.Add(time.Minute), func(r *model.Report) { r.DeviceFingerprint = "dev-1"; r.IsAnonymous = true }),
				report("3", t0.Add(2*time.Minute), func(r *model.Report) {
					r.DeviceFingerprint = "dev-1"
					r.IsAnonymous = true
					r.Status = model.StatusVerified
				}),
			})

			Convey("Then multipliers compound while verified reports stay trusted", func() {
				w := weights(events)
				So(w["2"], ShouldAlmostEqual, 0.05, 1e-12)
				So(w["3"], ShouldEqual, 1.0)
			})
		})

		Convey("When the input order changes", func() {
			fp := func(r *model.Report) { r.DeviceFingerprint = "dev-9" }
			in := []model.Report{report("x", t0, fp), report("y", t0, fp), report("z", t0.Add(time.Minute), fp)}
			rev := []model.Report{in[2], in[1], in[0]}
			a, _ := f.Classify(ctx, in)
			b, _ := f.Classify(ctx, rev)

			Convey("Then classification is identical", func() {
				So(a, ShouldResemble, b)
				So(weights(a)["x"], ShouldEqual, 1.0)
				So(weights(a)["y"], ShouldAlmostEqual, 0.1, 1e-12)
			})
		})
	})

	Convey("Given custom weights", t, func() {
		f := ingest.New(ingest.WithAnonymousWeight(0.25), ingest.WithDuplicateWeight(0.2), ingest.WithCooldown(time.Minute))
		fp := func(r *model.Report) { r.DeviceFingerprint = "dev-1"; r.IsAnonymous = true }
		events, _ := f.Classify(context.Background(), []model.Report{
			report("1", t0, fp),
			report("2", t0.Add(30*time.Second), fp),
			report("3", t0.Add(2*time.Minute), fp),
		})
		w := weights(events)

		So(w["1"], ShouldEqual, 0.25)
		So(w["2"], ShouldAlmostEqual, 0.05, 1e-12)
		So(w["3"], ShouldEqual, 0.25)
	})
}
