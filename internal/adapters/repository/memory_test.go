package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)

func sampleReports() []model.Report {
	return []model.Report{
		{ID: "a", RouteID: "R1", Type: model.TypeDelay, Severity: model.SeverityLow, CreatedAt: base, Status: model.StatusPending},
		{ID: "b", RouteID: "R2", Type: model.TypeSafety, Severity: model.SeverityHigh, CreatedAt: base.Add(time.Hour), Status: model.StatusVerified},
		{ID: "c", RouteID: "R1", Type: model.TypeCrowding, Severity: model.SeverityMedium, CreatedAt: base.Add(2 * time.Hour), Status: model.StatusDismissed},
	}
}

func TestMemoryReportStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a report store with routes and reports", t, func() {
		s := repository.NewMemoryReportStore(
			repository.WithRoutes(
				model.Route{ID: "R1", SaccoID: "S1"},
				model.Route{ID: "R2", SaccoID: "S2"},
			),
			repository.WithReports(sampleReports()...),
		)

		Convey("When querying without filters", func() {
			out, err := s.FindReports(ctx, repository.ReportQuery{})

			Convey("Then every report is returned in insertion order", func() {
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 3)
				So(out[0].ID, ShouldEqual, "a")
			})
		})

		Convey("When filtering by route, status, sacco and range", func() {
			byRoute, _ := s.FindReports(ctx, repository.ReportQuery{RouteID: "R1"})
			byStatus, _ := s.FindReports(ctx, repository.ReportQuery{Status: model.StatusVerified})
			bySacco, _ := s.FindReports(ctx, repository.ReportQuery{SaccoID: "S2"})
			byRange, _ := s.FindReports(ctx, repository.ReportQuery{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)})

			Convey("Then each filter narrows the result", func() {
				So(byRoute, ShouldHaveLength, 2)
				So(byStatus, ShouldHaveLength, 1)
				So(byStatus[0].ID, ShouldEqual, "b")
				So(bySacco, ShouldHaveLength, 1)
				So(bySacco[0].RouteID, ShouldEqual, "R2")
				So(byRange, ShouldHaveLength, 2)
			})
		})

		Convey("When marking reports as scored", func() {
			at := base.Add(24 * time.Hour)
			So(s.MarkScored(ctx, []string{"a", "missing"}, at), ShouldBeNil)
			out, _ := s.FindReports(ctx, repository.ReportQuery{RouteID: "R1"})

			Convey("Then only the known report is stamped", func() {
				So(out[0].LastScoredAt, ShouldNotBeNil)
				So(*out[0].LastScoredAt, ShouldEqual, at)
				So(out[1].LastScoredAt, ShouldBeNil)
			})
		})

		Convey("When looking up routes", func() {
			r, err := s.Route(ctx, "R2")
			_, missing := s.Route(ctx, "R9")
			all, _ := s.Routes(ctx)

			Convey("Then known routes resolve and unknown ones fail", func() {
				So(err, ShouldBeNil)
				So(r.SaccoID, ShouldEqual, "S2")
				So(errors.Is(missing, repository.ErrNotFound), ShouldBeTrue)
				So(all, ShouldHaveLength, 2)
				So(all[0].ID, ShouldEqual, "R1")
			})
		})

		Convey("When the context is cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := s.FindReports(cctx, repository.ReportQuery{})

			Convey("Then the error is transient", func() {
				So(errors.Is(err, repository.ErrTransient), ShouldBeTrue)
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})
}

func TestMemoryScoreStore(t *testing.T) {
	ctx := context.Background()

	Convey("Given a score store", t, func() {
		s := repository.NewMemoryScoreStore()

		Convey("When scores are upserted for several buckets", func() {
			for _, b := range []model.TimeBucket{model.BucketNight, model.BucketMorning, model.BucketEvening} {
				So(s.Upsert(ctx, model.Score{RouteID: "R1", TimeBucket: b, Overall: 3}), ShouldBeNil)
			}
			So(s.Upsert(ctx, model.Score{RouteID: "R0", TimeBucket: model.BucketNight, Overall: 3}), ShouldBeNil)

			Convey("Then route scores come back in day order", func() {
				out, err := s.Scores(ctx, "R1")
				So(err, ShouldBeNil)
				So(out, ShouldHaveLength, 3)
				So(out[0].TimeBucket, ShouldEqual, model.BucketMorning)
				So(out[2].TimeBucket, ShouldEqual, model.BucketNight)
			})

			Convey("Then keys are sorted by route and bucket", func() {
				keys, err := s.Keys(ctx)
				So(err, ShouldBeNil)
				So(keys, ShouldHaveLength, 4)
				So(keys[0].RouteID, ShouldEqual, "R0")
			})
		})

		Convey("When the same bucket is written twice", func() {
			So(s.Upsert(ctx, model.Score{RouteID: "R1", TimeBucket: model.BucketMorning, TotalReports: 9, Safety: 1}), ShouldBeNil)
			So(s.Upsert(ctx, model.Score{RouteID: "R1", TimeBucket: model.BucketMorning, TotalReports: 2}), ShouldBeNil)
			out, _ := s.Scores(ctx, "R1")

			Convey("Then the whole record is replaced", func() {
				So(out, ShouldHaveLength, 1)
				So(out[0].TotalReports, ShouldEqual, 2)
				So(out[0].Safety, ShouldEqual, 0)
				So(s.Count(), ShouldEqual, 1)
			})
		})

		Convey("When a route is unknown", func() {
			out, err := s.Scores(ctx, "nope")

			Convey("Then the result is empty", func() {
				So(err, ShouldBeNil)
				So(out, ShouldBeEmpty)
			})
		})
	})
}
