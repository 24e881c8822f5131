package service_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	service "github.com/commutewatch/riskengine/internal/app"
	"github.com/commutewatch/riskengine/internal/adapters/repository"
	"github.com/commutewatch/riskengine/internal/config"
	"github.com/commutewatch/riskengine/internal/domain/model"
	"github.com/commutewatch/riskengine/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func routes() []model.Route {
	return []model.Route{
		{ID: "R1", SaccoID: "S1", SaccoName: "Super Metro", TimeZone: "Africa/Nairobi"},
		{ID: "R2", SaccoID: "S2", SaccoName: "Embassava", TimeZone: "Africa/Nairobi"},
	}
}

// 12:00 UTC is 15:00 in Nairobi, the afternoon bucket.
func report(id, route string, typ model.ReportType, sev model.Severity, status model.Status) model.Report {
	return model.Report{
		ID:                id,
		RouteID:           route,
		Type:              typ,
		Severity:          sev,
		Status:            status,
		DeviceFingerprint: "fp-" + id,
		CreatedAt:         now,
	}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func passes(svc *service.Service) func() bool {
	return func() bool { return svc.SchedulerStats().Passes >= 1 }
}

type failingReports struct{ calls atomic.Int64 }

func (f *failingReports) FindReports(context.Context, repository.ReportQuery) ([]model.Report, error) {
	f.calls.Add(1)
	return nil, repository.Transient("find reports", errors.New("connection reset"))
}

type countingReports struct {
	mu    sync.Mutex
	inner repository.ReportStore
	calls int
}

func (c *countingReports) FindReports(ctx context.Context, q repository.ReportQuery) ([]model.Report, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.inner.FindReports(ctx, q)
}

func (c *countingReports) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// gatedReports holds its first lookup until release is closed.
type gatedReports struct {
	inner   repository.ReportStore
	calls   atomic.Int64
	entered chan struct{}
	release chan struct{}
}

func (g *gatedReports) FindReports(ctx context.Context, q repository.ReportQuery) ([]model.Report, error) {
	if g.calls.Add(1) == 1 {
		close(g.entered)
		<-g.release
	}
	return g.inner.FindReports(ctx, q)
}

func TestServiceLifecycle(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New(service.WithInterval(time.Hour))
		defer svc.Stop()

		Convey("Then it is stopped until started", func() {
			So(svc.GetStats()["started"], ShouldEqual, false)
			So(svc.SchedulerState(), ShouldEqual, service.StateStopped)
			So(svc.Trigger(context.Background()), ShouldEqual, service.ErrNotStarted)
			So(svc.RunPass(context.Background()), ShouldEqual, service.ErrNotStarted)
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.Start(context.Background()), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
			So(svc.SchedulerState(), ShouldEqual, service.StateRunning)
			So(waitFor(passes(svc)), ShouldBeTrue)

			svc.Stop()

			Convey("Then the scheduler is stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(svc.SchedulerState(), ShouldEqual, service.StateStopped)
			})
		})
	})
}

func TestServicePass(t *testing.T) {
	ctx := context.Background()

	Convey("Given reports on two routes and a stale score on a third bucket", t, func() {
		reports := repository.NewMemoryReportStore(
			repository.WithRoutes(routes()...),
			repository.WithReports(
				report("a", "R1", model.TypeSafety, model.SeverityHigh, model.StatusVerified),
				report("b", "R1", model.TypeDelay, model.SeverityMedium, model.StatusVerified),
				report("c", "R2", model.TypeCrowding, model.SeverityCritical, model.StatusDismissed),
				report("d", "R2", "teleport", model.SeverityLow, model.StatusPending),
			),
		)
		scores := repository.NewMemoryScoreStore()
		stale := model.Score{RouteID: "R2", TimeBucket: model.BucketNight, Reliability: 1, Safety: 1, Punctuality: 1, Comfort: 1, Overall: 1, TotalReports: 9}
		So(scores.Upsert(ctx, stale), ShouldBeNil)

		svc := service.New(
			service.WithClock(clock),
			service.WithInterval(time.Hour),
			service.WithWorkerCount(2),
			service.WithReportStore(reports),
			service.WithRouteStore(reports),
			service.WithScoreStore(scores),
			service.WithMarkScored(true),
		)
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()
		So(waitFor(passes(svc)), ShouldBeTrue)

		Convey("When the first pass completes", func() {
			r1, err := svc.Scores(ctx, "R1")
			So(err, ShouldBeNil)

			Convey("Then eligible reports score their local-time bucket", func() {
				So(r1, ShouldHaveLength, 1)
				So(r1[0].TimeBucket, ShouldEqual, model.BucketAfternoon)
				So(r1[0].TotalReports, ShouldEqual, 2)
				So(r1[0].Safety, ShouldAlmostEqual, 4.0, 1e-9)
				So(r1[0].Punctuality, ShouldAlmostEqual, 4.5, 1e-9)
				So(r1[0].Reliability, ShouldAlmostEqual, 4.5, 1e-9)
				So(r1[0].Comfort, ShouldAlmostEqual, 5.0, 1e-9)
			})

			Convey("Then a stored bucket without events returns to neutral", func() {
				r2, err := svc.Scores(ctx, "R2")
				So(err, ShouldBeNil)
				So(r2, ShouldHaveLength, 1)
				So(r2[0].TimeBucket, ShouldEqual, model.BucketNight)
				So(r2[0].TotalReports, ShouldEqual, 0)
				So(r2[0].Overall, ShouldAlmostEqual, 3.0, 1e-9)
			})

			Convey("Then the summary counts rejections", func() {
				sum := svc.GetStats()["lastPass"].(service.PassSummary)
				So(sum.Reports, ShouldEqual, 4)
				So(sum.Eligible, ShouldEqual, 2)
				So(sum.Rejected, ShouldEqual, 2)
				So(sum.Buckets, ShouldEqual, 2)
				So(sum.Failed, ShouldEqual, 0)
			})

			Convey("Then eligible reports are marked as scored", func() {
				out, _ := reports.FindReports(ctx, repository.ReportQuery{RouteID: "R1"})
				So(out[0].LastScoredAt, ShouldNotBeNil)
				So(out[0].LastScoredAt.Equal(now), ShouldBeTrue)
			})

			Convey("Then unknown routes are not found", func() {
				_, err := svc.Scores(ctx, "R404")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a new report arrives and a recalculation is triggered", func() {
			So(reports.InsertReports(ctx, []model.Report{
				report("e", "R1", model.TypeBreakdown, model.SeverityCritical, model.StatusVerified),
			}), ShouldBeNil)
			So(svc.Trigger(ctx), ShouldBeNil)
			So(waitFor(func() bool { return svc.SchedulerStats().Passes >= 2 }), ShouldBeTrue)

			Convey("Then the bucket is rebuilt from all of its events", func() {
				r1, err := svc.Scores(ctx, "R1")
				So(err, ShouldBeNil)
				So(r1[0].TotalReports, ShouldEqual, 3)
				So(r1[0].Safety, ShouldAlmostEqual, 2.0, 1e-9)
				So(r1[0].Reliability, ShouldAlmostEqual, 2.5, 1e-9)
			})
		})
	})
}

type movingClock struct{ at atomic.Int64 }

func (c *movingClock) set(t time.Time) { c.at.Store(t.UnixNano()) }
func (c *movingClock) now() time.Time  { return time.Unix(0, c.at.Load()).UTC() }

func afternoonSafety(ctx context.Context, svc *service.Service) (float64, int) {
	got, err := svc.Scores(ctx, "R1")
	So(err, ShouldBeNil)
	for _, sc := range got {
		if sc.TimeBucket == model.BucketAfternoon {
			return sc.Safety, sc.TotalReports
		}
	}
	return 0, 0
}

func TestServiceAgingIncident(t *testing.T) {
	ctx := context.Background()

	for _, lookback := range []time.Duration{0, 90 * 24 * time.Hour} {
		Convey("Given one verified critical safety report and lookback "+lookback.String(), t, func() {
			reports := repository.NewMemoryReportStore(
				repository.WithRoutes(routes()...),
				repository.WithReports(report("a", "R1", model.TypeSafety, model.SeverityCritical, model.StatusVerified)),
			)
			c := &movingClock{}
			c.set(now.Add(89 * 24 * time.Hour))
			svc := service.New(
				service.WithClock(c.now),
				service.WithInterval(time.Hour),
				service.WithLookback(lookback),
				service.WithReportStore(reports),
				service.WithRouteStore(reports),
			)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()
			So(waitFor(passes(svc)), ShouldBeTrue)

			younger, total := afternoonSafety(ctx, svc)
			So(total, ShouldEqual, 1)
			So(younger, ShouldBeLessThan, model.MaxScore)

			Convey("When the report ages past the lookback horizon", func() {
				c.set(now.Add(91 * 24 * time.Hour))
				So(svc.RunPass(ctx), ShouldBeNil)
				older, total := afternoonSafety(ctx, svc)

				Convey("Then the safety score keeps improving without resetting", func() {
					So(total, ShouldEqual, 1)
					So(older, ShouldBeGreaterThanOrEqualTo, younger)
					So(older, ShouldBeLessThan, model.MaxScore)
				})
			})
		})
	}
}

func TestServiceTransientFailure(t *testing.T) {
	Convey("Given a report store that always fails", t, func() {
		failing := &failingReports{}
		mem := repository.NewMemoryReportStore(repository.WithRoutes(routes()...))
		svc := service.New(
			service.WithInterval(10*time.Millisecond),
			service.WithReportStore(failing),
			service.WithRouteStore(mem),
		)
		So(svc.Start(context.Background()), ShouldBeNil)
		defer svc.Stop()

		Convey("When several passes have failed", func() {
			So(waitFor(func() bool { return svc.SchedulerStats().Failures >= 2 }), ShouldBeTrue)

			Convey("Then the scheduler keeps running and records the error", func() {
				st := svc.SchedulerStats()
				So(svc.SchedulerState(), ShouldEqual, service.StateRunning)
				So(st.LastError, ShouldContainSubstring, "connection reset")
				So(st.LastSuccessAt.IsZero(), ShouldBeTrue)
				So(failing.calls.Load(), ShouldBeGreaterThanOrEqualTo, 2)
			})
		})
	})
}

func TestServiceSnapshot(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service with a counting report store", t, func() {
		current := now
		var mu sync.Mutex
		tick := func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return current
		}
		mem := repository.NewMemoryReportStore(
			repository.WithRoutes(routes()...),
			repository.WithReports(
				report("a", "R1", model.TypeSafety, model.SeverityCritical, model.StatusPending),
				report("b", "R1", model.TypeDelay, model.SeverityHigh, model.StatusResolved),
			),
		)
		counting := &countingReports{inner: mem}
		svc := service.New(
			service.WithClock(tick),
			service.WithAnalyticsTTL(time.Minute),
			service.WithReportStore(counting),
			service.WithRouteStore(mem),
		)

		Convey("When the same period is requested twice", func() {
			first, err := svc.Snapshot(ctx, types.Period7d)
			So(err, ShouldBeNil)
			second, err := svc.Snapshot(ctx, types.Period7d)
			So(err, ShouldBeNil)

			Convey("Then the second answer comes from cache", func() {
				So(counting.count(), ShouldEqual, 1)
				So(second.GeneratedAt.Equal(first.GeneratedAt), ShouldBeTrue)
				So(first.Period, ShouldEqual, types.Period7d)
				So(first.RouteRiskAnalysis, ShouldHaveLength, 1)
				So(first.RouteRiskAnalysis[0].RiskScore, ShouldAlmostEqual, 2.5, 1e-9)
			})

			Convey("Then an expired entry is recomputed", func() {
				mu.Lock()
				current = current.Add(2 * time.Minute)
				mu.Unlock()
				_, err := svc.Snapshot(ctx, types.Period7d)
				So(err, ShouldBeNil)
				So(counting.count(), ShouldEqual, 2)
			})

			Convey("Then an invalidated cache is recomputed", func() {
				svc.InvalidateSnapshots()
				_, err := svc.Snapshot(ctx, types.Period7d)
				So(err, ShouldBeNil)
				So(counting.count(), ShouldEqual, 2)
			})
		})

		Convey("When the cache is invalidated while a snapshot is computed", func() {
			gated := &gatedReports{inner: mem, entered: make(chan struct{}), release: make(chan struct{})}
			svc := service.New(
				service.WithClock(clock),
				service.WithAnalyticsTTL(time.Minute),
				service.WithReportStore(gated),
				service.WithRouteStore(mem),
			)
			done := make(chan error, 1)
			go func() {
				_, err := svc.Snapshot(ctx, types.Period7d)
				done <- err
			}()
			<-gated.entered
			svc.InvalidateSnapshots()
			close(gated.release)
			So(<-done, ShouldBeNil)

			_, err := svc.Snapshot(ctx, types.Period7d)
			So(err, ShouldBeNil)

			Convey("Then the computation that straddled it is not cached", func() {
				So(gated.calls.Load(), ShouldEqual, int64(2))
			})
		})

		Convey("When the period is empty or unknown", func() {
			def, err := svc.Snapshot(ctx, "")
			So(err, ShouldBeNil)
			_, bad := svc.Snapshot(ctx, "14d")

			Convey("Then empty selects the default and unknown fails", func() {
				So(def.Period, ShouldEqual, types.DefaultPeriod)
				So(errors.Is(bad, types.ErrInvalidPeriod), ShouldBeTrue)
			})
		})
	})
}

func TestOptionsFromConfig(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		cfg := config.New()
		cfg.WorkerCount = 3
		svc := service.New(service.OptionsFromConfig(cfg, nil)...)

		Convey("Then the service reflects it", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 3)
			So(stats["interval"], ShouldEqual, cfg.ScoreInterval.String())
			So(stats["lookback"], ShouldEqual, cfg.ScoreLookback.String())
		})
	})
}
