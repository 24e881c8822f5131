package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/commutewatch/riskengine/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func job(route string) Job {
	return Job{Ctx: context.Background(), Key: model.BucketKey{RouteID: route, Bucket: model.BucketMorning}}
}

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with capacity 2", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))

		Convey("When jobs are enqueued and dequeued", func() {
			So(q.Enqueue(ctx, job("R1")), ShouldBeNil)
			So(q.Enqueue(ctx, job("R2")), ShouldBeNil)
			So(q.Len(ctx), ShouldEqual, 2)
			ch := q.Dequeue(ctx)
			first := <-ch

			Convey("Then they come out in order", func() {
				So(first.Key.RouteID, ShouldEqual, "R1")
				So((<-ch).Key.RouteID, ShouldEqual, "R2")
				So(q.Len(ctx), ShouldEqual, 0)
			})
		})

		Convey("When the queue is full", func() {
			So(q.Enqueue(ctx, job("R1")), ShouldBeNil)
			So(q.Enqueue(ctx, job("R2")), ShouldBeNil)
			tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
			defer cancel()
			err := q.Enqueue(tctx, job("R3"))

			Convey("Then enqueue blocks until the context expires", func() {
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})

		Convey("When the queue is full and a consumer drains it", func() {
			So(q.Enqueue(ctx, job("R1")), ShouldBeNil)
			So(q.Enqueue(ctx, job("R2")), ShouldBeNil)
			go func() {
				time.Sleep(10 * time.Millisecond)
				<-q.Dequeue(ctx)
			}()

			Convey("Then the blocked enqueue succeeds", func() {
				So(q.Enqueue(ctx, job("R3")), ShouldBeNil)
			})
		})

		Convey("When the queue is closed", func() {
			So(q.Enqueue(ctx, job("R1")), ShouldBeNil)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then new jobs are refused and queued ones still drain", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(errors.Is(q.Enqueue(ctx, job("R2")), ErrQueueClosed), ShouldBeTrue)
				j, ok := <-q.Dequeue(ctx)
				So(ok, ShouldBeTrue)
				So(j.Key.RouteID, ShouldEqual, "R1")
				_, ok = <-q.Dequeue(ctx)
				So(ok, ShouldBeFalse)
			})
		})
	})

	Convey("Given a job with a completion callback", t, func() {
		var got error
		called := 0
		j := Job{Done: func(_ model.Score, err error) { called++; got = err }}
		j.Finish(model.Score{}, errors.New("boom"))

		So(called, ShouldEqual, 1)
		So(got, ShouldNotBeNil)
		(&Job{}).Finish(model.Score{}, nil)
	})
}
