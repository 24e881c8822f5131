package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/commutewatch/riskengine/internal/domain/model"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestPublish(t *testing.T) {
	Convey("Given a publisher over a capturing writer", t, func() {
		w := &captureWriter{}
		at := time.Date(2026, 3, 2, 7, 0, 0, 0, time.UTC)
		p := newWithWriter(w, WithWriteTimeout(time.Second))
		p.now = func() time.Time { return at }
		score := model.Score{RouteID: "R1", TimeBucket: model.BucketEvening, Overall: 4.2, TotalReports: 3}

		Convey("When a score is published", func() {
			So(p.Publish(context.Background(), score), ShouldBeNil)

			Convey("Then one message keyed by route carries the event", func() {
				So(w.msgs, ShouldHaveLength, 1)
				So(string(w.msgs[0].Key), ShouldEqual, "R1")
				So(string(w.msgs[0].Headers[0].Value), ShouldEqual, EventType)

				var ev ScoreEvent
				So(json.Unmarshal(w.msgs[0].Value, &ev), ShouldBeNil)
				So(ev.Type, ShouldEqual, EventType)
				So(ev.OccurredAt, ShouldEqual, at)
				So(ev.Score.TimeBucket, ShouldEqual, model.BucketEvening)
				_, err := uuid.Parse(ev.EventID)
				So(err, ShouldBeNil)
			})
		})

		Convey("When the writer fails", func() {
			w.err = errors.New("leader not available")
			err := p.Publish(context.Background(), score)

			Convey("Then the error names the bucket", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "R1/evening")
			})
		})

		Convey("When closed", func() {
			So(p.Close(), ShouldBeNil)
			So(w.closed, ShouldBeTrue)
		})
	})

	Convey("Given invalid settings", t, func() {
		_, err := New(nil, "scores")
		So(errors.Is(err, ErrNoBrokers), ShouldBeTrue)
		_, err = New([]string{"localhost:9092"}, " ")
		So(errors.Is(err, ErrNoTopic), ShouldBeTrue)
		p, err := New([]string{"localhost:9092"}, "scores")
		So(err, ShouldBeNil)
		So(p.Close(), ShouldBeNil)
	})
}
