// Package publisher announces recomputed scores on Kafka.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/commutewatch/riskengine/internal/domain/model"
)

// EventType is the type header of every message.
const EventType = "score.updated"

const defaultWriteTimeout = 10 * time.Second

var (
	ErrNoBrokers = errors.New("at least one broker is required")
	ErrNoTopic   = errors.New("topic must not be empty")
)

// ScoreEvent is the message body.
type ScoreEvent struct {
	EventID    string      `json:"eventId"`
	Type       string      `json:"type"`
	OccurredAt time.Time   `json:"occurredAt"`
	Score      model.Score `json:"score"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one keyed message per score; the key is the route id
// so a route's updates stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	timeout time.Duration
	now     func() time.Time
}

// Option configures a KafkaPublisher.
type Option func(*KafkaPublisher)

// WithWriteTimeout bounds each publish.
func WithWriteTimeout(d time.Duration) Option {
	return func(p *KafkaPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// New creates a publisher for topic on brokers.
func New(brokers []string, topic string, opts ...Option) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, ErrNoBrokers
	}
	if strings.TrimSpace(topic) == "" {
		return nil, ErrNoTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newWithWriter(w, opts...), nil
}

func newWithWriter(w messageWriter, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{writer: w, timeout: defaultWriteTimeout, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish implements worker.Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, s model.Score) error {
	body, err := json.Marshal(ScoreEvent{
		EventID:    uuid.NewString(),
		Type:       EventType,
		OccurredAt: p.now().UTC(),
		Score:      s,
	})
	if err != nil {
		return fmt.Errorf("encode score event: %w", err)
	}

	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	msg := kafka.Message{
		Key:     []byte(s.RouteID),
		Value:   body,
		Headers: []kafka.Header{{Key: "type", Value: []byte(EventType)}},
	}
	if err := p.writer.WriteMessages(wctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", s.Key(), err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
