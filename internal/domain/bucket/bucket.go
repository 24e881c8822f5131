// Package bucket maps report timestamps onto local time-of-day buckets.
package bucket

import (
	"sync"
	"time"
	_ "time/tzdata" // zone database for minimal containers

	"github.com/commutewatch/riskengine/internal/domain/model"
)

// DefaultZone is used when neither the route nor the caller names a zone.
const DefaultZone = "Africa/Nairobi"

// Bucketer resolves time buckets. The result depends only on the timestamp
// and zone, never on the current time.
type Bucketer struct {
	fallback *time.Location

	mu    sync.RWMutex
	zones map[string]*time.Location
}

// Option configures a Bucketer.
type Option func(*Bucketer)

// WithDefaultZone sets the fallback zone. An unknown name keeps the previous one.
func WithDefaultZone(name string) Option {
	return func(b *Bucketer) {
		if loc, err := time.LoadLocation(name); err == nil && name != "" {
			b.fallback = loc
		}
	}
}

// New creates a Bucketer.
func New(opts ...Option) *Bucketer {
	b := &Bucketer{zones: make(map[string]*time.Location)}
	if loc, err := time.LoadLocation(DefaultZone); err == nil {
		b.fallback = loc
	} else {
		b.fallback = time.UTC
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BucketOf returns the bucket of ts in the given zone.
// Hours [05,11) morning, [11,17) afternoon, [17,22) evening, otherwise night.
func (b *Bucketer) BucketOf(ts time.Time, zone string) model.TimeBucket {
	return ForHour(b.LocalTime(ts, zone).Hour())
}

// ForHour maps a local hour of day to its bucket.
func ForHour(h int) model.TimeBucket {
	switch {
	case h >= 5 && h < 11:
		return model.BucketMorning
	case h >= 11 && h < 17:
		return model.BucketAfternoon
	case h >= 17 && h < 22:
		return model.BucketEvening
	default:
		return model.BucketNight
	}
}

// LocalTime converts ts into zone, falling back to the default zone when zone
// is empty or unknown.
func (b *Bucketer) LocalTime(ts time.Time, zone string) time.Time {
	return ts.In(b.location(zone))
}

func (b *Bucketer) location(zone string) *time.Location {
	if zone == "" {
		return b.fallback
	}
	b.mu.RLock()
	loc, ok := b.zones[zone]
	b.mu.RUnlock()
	if ok {
		return loc
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		loc = b.fallback
	}
	b.mu.Lock()
	b.zones[zone] = loc
	b.mu.Unlock()
	return loc
}
