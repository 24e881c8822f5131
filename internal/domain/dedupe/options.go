package dedupe

import "time"

// Option configures a cooldown tracker.
type Option func(*cooldownTracker)

// WithWindow sets the cooldown window. Non-positive values are ignored.
func WithWindow(d time.Duration) Option {
	return func(t *cooldownTracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithMaxSize bounds the number of tracked keys; the oldest anchor is evicted
// first. maxSize <= 0 disables the bound.
func WithMaxSize(maxSize int) Option {
	return func(t *cooldownTracker) {
		t.maxSize = maxSize
	}
}
