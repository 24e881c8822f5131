package ingest

import (
	"time"

	"github.com/commutewatch/riskengine/pkg/logger"
)

// Option configures a Filter.
type Option func(*Filter)

// WithAnonymousWeight sets the multiplier for anonymous reports.
func WithAnonymousWeight(w float64) Option {
	return func(f *Filter) {
		if w > 0 && w <= 1 {
			f.anonymousWeight = w
		}
	}
}

// WithDuplicateWeight sets the multiplier for in-window duplicates.
func WithDuplicateWeight(w float64) Option {
	return func(f *Filter) {
		if w > 0 && w <= 1 {
			f.duplicateWeight = w
		}
	}
}

// WithCooldown sets the duplicate detection window.
func WithCooldown(d time.Duration) Option {
	return func(f *Filter) {
		if d > 0 {
			f.cooldown = d
		}
	}
}

// WithMaxTracked bounds the number of device/route windows tracked per call.
func WithMaxTracked(n int) Option {
	return func(f *Filter) {
		f.maxTracked = n
	}
}

// WithLogger sets the logger used for rejected reports.
func WithLogger(l logger.Logger) Option {
	return func(f *Filter) {
		if l != nil {
			f.log = l
		}
	}
}
