// Package errtrack forwards unexpected engine faults to Sentry.
//
// With an empty DSN the Sentry client is initialized without a transport
// target, so every capture becomes a no-op and callers never branch on it.
package errtrack

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// Options configures the Sentry client.
type Options struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// Init configures the global Sentry hub.
func Init(opts Options) error {
	rate := opts.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:         opts.DSN,
		Environment: opts.Environment,
		Release:     opts.Release,
		SampleRate:  rate,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			// reports may carry device fingerprints; never ship user data
			event.User = sentry.User{}
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	return nil
}

// Enabled reports whether events leave the process.
func Enabled() bool {
	client := sentry.CurrentHub().Client()
	return client != nil && client.Options().Dsn != ""
}

// Flush waits for buffered events to be delivered.
func Flush() { sentry.Flush(flushTimeout) }

// CaptureError records err with the given tags.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// CapturePanic records a recovered panic value together with its stack.
func CapturePanic(recovered any, stack []byte, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		scope.SetExtra("stack", string(stack))
		sentry.CaptureException(fmt.Errorf("panic: %v", recovered))
	})
}
