package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/commutewatch/riskengine/pkg/errtrack"
	"github.com/commutewatch/riskengine/pkg/logger"
	"github.com/commutewatch/riskengine/pkg/metrics"
)

// State is the scheduler lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateRunning
)

func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "stopped"
}

// PassFunc runs one aggregation pass.
type PassFunc func(ctx context.Context) error

// SchedulerStats summarises pass history.
type SchedulerStats struct {
	State         string    `json:"state"`
	Passes        int64     `json:"passes"`
	Failures      int64     `json:"failures"`
	LastPassAt    time.Time `json:"lastPassAt,omitempty"`
	LastSuccessAt time.Time `json:"lastSuccessAt,omitempty"`
	LastError     string    `json:"lastError,omitempty"`
}

// Scheduler runs passes sequentially: once on Start, then every interval and
// on Trigger. A failing or panicking pass never stops it.
type Scheduler struct {
	pass        PassFunc
	interval    time.Duration
	passTimeout time.Duration
	log         logger.Logger
	now         func() time.Time

	mu      sync.Mutex
	state   State
	stopCh  chan struct{}
	done    chan struct{}
	trigger chan struct{}
	stats   SchedulerStats
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerInterval sets the time between passes.
func WithSchedulerInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSchedulerPassTimeout bounds a single pass, including its store writes.
func WithSchedulerPassTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.passTimeout = d
		}
	}
}

// WithSchedulerLogger sets the scheduler's logger.
func WithSchedulerLogger(l logger.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// NewScheduler creates a stopped scheduler around pass.
func NewScheduler(pass PassFunc, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		pass:        pass,
		interval:    15 * time.Minute,
		passTimeout: 5 * time.Minute,
		log:         logger.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one pass immediately in the background, then one per interval.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return ErrAlreadyRunning
	}
	s.state = StateRunning
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.trigger = make(chan struct{}, 1)
	metrics.SetSchedulerRunning(true)

	go s.loop(ctx, s.stopCh, s.done, s.trigger)
	s.log.Info(ctx, "scheduler started", logger.Duration("interval", s.interval))
	return nil
}

// Stop prevents future passes and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	stopCh, done := s.stopCh, s.done
	select {
	case <-stopCh:
	default:
		close(stopCh)
	}
	s.mu.Unlock()

	<-done
	s.log.Info(context.Background(), "scheduler stopped")
}

// Trigger requests an extra pass. Requests made while one is already pending
// are merged. It returns false when the scheduler is stopped.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
	default:
	}
	return true
}

// State returns the lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a copy of the pass history.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.State = s.state.String()
	return st
}

func (s *Scheduler) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}, trigger <-chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		metrics.SetSchedulerRunning(false)
		close(done)
	}()

	_ = s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		// Stop wins over pending ticks and triggers.
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.runPass(ctx)
		case <-trigger:
			_ = s.runPass(ctx)
		}
	}
}

// runPass runs one pass under a context detached from parent cancellation and
// bounded by the pass timeout, so shutdown never interrupts dispatched writes.
func (s *Scheduler) runPass(parent context.Context) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.passTimeout)
	defer cancel()
	start := s.now()

	defer func() {
		outcome := metrics.OutcomeSuccess
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = fmt.Errorf("%w: %v", ErrPassPanicked, r)
			outcome = metrics.OutcomePanic
			s.log.Error(ctx, "aggregation pass panicked",
				logger.Any("panic", r), logger.String("stack", string(stack)))
			errtrack.CapturePanic(r, stack, map[string]string{"component": "scheduler"})
		} else if err != nil {
			outcome = metrics.OutcomeFailure
			s.log.Error(ctx, "aggregation pass failed, retrying next tick", logger.Error(err))
			errtrack.CaptureError(err, map[string]string{"component": "scheduler"})
		}
		metrics.RecordPass(outcome, float64(s.now().Sub(start).Milliseconds()))
		s.record(start, err)
	}()

	return s.pass(ctx)
}

func (s *Scheduler) record(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Passes++
	s.stats.LastPassAt = at
	if err != nil {
		s.stats.Failures++
		s.stats.LastError = err.Error()
		return
	}
	s.stats.LastSuccessAt = at
	s.stats.LastError = ""
}
