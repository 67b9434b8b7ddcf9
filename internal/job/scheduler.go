// Package job drives periodic refresh cycles for the dashboard and chart
// views.
package job

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
)

// State is the observable scheduler state.
type State int

const (
	StateIdle State = iota
	StateScheduled
	StateFetching
)

func (s State) String() string {
	switch s {
	case StateScheduled:
		return "scheduled"
	case StateFetching:
		return "fetching"
	default:
		return "idle"
	}
}

// FetchFunc performs one cycle off the loop. The returned function, if
// any, is run on the loop to publish the result.
type FetchFunc func(ctx context.Context) (apply func())

// Options configures a Scheduler.
type Options struct {
	Name        string
	Interval    time.Duration
	MinInterval time.Duration
	BusyRetry   time.Duration
}

const (
	defaultMinInterval = time.Second
	defaultBusyRetry   = time.Second
)

// Scheduler runs at most one fetch at a time, either on demand or every
// Interval while enabled. The next cycle is armed when the previous one
// completes, so a slow fetch never overlaps the next.
//
// Methods are safe to call from any goroutine. Timer state is owned by the
// loop; flags are flipped immediately by the caller so a disable takes
// effect before any queued timer callback runs.
type Scheduler struct {
	loop  *Loop
	ctx   context.Context
	fetch FetchFunc
	name  string

	minInterval time.Duration
	busyRetry   time.Duration

	enabled   atomic.Bool
	inFlight  atomic.Bool
	closed    atomic.Bool
	scheduled atomic.Bool
	interval  atomic.Int64

	// loop-owned
	timer *Timer
	gen   uint64
}

// NewScheduler creates a disabled scheduler. ctx is passed to every fetch
// and is never canceled by Disable or Close.
func NewScheduler(ctx context.Context, loop *Loop, opts Options, fetch FetchFunc) *Scheduler {
	if opts.MinInterval <= 0 {
		opts.MinInterval = defaultMinInterval
	}
	if opts.BusyRetry <= 0 {
		opts.BusyRetry = defaultBusyRetry
	}
	s := &Scheduler{
		loop:        loop,
		ctx:         ctx,
		fetch:       fetch,
		name:        opts.Name,
		minInterval: opts.MinInterval,
		busyRetry:   opts.BusyRetry,
	}
	s.interval.Store(int64(wholeSeconds(opts.Interval)))
	return s
}

func (s *Scheduler) Enabled() bool  { return s.enabled.Load() }
func (s *Scheduler) InFlight() bool { return s.inFlight.Load() }

func (s *Scheduler) Interval() time.Duration { return time.Duration(s.interval.Load()) }

func (s *Scheduler) State() State {
	switch {
	case s.inFlight.Load():
		return StateFetching
	case s.scheduled.Load():
		return StateScheduled
	default:
		return StateIdle
	}
}

// SetInterval changes the period used the next time a timer is armed. A
// timer that is already pending keeps its original delay. Intervals are
// kept in whole seconds.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.interval.Store(int64(wholeSeconds(d)))
}

// Enable starts periodic cycles. The first one fires after the interval.
func (s *Scheduler) Enable() {
	if s.closed.Load() || !s.enabled.CompareAndSwap(false, true) {
		return
	}
	log.Debugf("scheduler %s enabled every %s", s.name, s.effectiveInterval())
	s.loop.Post(func() {
		if !s.enabled.Load() || s.closed.Load() {
			return
		}
		// A running fetch arms the next cycle itself on completion.
		if s.timer == nil && !s.inFlight.Load() {
			s.arm(s.effectiveInterval())
		}
	})
}

// Disable stops periodic cycles. A fetch already running finishes and its
// result is applied, but no further cycle is armed.
func (s *Scheduler) Disable() {
	if !s.enabled.CompareAndSwap(true, false) {
		return
	}
	log.Debugf("scheduler %s disabled", s.name)
	s.loop.Post(func() {
		if s.enabled.Load() {
			return
		}
		s.cancelTimer()
	})
}

// Close disables the scheduler for good. The result of a fetch still
// running is discarded.
func (s *Scheduler) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.enabled.Store(false)
	s.loop.Post(s.cancelTimer)
}

// Trigger starts a one-off fetch now. It reports false when a fetch is
// already running or the scheduler is closed. A pending timer is left in
// place.
func (s *Scheduler) Trigger() bool {
	if s.closed.Load() {
		return false
	}
	return s.start()
}

func (s *Scheduler) effectiveInterval() time.Duration {
	d := s.Interval()
	if d < s.minInterval {
		return s.minInterval
	}
	return d
}

// wholeSeconds drops the sub-second part of an interval, keeping at least
// one second. Non-positive values are left for effectiveInterval to clamp.
func wholeSeconds(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return cron.Every(d).Delay
}

func (s *Scheduler) arm(d time.Duration) {
	s.cancelTimer()
	gen := s.gen
	s.timer = s.loop.AfterFunc(d, func() { s.fire(gen) })
	s.scheduled.Store(true)
}

func (s *Scheduler) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.scheduled.Store(false)
}

func (s *Scheduler) fire(gen uint64) {
	if gen != s.gen {
		return
	}
	s.timer = nil
	s.scheduled.Store(false)
	if !s.enabled.Load() || s.closed.Load() {
		return
	}
	if s.inFlight.Load() {
		s.arm(s.busyRetry)
		return
	}
	s.start()
}

func (s *Scheduler) start() bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		apply := s.fetch(s.ctx)
		if !s.loop.Post(func() { s.complete(apply) }) {
			s.inFlight.Store(false)
		}
	}()
	return true
}

func (s *Scheduler) complete(apply func()) {
	if apply != nil && !s.closed.Load() {
		apply()
	}
	s.inFlight.Store(false)
	if s.enabled.Load() && !s.closed.Load() && s.timer == nil {
		s.arm(s.effectiveInterval())
	}
}
