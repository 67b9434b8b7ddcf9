package job

import (
	"sync"
	"sync/atomic"
	"time"
)

// Clock abstracts wall time so schedulers can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Stopper
}

// Stopper cancels a pending clock callback.
type Stopper interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

// RealClock is the wall clock.
var RealClock Clock = realClock{}

// Loop runs posted functions one at a time on a single goroutine. Timer
// callbacks and fetch results are delivered through it so that scheduler
// state is only ever touched from one place.
type Loop struct {
	clock Clock

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// NewLoop starts a loop. A nil clock means RealClock.
func NewLoop(clock Clock) *Loop {
	if clock == nil {
		clock = RealClock
	}
	l := &Loop{
		clock: clock,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) Clock() Clock { return l.clock }

// Post queues fn. It reports false once the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it. It must not be called from the
// loop itself.
func (l *Loop) Do(fn func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// AfterFunc arranges for fn to run on the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.stopper = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.canceled.Load() {
				return
			}
			fn()
		})
	})
	return t
}

// Stop drains already-queued work and ends the loop goroutine.
func (l *Loop) Stop() {
	l.mu.Lock()
	already := l.stopped
	l.stopped = true
	l.mu.Unlock()
	if !already {
		select {
		case l.wake <- struct{}{}:
		default:
		}
	}
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			batch := l.queue
			l.queue = nil
			stopped := l.stopped
			l.mu.Unlock()

			for _, fn := range batch {
				fn()
			}
			if len(batch) > 0 {
				continue
			}
			if stopped {
				return
			}
			break
		}
	}
}

// Timer is a pending loop callback.
type Timer struct {
	stopper  Stopper
	canceled atomic.Bool
}

// Stop cancels the callback. Called on the loop, it also suppresses a
// callback whose clock has already fired but which has not yet run.
func (t *Timer) Stop() bool {
	first := t.canceled.CompareAndSwap(false, true)
	t.stopper.Stop()
	return first
}
