// Package eventloop provides the single-threaded cooperative scheduler that
// conversation sessions run on. Every callback scheduled on a Loop executes on
// that loop's goroutine, one at a time, so code driven by a loop needs no
// locking of its own.
package eventloop

import (
	"sync"
	"time"
)

// Timer is a pending callback scheduled with AfterFunc.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer; false means it already ran or was already stopped.
	// Stop must be called from the loop goroutine.
	Stop() bool
}

// Loop is the scheduling surface a session needs.
type Loop interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Runner is a Loop that other goroutines can hand work to.
type Runner interface {
	Loop
	// Do runs f on the loop and waits for it. It returns false once the
	// loop is closed.
	Do(f func()) bool
	Close()
}

// Real is a Loop backed by the wall clock and a dedicated goroutine.
type Real struct {
	tasks   chan func()
	done    chan struct{}
	exited  chan struct{}
	closeMu sync.Once
}

var _ Runner = (*Real)(nil)

// NewReal starts a loop goroutine. queueSize bounds the number of posted
// tasks waiting to run; Post blocks when the queue is full.
func NewReal(queueSize int) *Real {
	if queueSize <= 0 {
		queueSize = 64
	}
	l := &Real{
		tasks:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Real) run() {
	defer close(l.exited)
	for {
		select {
		case <-l.done:
			return
		case f := <-l.tasks:
			// A task may race with Close; done wins.
			select {
			case <-l.done:
				return
			default:
			}
			f()
		}
	}
}

// Now returns the wall-clock time.
func (l *Real) Now() time.Time {
	return time.Now()
}

// Post queues f to run on the loop goroutine. It returns false if the loop
// has been closed, in which case f never runs.
func (l *Real) Post(f func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- f:
		return true
	case <-l.done:
		return false
	}
}

// Do runs f on the loop goroutine and waits for it to finish. It returns
// false if the loop was closed before f ran. Do must not be called from the
// loop goroutine itself.
func (l *Real) Do(f func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		f()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.exited:
		// The loop may have exited after running f.
		select {
		case <-finished:
			return true
		default:
			return false
		}
	}
}

// AfterFunc schedules f to run on the loop goroutine after d. It must be
// called from the loop goroutine.
func (l *Real) AfterFunc(d time.Duration, f func()) Timer {
	rt := &realTimer{}
	rt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if rt.stopped || rt.fired {
				return
			}
			rt.fired = true
			f()
		})
	})
	return rt
}

// Close stops the loop goroutine and waits for it to exit. Queued tasks and
// pending timer callbacks are dropped. Close is safe to call more than once
// but must not be called from the loop goroutine.
func (l *Real) Close() {
	l.closeMu.Do(func() {
		close(l.done)
	})
	<-l.exited
}

// Done is closed once Close has been called.
func (l *Real) Done() <-chan struct{} {
	return l.done
}

// realTimer's flags are only touched on the loop goroutine.
type realTimer struct {
	t       *time.Timer
	stopped bool
	fired   bool
}

func (rt *realTimer) Stop() bool {
	if rt.stopped || rt.fired {
		return false
	}
	rt.stopped = true
	rt.t.Stop()
	return true
}
