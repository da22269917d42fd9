package eventloop

import (
	"container/heap"
	"time"
)

// Manual is a Loop driven by a virtual clock. Nothing runs until Advance is
// called, and callbacks run on the goroutine calling Advance. It is meant for
// tests that need exact control over timer ordering.
type Manual struct {
	now    time.Time
	seq    uint64
	timers timerHeap
	closed bool
}

var _ Runner = (*Manual)(nil)

// NewManual returns a Manual loop whose clock starts at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the virtual time.
func (m *Manual) Now() time.Time {
	return m.now
}

// AfterFunc schedules f at Now()+d. Timers with equal deadlines run in the
// order they were scheduled.
func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	m.seq++
	mt := &manualTimer{
		m:    m,
		when: m.now.Add(d),
		seq:  m.seq,
		f:    f,
	}
	heap.Push(&m.timers, mt)
	return mt
}

// Advance moves the clock forward by d, running every timer that falls due,
// including timers scheduled by callbacks during the advance.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for len(m.timers) > 0 {
		next := m.timers[0]
		if next.when.After(target) {
			break
		}
		heap.Pop(&m.timers)
		if next.when.After(m.now) {
			m.now = next.when
		}
		next.fired = true
		next.f()
	}
	m.now = target
}

// RunUntilIdle jumps the clock from deadline to deadline until no timers
// remain or limit steps have been taken. It returns the number of steps.
func (m *Manual) RunUntilIdle(limit int) int {
	n := 0
	for len(m.timers) > 0 && n < limit {
		next := m.timers[0]
		m.Advance(next.when.Sub(m.now))
		n++
	}
	return n
}

// Do runs f immediately on the calling goroutine. It returns false after
// Close.
func (m *Manual) Do(f func()) bool {
	if m.closed {
		return false
	}
	f()
	return true
}

// Close discards every pending timer and makes later Do calls no-ops.
func (m *Manual) Close() {
	m.closed = true
	for _, t := range m.timers {
		t.index = -1
	}
	m.timers = nil
}

// Pending returns the number of scheduled timers that have not run or been
// stopped.
func (m *Manual) Pending() int {
	return len(m.timers)
}

type manualTimer struct {
	m     *Manual
	when  time.Time
	seq   uint64
	f     func()
	index int
	fired bool
}

func (t *manualTimer) Stop() bool {
	if t.fired || t.index < 0 {
		return false
	}
	heap.Remove(&t.m.timers, t.index)
	return true
}

type timerHeap []*manualTimer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*manualTimer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
