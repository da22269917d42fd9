package eventloop

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestManualRunsTimersInDeadlineOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var got []string

	m.AfterFunc(30*time.Millisecond, func() { got = append(got, "c") })
	m.AfterFunc(10*time.Millisecond, func() { got = append(got, "a") })
	m.AfterFunc(10*time.Millisecond, func() { got = append(got, "b") })

	m.Advance(20 * time.Millisecond)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("after 20ms expected [a b], got %v", got)
	}

	m.Advance(10 * time.Millisecond)
	if len(got) != 3 || got[2] != "c" {
		t.Fatalf("after 30ms expected [a b c], got %v", got)
	}
	if m.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", m.Pending())
	}
}

func TestManualNowFollowsCallbacks(t *testing.T) {
	start := time.Unix(100, 0)
	m := NewManual(start)
	var seen time.Time

	m.AfterFunc(5*time.Second, func() { seen = m.Now() })
	m.Advance(time.Minute)

	if !seen.Equal(start.Add(5 * time.Second)) {
		t.Errorf("callback saw %v, want %v", seen, start.Add(5*time.Second))
	}
	if !m.Now().Equal(start.Add(time.Minute)) {
		t.Errorf("clock at %v, want %v", m.Now(), start.Add(time.Minute))
	}
}

func TestManualNestedScheduling(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var got []int

	m.AfterFunc(time.Second, func() {
		got = append(got, 1)
		m.AfterFunc(time.Second, func() { got = append(got, 2) })
	})

	m.Advance(3 * time.Second)
	if len(got) != 2 {
		t.Fatalf("expected nested timer to run within the advance, got %v", got)
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ran := false

	timer := m.AfterFunc(time.Second, func() { ran = true })
	if !timer.Stop() {
		t.Fatal("expected first Stop to report true")
	}
	if timer.Stop() {
		t.Error("expected second Stop to report false")
	}

	m.Advance(time.Hour)
	if ran {
		t.Error("stopped timer ran")
	}
}

func TestManualStopAfterFire(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	timer := m.AfterFunc(time.Millisecond, func() {})
	m.Advance(time.Millisecond)

	if timer.Stop() {
		t.Error("expected Stop on fired timer to report false")
	}
}

func TestManualRunUntilIdle(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	count := 0
	m.AfterFunc(time.Hour, func() { count++ })
	m.AfterFunc(48*time.Hour, func() { count++ })

	m.RunUntilIdle(10)
	if count != 2 {
		t.Errorf("expected 2 callbacks, got %d", count)
	}
}

func TestRealDoRunsOnLoop(t *testing.T) {
	l := NewReal(8)
	defer l.Close()

	var n int32
	if !l.Do(func() { atomic.AddInt32(&n, 1) }) {
		t.Fatal("Do reported loop closed")
	}
	if atomic.LoadInt32(&n) != 1 {
		t.Fatalf("expected task to have run, n=%d", n)
	}
}

func TestRealAfterFuncFires(t *testing.T) {
	l := NewReal(8)
	defer l.Close()

	fired := make(chan struct{})
	l.Do(func() {
		l.AfterFunc(10*time.Millisecond, func() { close(fired) })
	})

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestRealStoppedTimerNeverRuns(t *testing.T) {
	l := NewReal(8)
	defer l.Close()

	var ran int32
	l.Do(func() {
		timer := l.AfterFunc(5*time.Millisecond, func() { atomic.StoreInt32(&ran, 1) })
		timer.Stop()
	})

	time.Sleep(50 * time.Millisecond)
	l.Do(func() {})
	if atomic.LoadInt32(&ran) != 0 {
		t.Error("stopped timer ran")
	}
}

func TestRealClosedLoopRejectsWork(t *testing.T) {
	l := NewReal(8)
	l.Close()
	l.Close()

	if l.Post(func() {}) {
		t.Error("expected Post to fail after Close")
	}
	if l.Do(func() {}) {
		t.Error("expected Do to fail after Close")
	}
}

func TestManualDoAndClose(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var runner Runner = m

	ran := false
	if !runner.Do(func() { ran = true }) || !ran {
		t.Fatal("Do should run f synchronously")
	}

	fired := false
	tm := m.AfterFunc(time.Second, func() { fired = true })
	runner.Close()

	if m.Pending() != 0 {
		t.Errorf("expected no pending timers after Close, got %d", m.Pending())
	}
	if tm.Stop() {
		t.Error("Stop after Close should report false")
	}
	m.Advance(2 * time.Second)
	if fired {
		t.Error("timer fired after Close")
	}
	if runner.Do(func() { t.Error("Do ran after Close") }) {
		t.Error("Do should report false after Close")
	}
}
