package debounce

import (
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	d       time.Duration
	fn      func()
	stopped bool
}

func (f *fakeTimer) Stop() bool {
	was := !f.stopped
	f.stopped = true
	return was
}

type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (c *fakeClock) after(d time.Duration, fn func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{d: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) fireAll() {
	c.mu.Lock()
	timers := append([]*fakeTimer(nil), c.timers...)
	c.mu.Unlock()
	for _, t := range timers {
		t.fn()
	}
}

func newTestDebouncer(delay time.Duration) (*Debouncer, *fakeClock) {
	clock := &fakeClock{}
	d := New(delay)
	d.after = clock.after
	return d, clock
}

func TestScheduleReplacesPendingCall(t *testing.T) {
	d, clock := newTestDebouncer(time.Second)

	var calls []string
	d.Schedule(func() { calls = append(calls, "first") })
	d.Schedule(func() { calls = append(calls, "second") })

	if len(clock.timers) != 2 {
		t.Fatalf("expected two timers armed, got %d", len(clock.timers))
	}
	if !clock.timers[0].stopped {
		t.Fatalf("first timer should be stopped by the second schedule")
	}
	if clock.timers[1].d != time.Second {
		t.Fatalf("unexpected delay %v", clock.timers[1].d)
	}

	// both timers fire; only the latest generation may run
	clock.fireAll()

	if len(calls) != 1 || calls[0] != "second" {
		t.Fatalf("expected only the second call, got %v", calls)
	}
	if d.Pending() {
		t.Fatalf("nothing should be pending after firing")
	}
}

func TestCancelDropsPendingCall(t *testing.T) {
	d, clock := newTestDebouncer(time.Second)

	ran := false
	d.Schedule(func() { ran = true })
	if !d.Pending() {
		t.Fatalf("expected pending call")
	}
	if !d.Cancel() {
		t.Fatalf("cancel should report a pending call")
	}
	if d.Cancel() {
		t.Fatalf("second cancel should report nothing pending")
	}

	clock.fireAll()
	if ran {
		t.Fatalf("cancelled call must not run")
	}
}

func TestFlushRunsImmediately(t *testing.T) {
	d, clock := newTestDebouncer(time.Minute)

	count := 0
	d.Schedule(func() { count++ })
	if !d.Flush() {
		t.Fatalf("flush should report a pending call")
	}
	if count != 1 {
		t.Fatalf("expected flush to run the call once, got %d", count)
	}

	clock.fireAll()
	if count != 1 {
		t.Fatalf("timer firing after flush must not rerun, got %d", count)
	}
	if d.Flush() {
		t.Fatalf("nothing left to flush")
	}
}

func TestRealTimerFires(t *testing.T) {
	d := New(5 * time.Millisecond)
	done := make(chan struct{})
	d.Schedule(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("debounced call did not fire")
	}
}
