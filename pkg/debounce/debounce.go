// Package debounce provides a cancellable single-slot timer: scheduling a new
// call drops whatever call is still pending.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs at most one scheduled function after a quiet period.
type Debouncer struct {
	delay time.Duration
	after func(time.Duration, func()) stopper

	mu      sync.Mutex
	pending stopper
	fn      func()
	gen     uint64
}

type stopper interface {
	Stop() bool
}

// New builds a debouncer with the given quiet period.
func New(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay: delay,
		after: func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) },
	}
}

// Delay returns the configured quiet period.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule arms fn to run after the delay, cancelling any pending call.
func (d *Debouncer) Schedule(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending != nil {
		d.pending.Stop()
	}
	d.gen++
	gen := d.gen
	d.fn = fn
	d.pending = d.after(d.delay, func() { d.fire(gen) })
}

// Cancel drops the pending call. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending == nil {
		return false
	}
	d.pending.Stop()
	d.pending = nil
	d.fn = nil
	d.gen++
	return true
}

// Pending reports whether a call is armed and has not fired yet.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// Flush runs the pending call now, on the caller's goroutine.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.pending == nil {
		d.mu.Unlock()
		return false
	}
	d.pending.Stop()
	fn := d.fn
	d.pending = nil
	d.fn = nil
	d.gen++
	d.mu.Unlock()

	fn()
	return true
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// a stale timer can still fire if Stop raced with expiry
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	d.pending = nil
	d.fn = nil
	d.mu.Unlock()

	fn()
}
