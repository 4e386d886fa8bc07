package listing

import (
	"sync"
	"time"
)

// DefaultDebounce is the delay applied to search input before it reaches the
// query translator.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer delivers the most recent value passed to Set once no new value
// has arrived for the configured delay. Only the latest value survives.
type Debouncer[T any] struct {
	delay time.Duration
	fn    func(T)

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewDebouncer returns a debouncer calling fn on its own goroutine. A
// non-positive delay falls back to DefaultDebounce.
func NewDebouncer[T any](delay time.Duration, fn func(T)) *Debouncer[T] {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer[T]{delay: delay, fn: fn}
}

// Set records v and restarts the timer.
func (d *Debouncer[T]) Set(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		// A Set or Stop after this timer fired but before we got the lock
		// supersedes it.
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn(v)
	})
}

// Stop cancels any pending delivery.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

// Pending reports whether a value is waiting to be delivered.
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
