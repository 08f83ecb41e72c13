package session

import (
	"sync"
	"time"
)

// Debouncer runs fn once after the last Schedule call settles. Every
// Schedule cancels the pending run and starts a new timer.
type Debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
	fn    func()
}

func NewDebouncer(fn func()) *Debouncer {
	return &Debouncer{fn: fn}
}

func (d *Debouncer) Schedule(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() {
		d.mu.Lock()
		// A stopped timer may still fire if it was already due.
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		d.fn()
	})
}

// Cancel drops the pending run, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
