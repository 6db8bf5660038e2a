package preview

import (
	"sync"
	"time"
)

// Debouncer defers work per key. Scheduling supersedes the prior task for the
// key, and every scheduled task carries a generation so a task that fires after
// being superseded or cancelled can be recognized as stale.
type Debouncer struct {
	window time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	gens   map[string]uint64
}

// NewDebouncer creates a debouncer that waits window before firing.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window: window,
		timers: make(map[string]*time.Timer),
		gens:   make(map[string]uint64),
	}
}

// Schedule arranges for fire to run after the window with the generation of
// this task. Any earlier task for key is stopped.
func (d *Debouncer) Schedule(key string, fire func(gen uint64)) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked(key)
	d.gens[key]++
	gen := d.gens[key]
	d.timers[key] = time.AfterFunc(d.window, func() {
		fire(gen)
	})
	return gen
}

// Cancel stops the pending task for key and invalidates its generation.
// It reports whether a task was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pending := d.stopLocked(key)
	d.gens[key]++
	return pending
}

// Current reports whether gen is the latest generation for key.
func (d *Debouncer) Current(key string, gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gens[key] == gen
}

// Settle marks the task of gen as done so later cancels do not report it as
// pending.
func (d *Debouncer) Settle(key string, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gens[key] == gen {
		delete(d.timers, key)
	}
}

// Stop cancels every pending task.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key := range d.timers {
		d.stopLocked(key)
		d.gens[key]++
	}
}

func (d *Debouncer) stopLocked(key string) bool {
	timer, ok := d.timers[key]
	if !ok {
		return false
	}
	delete(d.timers, key)
	timer.Stop()
	return true
}
