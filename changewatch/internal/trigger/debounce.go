package trigger

import (
	"sync"
	"time"
)

// Default debounce timings.
const (
	DefaultWindow = time.Second
	DefaultSettle = 200 * time.Millisecond
)

// Debouncer turns bursts of mutations into at most one check per window.
// A burst arriving within the window of the last accepted one is dropped,
// not deferred.
type Debouncer struct {
	sched  Scheduler
	window time.Duration
	settle time.Duration
	fire   func()

	mu       sync.Mutex
	last     time.Time
	accepted bool
	pending  Cancel
	stopped  bool
}

// NewDebouncer creates a debouncer calling fire settle after each accepted
// burst. Non-positive durations fall back to the defaults.
func NewDebouncer(sched Scheduler, window, settle time.Duration, fire func()) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &Debouncer{sched: sched, window: window, settle: settle, fire: fire}
}

// Observe handles one mutation batch. It reports whether a check was
// scheduled.
func (d *Debouncer) Observe(batch []Mutation) bool {
	qualifying := false
	for _, m := range batch {
		if m.Qualifies() {
			qualifying = true
			break
		}
	}
	if !qualifying {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	now := d.sched.Now()
	if d.accepted && now.Sub(d.last) < d.window {
		return false
	}
	d.last = now
	d.accepted = true
	d.pending = d.sched.After(d.settle, d.fire)
	return true
}

// Stop cancels a pending settle callback and ignores later batches.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.pending != nil {
		d.pending()
		d.pending = nil
	}
}
