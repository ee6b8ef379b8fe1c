package trigger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config for attaching a Trigger.
type Config struct {
	Scheduler Scheduler
	// Interval is the polling period.
	Interval time.Duration
	// Subscriber is optional; without one only the poll timer fires.
	Subscriber Subscriber
	Selector   string
	Window     time.Duration
	Settle     time.Duration
	Logger     *slog.Logger
}

// Trigger owns one polling timer and at most one mutation subscription,
// both calling the same check function.
type Trigger struct {
	mu        sync.Mutex
	stopPoll  Cancel
	stopWatch Cancel
	debouncer *Debouncer
	stopped   bool
}

// Attach starts polling and, when a subscriber is configured, the mutation
// watch. A failed subscription is logged and polling continues alone.
func Attach(ctx context.Context, cfg Config, check func()) (*Trigger, error) {
	if cfg.Scheduler == nil {
		cfg.Scheduler = System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("trigger: interval must be positive, got %s", cfg.Interval)
	}

	t := &Trigger{}
	t.stopPoll = cfg.Scheduler.Every(cfg.Interval, check)

	if cfg.Subscriber != nil {
		d := NewDebouncer(cfg.Scheduler, cfg.Window, cfg.Settle, check)
		cancel, err := cfg.Subscriber.Subscribe(ctx, cfg.Selector, func(batch []Mutation) {
			d.Observe(batch)
		})
		if err != nil {
			cfg.Logger.Warn("trigger: mutation watch unavailable, polling only",
				"selector", cfg.Selector, "error", err)
			d.Stop()
		} else {
			t.debouncer = d
			t.stopWatch = cancel
		}
	}
	return t, nil
}

// Watching reports whether a mutation subscription is active.
func (t *Trigger) Watching() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopWatch != nil
}

// Stop tears down the timer and the subscription. It is idempotent.
func (t *Trigger) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.stopPoll != nil {
		t.stopPoll()
	}
	if t.stopWatch != nil {
		t.stopWatch()
		t.stopWatch = nil
	}
	if t.debouncer != nil {
		t.debouncer.Stop()
	}
}
