// Package trigger turns a polling cadence and a mutation signal into a
// single "check now" callback.
package trigger

import (
	"sync"
	"time"
)

// Cancel stops a scheduled callback or subscription. Calling it more than
// once is safe.
type Cancel func()

// Scheduler is the timer capability used by triggers. System() is backed by
// real time; Manual is driven by tests.
type Scheduler interface {
	// Every calls fn every d until cancelled.
	Every(d time.Duration, fn func()) Cancel
	// After calls fn once after d unless cancelled first.
	After(d time.Duration, fn func()) Cancel
	Now() time.Time
}

type systemScheduler struct{}

// System returns a Scheduler backed by the time package.
func System() Scheduler { return systemScheduler{} }

func (systemScheduler) Now() time.Time { return time.Now() }

func (systemScheduler) Every(d time.Duration, fn func()) Cancel {
	ticker := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (systemScheduler) After(d time.Duration, fn func()) Cancel {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
