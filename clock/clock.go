// Package clock provides the timer service consumed by the cadence
// controllers.
//
// Production code uses [Real]. Tests inject a [Fake] and drive virtual time
// with [Fake.Advance], which makes every debounce, throttle and polling
// schedule deterministic.
package clock

import (
	"sync"
	"time"
)

// Clock schedules one-shot and repeating callbacks and reports the current
// time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once after d elapses. The returned Timer cancels the
	// pending call.
	AfterFunc(d time.Duration, f func()) Timer

	// Every calls f repeatedly, once per period d, until the returned Timer
	// is stopped. Ticks keep a fixed cadence regardless of how long f takes.
	// Every panics if d is not positive.
	Every(d time.Duration, f func()) Timer
}

// Timer is a handle to a scheduled callback.
type Timer interface {
	// Stop cancels the callback. It reports whether the call was cancelled
	// while still armed; stopping an expired or stopped Timer returns false.
	Stop() bool
}

// Real returns a [Clock] backed by the time package.
func Real() Clock {
	return realClock{}
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

func (realClock) Every(d time.Duration, f func()) Timer {
	t := &realTicker{
		ticker: time.NewTicker(d),
		done:   make(chan struct{}),
	}
	go t.run(f)
	return t
}

// realTicker runs f on every tick of a time.Ticker until stopped.
type realTicker struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (t *realTicker) run(f func()) {
	for {
		select {
		case <-t.done:
			return
		case <-t.ticker.C:
			// a tick that raced with Stop must not run
			select {
			case <-t.done:
				return
			default:
			}
			f()
		}
	}
}

func (t *realTicker) Stop() bool {
	stopped := false
	t.once.Do(func() {
		t.ticker.Stop()
		close(t.done)
		stopped = true
	})
	return stopped
}
