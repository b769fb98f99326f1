package clock

import (
	"sync"
	"time"
)

// Fake is a manually driven [Clock].
//
// Callbacks never run on their own: [Fake.Advance] moves virtual time forward
// and runs every callback that became due, in due-time order, on the calling
// goroutine. Callbacks scheduled while advancing fire within the same call if
// they fall due before the target time.
//
// Fake is safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers map[*fakeTimer]struct{}
}

// NewFake returns a [Fake] whose current time is start.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:    start,
		timers: make(map[*fakeTimer]struct{}),
	}
}

// Now returns the virtual time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc arms a one-shot timer. Non-positive durations are due
// immediately and fire on the next Advance, including Advance(0).
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}
	return f.arm(d, 0, fn)
}

// Every arms a repeating timer with period d.
func (f *Fake) Every(d time.Duration, fn func()) Timer {
	if d <= 0 {
		panic("clock: non-positive interval for Every")
	}
	return f.arm(d, d, fn)
}

func (f *Fake) arm(d, period time.Duration, fn func()) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	t := &fakeTimer{
		clock:  f,
		due:    f.now.Add(d),
		period: period,
		seq:    f.seq,
		fn:     fn,
	}
	f.timers[t] = struct{}{}
	return t
}

// Advance moves virtual time forward by d, firing due callbacks.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDue(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}

		if next.due.After(f.now) {
			f.now = next.due
		}
		if next.period > 0 {
			f.seq++
			next.due = next.due.Add(next.period)
			next.seq = f.seq
		} else {
			delete(f.timers, next)
		}
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

// Pending returns the number of armed timers.
func (f *Fake) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// nextDue returns the earliest armed timer due at or before target.
// Ties fire in scheduling order. Caller must hold f.mu.
func (f *Fake) nextDue(target time.Time) *fakeTimer {
	var next *fakeTimer
	for t := range f.timers {
		if t.due.After(target) {
			continue
		}
		if next == nil || t.due.Before(next.due) || (t.due.Equal(next.due) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

type fakeTimer struct {
	clock  *Fake
	due    time.Time
	period time.Duration
	seq    uint64
	fn     func()
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if _, armed := t.clock.timers[t]; !armed {
		return false
	}
	delete(t.clock.timers, t)
	return true
}
