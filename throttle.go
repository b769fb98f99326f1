package cadence

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpalmerr/cadence/clock"
)

// throttleConfig holds mutable state during Throttled construction.
type throttleConfig struct {
	baseConfig
	leading  bool
	trailing bool
	onCommit any
}

// Throttled is a value that commits its input at most once per interval.
//
// Windows are measured from the last commit. A value set after the window has
// closed is committed at once. A value set inside the window is either
// committed when the window closes (trailing edge) or dropped, and a trailing
// commit always publishes the latest input rather than the value that
// scheduled it.
//
// Throttled is safe for concurrent use.
type Throttled[T any] struct {
	clock    clock.Clock
	logger   zerolog.Logger
	interval time.Duration
	leading  bool
	trailing bool

	mu        sync.Mutex
	raw       T
	committed T
	throttled bool
	// anchor opens the current window: the last commit, or the first input
	// seen when the leading edge is disabled.
	anchor    time.Time
	hasAnchor bool
	timer     clock.Timer
	gen       uint64
	closed    bool
	onCommit  func(T)
}

// NewThrottle creates a [Throttled] value whose raw and committed forms both
// start at initial. Construction does not count as a commit, so the first
// [Throttled.Set] is eligible for the leading edge.
//
// Options: [WithLeading], [WithTrailing], [OnCommit], [WithClock],
// [WithLogger]. Returns an error if an option is invalid.
func NewThrottle[T any](initial T, interval time.Duration, opts ...ThrottleOption) (*Throttled[T], error) {
	cfg := &throttleConfig{
		baseConfig: defaultBase(),
		leading:    true,
		trailing:   true,
	}
	for _, opt := range opts {
		if err := opt.applyThrottle(cfg); err != nil {
			return nil, err
		}
	}

	onCommit, err := callbackOf[T](cfg.onCommit, "commit")
	if err != nil {
		return nil, err
	}

	return &Throttled[T]{
		clock:     cfg.clock,
		logger:    cfg.logger,
		interval:  interval,
		leading:   cfg.leading,
		trailing:  cfg.trailing,
		raw:       initial,
		committed: initial,
		onCommit:  onCommit,
	}, nil
}

// Set records v as the latest input and commits it if the current window
// allows.
//
// After [Throttled.Close], Set only records the raw value.
func (t *Throttled[T]) Set(v T) {
	t.mu.Lock()
	t.raw = v

	if t.closed {
		t.mu.Unlock()
		return
	}

	now := t.clock.Now()

	if !t.hasAnchor {
		if t.leading {
			t.commitAndNotify(now)
			return
		}
		t.anchor = now
		t.hasAnchor = true
	}

	elapsed := now.Sub(t.anchor)
	if elapsed >= t.interval {
		t.commitAndNotify(now)
		return
	}

	if !t.trailing {
		t.mu.Unlock()
		return
	}

	t.throttled = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.interval-elapsed, func() { t.fireTrailing(gen) })
	t.mu.Unlock()
}

// fireTrailing commits the latest input when the trailing timer that called
// it is still current.
func (t *Throttled[T]) fireTrailing(gen uint64) {
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.commitAndNotify(t.clock.Now())
}

// commitAndNotify publishes the raw value, opens a new window at now and
// releases t.mu before invoking the observer. Caller must hold t.mu.
func (t *Throttled[T]) commitAndNotify(now time.Time) {
	t.committed = t.raw
	t.anchor = now
	t.hasAnchor = true
	t.throttled = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	v := t.committed
	onCommit := t.onCommit
	t.mu.Unlock()

	invokeSafe(t.logger, "throttle commit", onCommit, v)
}

// Value returns the latest raw input.
func (t *Throttled[T]) Value() T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.raw
}

// Throttled returns the committed value.
func (t *Throttled[T]) Throttled() T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// IsThrottled reports whether a trailing commit is scheduled.
func (t *Throttled[T]) IsThrottled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.throttled
}

// SetOnCommit replaces the commit observer. The observer is read when a
// commit happens.
func (t *Throttled[T]) SetOnCommit(fn func(T)) {
	t.mu.Lock()
	t.onCommit = fn
	t.mu.Unlock()
}

// Close cancels any scheduled trailing commit. Close is idempotent.
func (t *Throttled[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.throttled = false
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
