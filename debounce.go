package cadence

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpalmerr/cadence/clock"
)

// debounceConfig holds mutable state during Debounced construction.
type debounceConfig struct {
	baseConfig
	delay     time.Duration
	immediate bool
	onCommit  any
}

// Debounced is a value whose committed form trails its input until the input
// has been quiet for a fixed delay.
//
// Every [Debounced.Set] cancels the commit scheduled by the previous Set and
// schedules a new one, so a burst of updates collapses into a single commit of
// the last value. There is no leading edge and no maximum wait.
//
// Debounced is safe for concurrent use.
type Debounced[T any] struct {
	clock     clock.Clock
	logger    zerolog.Logger
	delay     time.Duration
	immediate bool

	mu        sync.Mutex
	raw       T
	committed T
	pending   bool
	timer     clock.Timer
	gen       uint64
	closed    bool
	onCommit  func(T)
}

// NewDebounce creates a [Debounced] value whose raw and committed forms both
// start at initial.
//
// Options: [WithDelay], [WithImmediate], [OnCommit], [WithClock], [WithLogger].
// Returns an error if an option is invalid.
func NewDebounce[T any](initial T, opts ...DebounceOption) (*Debounced[T], error) {
	cfg := &debounceConfig{
		baseConfig: defaultBase(),
		delay:      defaultDebounceDelay,
	}
	for _, opt := range opts {
		if err := opt.applyDebounce(cfg); err != nil {
			return nil, err
		}
	}

	onCommit, err := callbackOf[T](cfg.onCommit, "commit")
	if err != nil {
		return nil, err
	}

	return &Debounced[T]{
		clock:     cfg.clock,
		logger:    cfg.logger,
		delay:     cfg.delay,
		immediate: cfg.immediate,
		raw:       initial,
		committed: initial,
		onCommit:  onCommit,
	}, nil
}

// Set records v as the latest input. It never blocks on the pending commit.
//
// After [Debounced.Close], Set only records the raw value.
func (d *Debounced[T]) Set(v T) {
	d.mu.Lock()
	d.raw = v

	if d.closed {
		d.mu.Unlock()
		return
	}

	if d.immediate {
		d.committed = v
		d.pending = false
		onCommit := d.onCommit
		d.mu.Unlock()

		invokeSafe(d.logger, "debounce commit", onCommit, v)
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = true
	d.timer = d.clock.AfterFunc(d.delay, func() { d.commit(gen) })
	d.mu.Unlock()
}

// commit publishes the raw value if the timer that called it is still the
// current one.
func (d *Debounced[T]) commit(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.committed = d.raw
	d.pending = false
	d.timer = nil
	v := d.committed
	onCommit := d.onCommit
	d.mu.Unlock()

	invokeSafe(d.logger, "debounce commit", onCommit, v)
}

// Value returns the latest raw input.
func (d *Debounced[T]) Value() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.raw
}

// Debounced returns the committed value.
func (d *Debounced[T]) Debounced() T {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.committed
}

// IsPending reports whether a commit is scheduled but has not fired yet.
func (d *Debounced[T]) IsPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// SetOnCommit replaces the commit observer. The observer is read when a commit
// fires, so the replacement applies to a commit that is already scheduled.
func (d *Debounced[T]) SetOnCommit(fn func(T)) {
	d.mu.Lock()
	d.onCommit = fn
	d.mu.Unlock()
}

// Close cancels any scheduled commit. Close is idempotent.
func (d *Debounced[T]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.pending = false
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
