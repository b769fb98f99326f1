package cadence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpalmerr/cadence/clock"
)

const (
	defaultDebounceDelay  = 500 * time.Millisecond
	defaultPollInterval   = time.Second
	defaultTimeAgoRefresh = time.Minute
)

// baseConfig holds the concerns shared by every controller.
type baseConfig struct {
	clock  clock.Clock
	logger zerolog.Logger
}

func defaultBase() baseConfig {
	return baseConfig{
		clock:  clock.Real(),
		logger: zerolog.Nop(),
	}
}

// DebounceOption configures a [Debounced] value during construction.
type DebounceOption interface {
	applyDebounce(*debounceConfig) error
}

// ThrottleOption configures a [Throttled] value during construction.
type ThrottleOption interface {
	applyThrottle(*throttleConfig) error
}

// PollOption configures a [Poller] during construction.
type PollOption interface {
	applyPoll(*pollConfig) error
}

// TimeAgoOption configures a [TimeAgo] during construction.
type TimeAgoOption interface {
	applyTimeAgo(*timeAgoConfig) error
}

// SharedOption configures a concern common to every controller in this
// package. It can be passed to [NewDebounce], [NewThrottle], [NewPoller] and
// [NewTimeAgo].
type SharedOption func(*baseConfig) error

func (o SharedOption) applyDebounce(c *debounceConfig) error {
	return o(&c.baseConfig)
}

func (o SharedOption) applyThrottle(c *throttleConfig) error {
	return o(&c.baseConfig)
}

func (o SharedOption) applyPoll(c *pollConfig) error {
	return o(&c.baseConfig)
}

func (o SharedOption) applyTimeAgo(c *timeAgoConfig) error {
	return o(&c.baseConfig)
}

// WithClock sets the timer service a controller schedules its callbacks on.
// Defaults to [clock.Real].
//
// Returns an error if c is nil.
func WithClock(c clock.Clock) SharedOption {
	return func(cfg *baseConfig) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = c
		return nil
	}
}

// WithLogger sets the logger used to report recovered panics and lifecycle
// events. Defaults to a disabled logger.
func WithLogger(logger zerolog.Logger) SharedOption {
	return func(cfg *baseConfig) error {
		cfg.logger = logger
		return nil
	}
}

type debounceOption func(*debounceConfig) error

func (o debounceOption) applyDebounce(c *debounceConfig) error { return o(c) }

type throttleOption func(*throttleConfig) error

func (o throttleOption) applyThrottle(c *throttleConfig) error { return o(c) }

type pollOption func(*pollConfig) error

func (o pollOption) applyPoll(c *pollConfig) error { return o(c) }

type timeAgoOption func(*timeAgoConfig) error

func (o timeAgoOption) applyTimeAgo(c *timeAgoConfig) error { return o(c) }

// WithDelay sets how long the input of a [Debounced] value must stay quiet
// before the value is committed. Defaults to 500ms.
func WithDelay(d time.Duration) DebounceOption {
	return debounceOption(func(cfg *debounceConfig) error {
		cfg.delay = d
		return nil
	})
}

// ImmediateOption is returned by [WithImmediate]; it applies to both
// [NewDebounce] and [NewPoller].
type ImmediateOption bool

func (o ImmediateOption) applyDebounce(c *debounceConfig) error {
	c.immediate = bool(o)
	return nil
}

func (o ImmediateOption) applyPoll(c *pollConfig) error {
	c.immediate = bool(o)
	return nil
}

// WithImmediate removes the wait from a controller.
//
// For a [Debounced] value every Set is committed at once, which turns the
// debounce into a pass-through without changing call sites. For a [Poller]
// the session starts during construction, provided the poller is enabled
// (see [WithEnabled]).
func WithImmediate(immediate bool) ImmediateOption {
	return ImmediateOption(immediate)
}

// WithLeading controls whether the first value set on a [Throttled] value is
// committed without delay. Defaults to true.
func WithLeading(leading bool) ThrottleOption {
	return throttleOption(func(cfg *throttleConfig) error {
		cfg.leading = leading
		return nil
	})
}

// WithTrailing controls whether a value set inside a throttle window is
// committed when the window closes. When false such values are dropped.
// Defaults to true.
func WithTrailing(trailing bool) ThrottleOption {
	return throttleOption(func(cfg *throttleConfig) error {
		cfg.trailing = trailing
		return nil
	})
}

// CommitOption is returned by [OnCommit]; it applies to both [NewDebounce] and
// [NewThrottle].
type CommitOption struct {
	fn any
}

func (o CommitOption) applyDebounce(c *debounceConfig) error {
	c.onCommit = o.fn
	return nil
}

func (o CommitOption) applyThrottle(c *throttleConfig) error {
	c.onCommit = o.fn
	return nil
}

// OnCommit registers fn to observe every committed value of a [Debounced] or
// [Throttled] value. fn runs on the goroutine that performed the commit,
// outside the controller's lock; panics are recovered and logged.
//
// The constructor returns an error if T does not match the value type.
func OnCommit[T any](fn func(T)) CommitOption {
	return CommitOption{fn: fn}
}

// WithInterval sets the fixed spacing between poll ticks. Defaults to 1s.
//
// The interval is handed to the clock unvalidated; the real clock panics on a
// non-positive interval when the session starts.
func WithInterval(d time.Duration) PollOption {
	return pollOption(func(cfg *pollConfig) error {
		cfg.interval = d
		return nil
	})
}

// WithEnabled gates the automatic start requested by [WithImmediate]. It is
// read once, during construction. Defaults to true.
func WithEnabled(enabled bool) PollOption {
	return pollOption(func(cfg *pollConfig) error {
		cfg.enabled = enabled
		return nil
	})
}

// WithMaxRetries sets how many consecutive failures end a polling session.
// Zero or a negative value means unlimited. Defaults to -1.
func WithMaxRetries(n int) PollOption {
	return pollOption(func(cfg *pollConfig) error {
		cfg.maxRetries = n
		return nil
	})
}

// WithSkipOverlap makes a tick a no-op while the previous invocation of the
// operation is still in flight. By default ticks keep a fixed cadence and
// invocations may overlap when the operation is slower than the interval.
func WithSkipOverlap(skip bool) PollOption {
	return pollOption(func(cfg *pollConfig) error {
		cfg.skipOverlap = skip
		return nil
	})
}

// WithContext sets the parent of the context handed to every invocation of
// the operation. [Poller.Close] cancels the derived context; [Poller.Stop]
// does not. Defaults to context.Background().
//
// Returns an error if ctx is nil.
func WithContext(ctx context.Context) PollOption {
	return pollOption(func(cfg *pollConfig) error {
		if ctx == nil {
			return errors.New("context cannot be nil")
		}
		cfg.ctx = ctx
		return nil
	})
}

// WithName labels the poller in logs and observer calls.
func WithName(name string) PollOption {
	return pollOption(func(cfg *pollConfig) error {
		cfg.name = name
		return nil
	})
}

// WithObserver registers a [PollObserver] that is told about every tick and
// session transition.
//
// Returns an error if o is nil.
func WithObserver(o PollObserver) PollOption {
	return pollOption(func(cfg *pollConfig) error {
		if o == nil {
			return errors.New("observer cannot be nil")
		}
		cfg.observer = o
		return nil
	})
}

// OnSuccess registers fn to receive the result of every successful tick.
//
// [NewPoller] returns an error if T does not match the operation's result type.
func OnSuccess[T any](fn func(T)) PollOption {
	return pollOption(func(cfg *pollConfig) error {
		cfg.onSuccess = fn
		return nil
	})
}

// OnError registers fn to receive the error of every failed tick.
func OnError(fn func(error)) PollOption {
	return pollOption(func(cfg *pollConfig) error {
		cfg.onError = fn
		return nil
	})
}

// WithLocale sets the language of a [TimeAgo] rendering. Defaults to
// [LocaleEN].
//
// Returns an error for an unsupported locale.
func WithLocale(l Locale) TimeAgoOption {
	return timeAgoOption(func(cfg *timeAgoConfig) error {
		if l != LocaleEN && l != LocaleZH {
			return fmt.Errorf("unsupported locale %q", l)
		}
		cfg.format.Locale = l
		return nil
	})
}

// WithRelative selects calendar-style phrasing ("yesterday", "last week")
// over plain counts ("1 day ago"). Defaults to true.
func WithRelative(relative bool) TimeAgoOption {
	return timeAgoOption(func(cfg *timeAgoConfig) error {
		cfg.format.Relative = relative
		return nil
	})
}

// WithMinUnit sets the smallest unit a [TimeAgo] reports. Defaults to
// [UnitMinute].
func WithMinUnit(u TimeUnit) TimeAgoOption {
	return timeAgoOption(func(cfg *timeAgoConfig) error {
		if u < UnitSecond || u > UnitYear {
			return fmt.Errorf("unknown time unit %d", u)
		}
		cfg.format.MinUnit = u
		return nil
	})
}

// WithRefresh sets how often a [TimeAgo] re-renders. Defaults to 1m.
func WithRefresh(d time.Duration) TimeAgoOption {
	return timeAgoOption(func(cfg *timeAgoConfig) error {
		cfg.refresh = d
		return nil
	})
}

// WithAutoUpdate controls whether a [TimeAgo] re-renders on a timer at all.
// Defaults to true.
func WithAutoUpdate(auto bool) TimeAgoOption {
	return timeAgoOption(func(cfg *timeAgoConfig) error {
		cfg.autoUpdate = auto
		return nil
	})
}

// callbackOf recovers a typed callback stored by a generic option.
func callbackOf[T any](fn any, kind string) (func(T), error) {
	if fn == nil {
		return nil, nil
	}
	typed, ok := fn.(func(T))
	if !ok {
		var zero T
		return nil, fmt.Errorf("%s callback has type %T, want func(%T)", kind, fn, zero)
	}
	return typed, nil
}
