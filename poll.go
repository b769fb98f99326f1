package cadence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jpalmerr/cadence/clock"
)

// Operation is the unit of work a [Poller] invokes on every tick.
//
// A non-nil error marks the tick as failed. No contract on idempotency or
// duration is assumed: a hung operation is never timed out by the poller.
type Operation[T any] func(ctx context.Context) (T, error)

// PollState is a consistent snapshot of a [Poller].
type PollState[T any] struct {
	// Name is the label set with [WithName].
	Name string

	// SessionID identifies the current or most recent session. Empty until
	// the first start.
	SessionID string

	// Active reports whether ticks are scheduled.
	Active bool

	// RetryCount is the number of consecutive failures since the last
	// success or session start.
	RetryCount int

	// Err is the most recent failure, cleared by a success or a new session.
	Err error

	// Data is the most recent successful result.
	Data T

	// HasData reports whether any tick has succeeded yet.
	HasData bool

	// InFlight is the number of invocations that have not settled.
	InFlight int
}

// pollConfig holds mutable state during Poller construction.
type pollConfig struct {
	baseConfig
	name        string
	interval    time.Duration
	immediate   bool
	enabled     bool
	maxRetries  int
	skipOverlap bool
	ctx         context.Context
	observer    PollObserver
	onSuccess   any
	onError     func(error)
}

// Poller repeatedly invokes an [Operation] on a fixed interval, tracks
// consecutive failures and stops itself once a retry ceiling is reached.
//
// A session runs from [Poller.Start] to [Poller.Stop] or to the failure that
// reaches the ceiling set with [WithMaxRetries]. Each session gets a fresh ID
// and generation number; a tick that fires, or an invocation that settles,
// after its session ended is discarded without touching state.
//
// Ticks keep a fixed cadence: the schedule does not wait for the previous
// invocation, so invocations overlap when the operation is slower than the
// interval. Use [WithSkipOverlap] to skip such ticks instead.
//
// All methods are safe for concurrent use. State read after a control method
// returns already reflects that call.
type Poller[T any] struct {
	name        string
	interval    time.Duration
	maxRetries  int
	skipOverlap bool
	clock       clock.Clock
	logger      zerolog.Logger
	observer    PollObserver
	ctx         context.Context
	cancel      context.CancelFunc

	mu        sync.Mutex
	settled   *sync.Cond
	op        Operation[T]
	onSuccess func(T)
	onError   func(error)

	active       bool
	closed       bool
	gen          uint64
	sessionID    string
	ticker       clock.Timer
	restartTimer clock.Timer
	retryCount   int
	err          error
	data         T
	hasData      bool
	inFlight     int
	callbacks    int
}

// NewPoller creates a [Poller] for op.
//
// Defaults: 1s interval, no automatic start, enabled, unlimited retries,
// overlapping ticks allowed. When both [WithImmediate] and [WithEnabled] are
// true the first session starts before NewPoller returns.
//
// Returns an error if op is nil or an option is invalid.
func NewPoller[T any](op Operation[T], opts ...PollOption) (*Poller[T], error) {
	if op == nil {
		return nil, errors.New("operation cannot be nil")
	}

	cfg := &pollConfig{
		baseConfig: defaultBase(),
		interval:   defaultPollInterval,
		enabled:    true,
		maxRetries: -1,
		ctx:        context.Background(),
		observer:   NoopObserver(),
	}
	for _, opt := range opts {
		if err := opt.applyPoll(cfg); err != nil {
			return nil, err
		}
	}

	onSuccess, err := callbackOf[T](cfg.onSuccess, "success")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(cfg.ctx)
	p := &Poller[T]{
		name:        cfg.name,
		interval:    cfg.interval,
		maxRetries:  cfg.maxRetries,
		skipOverlap: cfg.skipOverlap,
		clock:       cfg.clock,
		logger:      cfg.logger.With().Str("poller", cfg.name).Logger(),
		observer:    cfg.observer,
		ctx:         ctx,
		cancel:      cancel,
		op:          op,
		onSuccess:   onSuccess,
		onError:     cfg.onError,
	}
	p.settled = sync.NewCond(&p.mu)

	if cfg.immediate && cfg.enabled {
		p.Start()
	}

	return p, nil
}

// Start opens a new session: the retry count and last error are reset, the
// operation is invoked at once (tick #0) and then once per interval.
//
// Start is a no-op while a session is active and after [Poller.Close].
func (p *Poller[T]) Start() {
	p.mu.Lock()
	if p.active || p.closed {
		p.mu.Unlock()
		return
	}

	if p.restartTimer != nil {
		p.restartTimer.Stop()
		p.restartTimer = nil
	}
	p.gen++
	gen := p.gen
	p.sessionID = uuid.NewString()
	p.active = true
	p.retryCount = 0
	p.err = nil
	p.ticker = p.clock.Every(p.interval, func() { p.tick(gen) })
	sessionID := p.sessionID
	p.mu.Unlock()

	p.logger.Info().
		Str("session_id", sessionID).
		Dur("interval", p.interval).
		Msg("polling started")
	p.observer.SessionChanged(p.name, true, 0)

	p.tick(gen)
}

// Stop ends the current session. Future ticks are cancelled at once; an
// invocation already in flight runs to completion but its outcome is
// discarded. Stop is idempotent and also cancels a start pending from
// [Poller.Restart].
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	stopped := p.stopLocked()
	if p.restartTimer != nil {
		p.restartTimer.Stop()
		p.restartTimer = nil
	}
	retries := p.retryCount
	p.mu.Unlock()

	if stopped {
		p.logger.Info().Int("retry_count", retries).Msg("polling stopped")
		p.observer.SessionChanged(p.name, false, retries)
	}
}

// Restart stops the current session and starts a new one on the next
// scheduling opportunity of the clock, never inline with the caller.
func (p *Poller[T]) Restart() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	stopped := p.stopLocked()
	if p.restartTimer != nil {
		p.restartTimer.Stop()
	}
	p.restartTimer = p.clock.AfterFunc(0, p.Start)
	retries := p.retryCount
	p.mu.Unlock()

	if stopped {
		p.logger.Info().Int("retry_count", retries).Msg("polling restarting")
		p.observer.SessionChanged(p.name, false, retries)
	}
}

// Close stops the poller for good: the session ends, the context handed to
// in-flight invocations is cancelled and Close waits for them to settle.
// After Close, Start and Restart are no-ops.
//
// Close does not wait for callbacks that are already running, so it may be
// called from [OnSuccess] or [OnError]. Follow it with [Poller.Wait] to wait
// for those callbacks as well.
func (p *Poller[T]) Close() {
	p.mu.Lock()
	p.closed = true
	stopped := p.stopLocked()
	if p.restartTimer != nil {
		p.restartTimer.Stop()
		p.restartTimer = nil
	}
	retries := p.retryCount
	p.mu.Unlock()

	if stopped {
		p.logger.Info().Int("retry_count", retries).Msg("polling stopped")
		p.observer.SessionChanged(p.name, false, retries)
	}

	p.cancel()

	p.mu.Lock()
	for p.inFlight > 0 {
		p.settled.Wait()
	}
	p.mu.Unlock()
}

// Wait blocks until every in-flight invocation has settled and its callback
// has returned. Wait does not stop the session.
//
// Wait must not be called from a callback of the same poller: the callback
// would wait for itself.
func (p *Poller[T]) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.inFlight > 0 || p.callbacks > 0 {
		p.settled.Wait()
	}
}

// stopLocked cancels the schedule. It reports whether a session was active.
// Caller must hold p.mu.
func (p *Poller[T]) stopLocked() bool {
	if !p.active {
		return false
	}
	p.active = false
	if p.ticker != nil {
		p.ticker.Stop()
		p.ticker = nil
	}
	return true
}

// tick launches one invocation if the session that scheduled it is still
// live.
func (p *Poller[T]) tick(gen uint64) {
	p.mu.Lock()
	if !p.active || p.gen != gen {
		p.mu.Unlock()
		return
	}
	if p.skipOverlap && p.inFlight > 0 {
		inFlight := p.inFlight
		p.mu.Unlock()

		p.logger.Debug().Int("in_flight", inFlight).Msg("tick skipped")
		p.observer.TickSkipped(p.name)
		return
	}
	p.inFlight++
	op := p.op
	p.mu.Unlock()

	p.observer.TickStarted(p.name)
	go p.run(gen, op)
}

// run invokes op and applies its outcome to the session identified by gen.
// The invocation settles before its callback runs; the callback is tracked
// separately so that it can call Close.
func (p *Poller[T]) run(gen uint64, op Operation[T]) {
	started := p.clock.Now()
	result, err := p.invoke(op)
	p.observer.TickFinished(p.name, err, p.clock.Now().Sub(started))

	p.mu.Lock()
	p.inFlight--
	p.settled.Broadcast()
	if !p.active || p.gen != gen {
		p.mu.Unlock()
		p.logger.Debug().Msg("discarding outcome of ended session")
		return
	}

	if err == nil {
		p.data = result
		p.hasData = true
		p.retryCount = 0
		p.err = nil
		onSuccess := p.onSuccess
		p.callbacks++
		p.mu.Unlock()
		defer p.callbackDone()

		invokeSafe(p.logger, "success", onSuccess, result)
		return
	}

	p.err = err
	p.retryCount++
	retries := p.retryCount
	exhausted := p.maxRetries > 0 && retries >= p.maxRetries
	if exhausted {
		p.stopLocked()
	}
	onError := p.onError
	p.callbacks++
	p.mu.Unlock()
	defer p.callbackDone()

	p.logger.Warn().Err(err).Int("retry_count", retries).Msg("poll failed")
	if exhausted {
		p.logger.Warn().
			Int("max_retries", p.maxRetries).
			Msg("retry limit reached, polling stopped")
		p.observer.SessionChanged(p.name, false, retries)
	}

	invokeSafe(p.logger, "error", onError, err)
}

// invoke calls op, converting a panic into a failure.
func (p *Poller[T]) invoke(op Operation[T]) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverAsError(p.logger, r)
		}
	}()
	return op(p.ctx)
}

func (p *Poller[T]) callbackDone() {
	p.mu.Lock()
	p.callbacks--
	p.settled.Broadcast()
	p.mu.Unlock()
}

// SetOperation replaces the operation. Ticks read the operation when they
// fire, so the replacement applies from the next tick. A nil op is ignored.
func (p *Poller[T]) SetOperation(op Operation[T]) {
	if op == nil {
		return
	}
	p.mu.Lock()
	p.op = op
	p.mu.Unlock()
}

// SetOnSuccess replaces the success callback.
func (p *Poller[T]) SetOnSuccess(fn func(T)) {
	p.mu.Lock()
	p.onSuccess = fn
	p.mu.Unlock()
}

// SetOnError replaces the failure callback.
func (p *Poller[T]) SetOnError(fn func(error)) {
	p.mu.Lock()
	p.onError = fn
	p.mu.Unlock()
}

// IsPolling reports whether a session is active.
func (p *Poller[T]) IsPolling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// RetryCount returns the number of consecutive failures in the current or
// most recent session.
func (p *Poller[T]) RetryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retryCount
}

// Err returns the most recent failure, or nil.
func (p *Poller[T]) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Data returns the most recent successful result and whether there is one.
func (p *Poller[T]) Data() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data, p.hasData
}

// Name returns the label set with [WithName].
func (p *Poller[T]) Name() string {
	return p.name
}

// State returns a consistent snapshot of the poller.
func (p *Poller[T]) State() PollState[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PollState[T]{
		Name:       p.name,
		SessionID:  p.sessionID,
		Active:     p.active,
		RetryCount: p.retryCount,
		Err:        p.err,
		Data:       p.data,
		HasData:    p.hasData,
		InFlight:   p.inFlight,
	}
}
