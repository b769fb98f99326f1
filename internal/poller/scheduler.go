package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jpalmerr/cadence"
	"github.com/jpalmerr/cadence/clock"
)

const defaultSummaryDelay = 2 * time.Second

// ErrUnknownTarget is returned by control methods for a name that is not
// scheduled.
var ErrUnknownTarget = errors.New("unknown target")

// Summary counts targets by their latest status.
type Summary struct {
	Up       int `json:"up"`
	Down     int `json:"down"`
	Degraded int `json:"degraded"`
	Unknown  int `json:"unknown"`
}

// Session describes the polling session of one target.
type Session struct {
	Target     string `json:"target"`
	SessionID  string `json:"session_id"`
	Active     bool   `json:"active"`
	RetryCount int    `json:"retry_count"`
	InFlight   int    `json:"in_flight"`
	LastError  string `json:"last_error,omitempty"`
}

// SchedulerOption configures a [Scheduler].
type SchedulerOption func(*Scheduler)

// WithClock sets the clock that drives tick schedules and the summary
// debounce.
func WithClock(c clock.Clock) SchedulerOption {
	return func(s *Scheduler) { s.clock = c }
}

// WithObserver reports every tick to o.
func WithObserver(o cadence.PollObserver) SchedulerOption {
	return func(s *Scheduler) { s.observer = o }
}

// WithSummaryDelay sets how long target health must be stable before the
// summary is logged. Defaults to 2s.
func WithSummaryDelay(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.summaryDelay = d }
}

// Scheduler polls every target with its own [cadence.Poller] and emits each
// outcome as a [Result].
//
// A target polls at its own interval, or at the scheduler interval when it
// has none. Transport failures count against the target's retry ceiling; a
// response the extractor reads as down does not.
type Scheduler struct {
	targets      []Target
	interval     time.Duration
	client       *Client
	clock        clock.Clock
	logger       zerolog.Logger
	observer     cadence.PollObserver
	summaryDelay time.Duration
	results      chan Result

	mu       sync.Mutex
	started  bool
	stopped  bool
	ctx      context.Context
	cancel   context.CancelFunc
	pollers  map[string]*cadence.Poller[Result]
	health   map[string]Status
	summary  *cadence.Debounced[Summary]
	stopOnce sync.Once
}

// NewScheduler creates a [Scheduler] for targets. interval applies to
// targets without their own.
//
// Returns an error if two targets share a name.
func NewScheduler(targets []Target, interval time.Duration, logger zerolog.Logger, opts ...SchedulerOption) (*Scheduler, error) {
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.name]; dup {
			return nil, fmt.Errorf("duplicate target name: %q", t.name)
		}
		seen[t.name] = struct{}{}
	}

	s := &Scheduler{
		targets:      targets,
		interval:     interval,
		client:       NewClient(),
		clock:        clock.Real(),
		logger:       logger.With().Str("component", "scheduler").Logger(),
		observer:     cadence.NoopObserver(),
		summaryDelay: defaultSummaryDelay,
		results:      make(chan Result, 4*len(targets)),
		health:       make(map[string]Status, len(targets)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Results emits poll outcomes. It is closed by [Scheduler.Stop]; a consumer
// must keep reading until then or polls block.
func (s *Scheduler) Results() <-chan Result {
	return s.results
}

// Targets returns the scheduled targets.
func (s *Scheduler) Targets() []Target {
	cp := make([]Target, len(s.targets))
	copy(cp, s.targets)
	return cp
}

// Start creates the pollers and starts every target that is enabled and
// immediate. Start does not block. It is a no-op after the first call or
// after Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)

	summary, err := cadence.NewDebounce(Summary{},
		cadence.WithDelay(s.summaryDelay),
		cadence.WithClock(s.clock),
		cadence.WithLogger(s.logger),
		cadence.OnCommit(s.logSummary),
	)
	if err != nil {
		s.cancel()
		return err
	}
	s.summary = summary

	s.pollers = make(map[string]*cadence.Poller[Result], len(s.targets))
	for _, t := range s.targets {
		p, err := s.newPoller(t)
		if err != nil {
			s.cancel()
			return fmt.Errorf("target %q: %w", t.name, err)
		}
		s.pollers[t.name] = p
	}
	s.started = true

	for _, t := range s.targets {
		if t.immediate && t.enabled {
			s.pollers[t.name].Start()
		}
	}

	s.logger.Info().
		Int("targets", len(s.targets)).
		Dur("interval", s.interval).
		Msg("scheduler started")
	return nil
}

func (s *Scheduler) newPoller(t Target) (*cadence.Poller[Result], error) {
	interval := t.interval
	if interval == 0 {
		interval = s.interval
	}

	p, err := cadence.NewPoller(s.operation(t),
		cadence.WithName(t.name),
		cadence.WithInterval(interval),
		cadence.WithMaxRetries(t.maxRetries),
		cadence.WithSkipOverlap(t.skipOverlap),
		cadence.WithContext(s.ctx),
		cadence.WithClock(s.clock),
		cadence.WithLogger(s.logger),
		cadence.WithObserver(s.observer),
	)
	if err != nil {
		return nil, err
	}

	p.SetOnSuccess(func(r Result) {
		r.SessionID = p.State().SessionID
		s.emit(r)
	})
	p.SetOnError(func(err error) {
		s.emit(s.failure(t, p, err))
	})
	return p, nil
}

// operation polls t once. Only a failed HTTP exchange is an error.
func (s *Scheduler) operation(t Target) cadence.Operation[Result] {
	extract := t.extractor
	if extract == nil {
		extract = DefaultExtractor
	}

	return func(ctx context.Context) (Result, error) {
		resp, err := s.client.Fetch(ctx, t)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Target:     t.name,
			URL:        t.url,
			Status:     extract(resp.Body, resp.StatusCode),
			Labels:     copyMap(t.labels),
			Latency:    resp.Latency,
			CheckedAt:  s.clock.Now(),
			StatusCode: resp.StatusCode,
		}, nil
	}
}

func (s *Scheduler) failure(t Target, p *cadence.Poller[Result], err error) Result {
	state := p.State()
	r := Result{
		Target:     t.name,
		URL:        t.url,
		Status:     StatusDown,
		Labels:     copyMap(t.labels),
		CheckedAt:  s.clock.Now(),
		Error:      err,
		RetryCount: state.RetryCount,
		SessionID:  state.SessionID,
	}

	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		r.Latency = fetchErr.Latency
		r.StatusCode = fetchErr.StatusCode
	}
	return r
}

// emit records r for the health summary and hands it to the consumer.
func (s *Scheduler) emit(r Result) {
	s.mu.Lock()
	s.health[r.Target] = r.Status
	sum := s.summarizeLocked()
	summary := s.summary
	ctx := s.ctx
	s.mu.Unlock()

	summary.Set(sum)

	select {
	case s.results <- r:
	case <-ctx.Done():
	}
}

func (s *Scheduler) summarizeLocked() Summary {
	var sum Summary
	for _, status := range s.health {
		switch status {
		case StatusUp:
			sum.Up++
		case StatusDown:
			sum.Down++
		case StatusDegraded:
			sum.Degraded++
		default:
			sum.Unknown++
		}
	}
	return sum
}

func (s *Scheduler) logSummary(sum Summary) {
	event := s.logger.Info()
	if sum.Down > 0 {
		event = s.logger.Warn()
	}
	event.
		Int("up", sum.Up).
		Int("down", sum.Down).
		Int("degraded", sum.Degraded).
		Int("unknown", sum.Unknown).
		Msg("health summary")
}

// Summary returns the last committed health summary.
func (s *Scheduler) Summary() Summary {
	s.mu.Lock()
	summary := s.summary
	s.mu.Unlock()

	if summary == nil {
		return Summary{}
	}
	return summary.Debounced()
}

// Sessions reports the polling session of every target, in target order.
func (s *Scheduler) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := make([]Session, 0, len(s.targets))
	for _, t := range s.targets {
		p, ok := s.pollers[t.name]
		if !ok {
			sessions = append(sessions, Session{Target: t.name})
			continue
		}
		state := p.State()
		session := Session{
			Target:     t.name,
			SessionID:  state.SessionID,
			Active:     state.Active,
			RetryCount: state.RetryCount,
			InFlight:   state.InFlight,
		}
		if state.Err != nil {
			session.LastError = state.Err.Error()
		}
		sessions = append(sessions, session)
	}
	return sessions
}

// Restart ends the target's current session, if any, and starts a fresh one
// with a cleared retry count.
func (s *Scheduler) Restart(name string) error {
	p, err := s.poller(name)
	if err != nil {
		return err
	}
	s.logger.Info().Str("target", name).Msg("restarting target")
	p.Restart()
	return nil
}

// Pause stops polling the target until it is restarted.
func (s *Scheduler) Pause(name string) error {
	p, err := s.poller(name)
	if err != nil {
		return err
	}
	s.logger.Info().Str("target", name).Msg("pausing target")
	p.Stop()
	return nil
}

func (s *Scheduler) poller(name string) (*cadence.Poller[Result], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || !s.started {
		return nil, errors.New("scheduler is not running")
	}
	p, ok := s.pollers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}
	return p, nil
}

// Stop ends every session, waits for in-flight polls and closes the results
// channel. Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
		started := s.started
		pollers := s.pollers
		summary := s.summary
		s.mu.Unlock()

		for _, p := range pollers {
			p.Close()
		}
		for _, p := range pollers {
			p.Wait()
		}
		if summary != nil {
			summary.Close()
		}
		s.client.Close()
		close(s.results)

		if started {
			s.logger.Info().Msg("scheduler stopped")
		}
	})
}
