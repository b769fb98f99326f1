// Package monitor wires the cadence scheduler, store and HTTP server into a
// running process.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jpalmerr/cadence/clock"
	"github.com/jpalmerr/cadence/internal/poller"
	"github.com/jpalmerr/cadence/internal/server"
	"github.com/jpalmerr/cadence/internal/store"
	"github.com/jpalmerr/cadence/internal/telemetry"
)

const (
	defaultPollingInterval = 15 * time.Second
	defaultPort            = 8080
	defaultStreamThrottle  = 250 * time.Millisecond
	defaultSummaryDelay    = 2 * time.Second
)

// Monitor polls its targets and serves their state until its context ends.
type Monitor struct {
	title           string
	targets         []poller.Target
	pollingInterval time.Duration
	port            int
	historySize     int
	streamThrottle  time.Duration
	summaryDelay    time.Duration
	clock           clock.Clock
	registry        *prometheus.Registry
	logger          zerolog.Logger
	statusCallbacks []func(poller.Result)

	mu  sync.Mutex
	srv *server.Server
}

// New creates a [Monitor].
//
// Returns an error if no targets are configured, two targets share a name,
// or an option is invalid.
func New(opts ...Option) (*Monitor, error) {
	cfg := &monitorConfig{
		pollingInterval: defaultPollingInterval,
		port:            defaultPort,
		streamThrottle:  defaultStreamThrottle,
		summaryDelay:    defaultSummaryDelay,
		clock:           clock.Real(),
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.targets) == 0 {
		return nil, errors.New("at least one target is required")
	}
	seen := make(map[string]bool, len(cfg.targets))
	for _, t := range cfg.targets {
		if seen[t.Name()] {
			return nil, fmt.Errorf("duplicate target name: %q", t.Name())
		}
		seen[t.Name()] = true
	}

	registry := cfg.registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Monitor{
		title:           cfg.title,
		targets:         cfg.targets,
		pollingInterval: cfg.pollingInterval,
		port:            cfg.port,
		historySize:     cfg.historySize,
		streamThrottle:  cfg.streamThrottle,
		summaryDelay:    cfg.summaryDelay,
		clock:           cfg.clock,
		registry:        registry,
		logger:          cfg.logger,
		statusCallbacks: cfg.statusCallbacks,
	}, nil
}

// Start polls and serves until ctx is cancelled, then stops the scheduler,
// drains pending results and returns. It returns nil at once if ctx is
// already done.
//
// Returns an error if the store, metrics or HTTP server cannot be set up.
func (m *Monitor) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	m.logger.Info().
		Str("title", m.title).
		Int("targets", len(m.targets)).
		Dur("interval", m.pollingInterval).
		Msg("cadence starting")

	statusStore, err := store.NewMemoryStore(m.historySize)
	if err != nil {
		return err
	}

	metrics, err := telemetry.NewPollMetrics(m.registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	scheduler, err := poller.NewScheduler(m.targets, m.pollingInterval, m.logger,
		poller.WithClock(m.clock),
		poller.WithObserver(metrics),
		poller.WithSummaryDelay(m.summaryDelay),
	)
	if err != nil {
		return err
	}
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for result := range scheduler.Results() {
			statusStore.Update(toRecord(result))
			for _, cb := range m.statusCallbacks {
				m.invokeCallbackSafe(cb, result)
			}
			m.logResult(result)
		}
	}()

	cleanup := func() {
		scheduler.Stop()
		wg.Wait()
	}

	srv := server.NewServer(statusStore, server.Config{
		Port:           m.port,
		Title:          m.title,
		StreamThrottle: m.streamThrottle,
		Controller:     scheduler,
		Gatherer:       m.registry,
		Clock:          m.clock,
		Logger:         m.logger,
	})
	if err := srv.Start(ctx); err != nil {
		cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	m.mu.Lock()
	m.srv = srv
	m.mu.Unlock()

	<-ctx.Done()
	cleanup()

	m.mu.Lock()
	m.srv = nil
	m.mu.Unlock()

	m.logger.Info().Msg("cadence stopped")
	return nil
}

// Addr returns the address the HTTP server is bound to, or nil when it is
// not running.
func (m *Monitor) Addr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.srv == nil {
		return nil
	}
	return m.srv.Addr()
}

// Targets returns a copy of the configured targets.
func (m *Monitor) Targets() []poller.Target {
	cp := make([]poller.Target, len(m.targets))
	copy(cp, m.targets)
	return cp
}

// Port returns the configured HTTP port. Zero means an ephemeral port; use
// [Monitor.Addr] for the bound address.
func (m *Monitor) Port() int {
	return m.port
}

// PollingInterval returns the default interval between polls of a target.
// Targets with their own interval override it.
func (m *Monitor) PollingInterval() time.Duration {
	return m.pollingInterval
}

func (m *Monitor) logResult(r poller.Result) {
	event := m.logger.Debug()
	if r.Error != nil {
		event = m.logger.Warn().Err(r.Error).Int("retry_count", r.RetryCount)
	}
	event.
		Str("status", r.Status.String()).
		Str("target", r.Target).
		Str("url", r.URL).
		Int64("latency_ms", r.Latency.Milliseconds()).
		Msg("poll completed")
}

func (m *Monitor) invokeCallbackSafe(cb func(poller.Result), r poller.Result) {
	defer func() {
		if p := recover(); p != nil {
			m.logger.Error().
				Str("panic", fmt.Sprint(p)).
				Str("target", r.Target).
				Msg("status callback panicked")
		}
	}()
	cb(r)
}

func toRecord(r poller.Result) store.Record {
	var errStr *string
	if r.Error != nil {
		s := r.Error.Error()
		errStr = &s
	}

	return store.Record{
		Name:           r.Target,
		URL:            r.URL,
		Status:         r.Status.String(),
		Labels:         r.Labels,
		ResponseTimeMs: r.Latency.Milliseconds(),
		StatusCode:     r.StatusCode,
		CheckedAt:      r.CheckedAt,
		Error:          errStr,
		RetryCount:     r.RetryCount,
		SessionID:      r.SessionID,
	}
}
