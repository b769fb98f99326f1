package monitor

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jpalmerr/cadence/clock"
	"github.com/jpalmerr/cadence/internal/poller"
)

// monitorConfig holds mutable state during Monitor construction.
type monitorConfig struct {
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
}

// Option configures a [Monitor] during construction.
type Option func(*monitorConfig) error

// WithTargets adds targets to poll.
func WithTargets(targets ...poller.Target) Option {
	return func(cfg *monitorConfig) error {
		cfg.targets = append(cfg.targets, targets...)
		return nil
	}
}

// WithPollingInterval sets the interval of targets without their own.
// Defaults to 15s.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithPort sets the HTTP port. Zero picks a free port. Defaults to 8080.
func WithPort(port int) Option {
	return func(cfg *monitorConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port must be between 0 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithHistorySize sets how many records are kept per target.
func WithHistorySize(n int) Option {
	return func(cfg *monitorConfig) error {
		if n < 0 {
			return errors.New("history size cannot be negative")
		}
		cfg.historySize = n
		return nil
	}
}

// WithStreamThrottle sets the minimum spacing between SSE flushes to one
// client. Zero disables throttling.
func WithStreamThrottle(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d < 0 {
			return errors.New("stream throttle cannot be negative")
		}
		cfg.streamThrottle = d
		return nil
	}
}

// WithSummaryDelay sets how long health must be stable before the summary
// is logged.
func WithSummaryDelay(d time.Duration) Option {
	return func(cfg *monitorConfig) error {
		if d <= 0 {
			return errors.New("summary delay must be positive")
		}
		cfg.summaryDelay = d
		return nil
	}
}

// WithClock sets the clock shared by the scheduler and the server.
func WithClock(c clock.Clock) Option {
	return func(cfg *monitorConfig) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = c
		return nil
	}
}

// WithRegistry sets the Prometheus registry poll metrics are registered
// with and served from. Defaults to a fresh registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(cfg *monitorConfig) error {
		if reg == nil {
			return errors.New("registry cannot be nil")
		}
		cfg.registry = reg
		return nil
	}
}

// WithLogger sets the logger for the monitor and everything it wires:
// scheduler, pollers and HTTP server. Defaults to a disabled logger.
//
// Example:
//
//	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
//	m, err := monitor.New(
//	    monitor.WithTargets(api),
//	    monitor.WithLogger(logger),
//	)
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *monitorConfig) error {
		cfg.logger = logger
		return nil
	}
}

// WithStatusCallback registers cb to receive every poll result. Callbacks
// run on the result loop; a panicking callback is logged and skipped. A nil
// cb is ignored.
func WithStatusCallback(cb func(poller.Result)) Option {
	return func(cfg *monitorConfig) error {
		if cb != nil {
			cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		}
		return nil
	}
}

// WithTitle sets the display title served on /api/info and logged at start.
//
// Example:
//
//	m, err := monitor.New(
//	    monitor.WithTargets(api),
//	    monitor.WithTitle("Payments health"),
//	)
func WithTitle(title string) Option {
	return func(cfg *monitorConfig) error {
		cfg.title = title
		return nil
	}
}
