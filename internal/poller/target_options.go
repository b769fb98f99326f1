package poller

import (
	"errors"
	"net/http"
	"time"
)

// targetConfig holds mutable state during target construction.
type targetConfig struct {
	labels      map[string]string
	headers     map[string]string
	timeout     time.Duration
	extractor   Extractor
	method      string
	interval    time.Duration
	immediate   bool
	enabled     bool
	maxRetries  int
	skipOverlap bool
}

// TargetOption configures a [Target] during construction.
type TargetOption func(*targetConfig) error

// WithLabels adds key-value metadata. The number of arguments must be even.
func WithLabels(keyValues ...string) TargetOption {
	return func(cfg *targetConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithLabels requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.labels[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithHeaders adds HTTP headers sent with every poll. The number of arguments
// must be even.
func WithHeaders(keyValues ...string) TargetOption {
	return func(cfg *targetConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout sets the per-request timeout. Defaults to 10s.
func WithTimeout(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithExtractor sets how responses are mapped to a [Status]. Defaults to
// [DefaultExtractor].
func WithExtractor(e Extractor) TargetOption {
	return func(cfg *targetConfig) error {
		cfg.extractor = e
		return nil
	}
}

// WithMethod sets the request method: GET (default), HEAD or POST.
func WithMethod(method string) TargetOption {
	return func(cfg *targetConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}

// WithInterval overrides the scheduler's interval for this target. The
// interval must be between 1s and 1h.
func WithInterval(d time.Duration) TargetOption {
	return func(cfg *targetConfig) error {
		if d < time.Second {
			return errors.New("interval must be at least 1 second")
		}
		if d > time.Hour {
			return errors.New("interval must not exceed 1 hour")
		}
		cfg.interval = d
		return nil
	}
}

// WithImmediate controls whether polling starts with the scheduler. A target
// that does not start immediately waits for an explicit restart. Defaults to
// true.
func WithImmediate(immediate bool) TargetOption {
	return func(cfg *targetConfig) error {
		cfg.immediate = immediate
		return nil
	}
}

// WithEnabled gates the automatic start. A disabled target is registered but
// idle until restarted. Defaults to true.
func WithEnabled(enabled bool) TargetOption {
	return func(cfg *targetConfig) error {
		cfg.enabled = enabled
		return nil
	}
}

// WithMaxRetries stops polling the target after n consecutive failed polls.
// Zero or negative means never. Defaults to -1.
func WithMaxRetries(n int) TargetOption {
	return func(cfg *targetConfig) error {
		cfg.maxRetries = n
		return nil
	}
}

// WithSkipOverlap skips a tick while the previous request to the target is
// still in flight.
func WithSkipOverlap(skip bool) TargetOption {
	return func(cfg *targetConfig) error {
		cfg.skipOverlap = skip
		return nil
	}
}
