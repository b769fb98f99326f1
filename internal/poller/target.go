package poller

import (
	"errors"
	"net/url"
	"time"
)

const defaultTargetTimeout = 10 * time.Second

// Target is an HTTP endpoint polled by a [Scheduler].
//
// Target is immutable after [NewTarget]; getters return copies of maps.
type Target struct {
	name        string
	url         string
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

// Name returns the target's display name. Names identify targets in the
// store, the API and logs, so they are unique within a scheduler.
func (t Target) Name() string { return t.name }

// URL returns the URL polled for this target.
func (t Target) URL() string { return t.url }

// Labels returns a copy of the target's labels. Labels are attached to every
// result and exported in the API. Returns an empty map if none are set.
func (t Target) Labels() map[string]string { return copyMap(t.labels) }

// Headers returns a copy of the HTTP headers sent with every poll request.
func (t Target) Headers() map[string]string { return copyMap(t.headers) }

// Timeout returns the per-request timeout. Defaults to 10 seconds.
func (t Target) Timeout() time.Duration { return t.timeout }

// Method returns the HTTP method used for poll requests. Defaults to GET.
func (t Target) Method() string { return t.method }

// Immediate reports whether the target is polled as soon as the scheduler
// starts. A target that is not immediate waits for [Scheduler.Restart].
func (t Target) Immediate() bool { return t.immediate }

// Enabled reports whether the automatic start requested by [WithImmediate]
// is allowed. It is only read when the scheduler starts.
func (t Target) Enabled() bool { return t.enabled }

// MaxRetries returns the number of consecutive failed polls that stop the
// target's session. Zero or negative means unlimited.
func (t Target) MaxRetries() int { return t.maxRetries }

// SkipOverlap reports whether a tick is skipped while the previous request
// to this target is still in flight.
func (t Target) SkipOverlap() bool { return t.skipOverlap }

// Interval returns the target's own polling interval. Returns 0 if none was
// set, meaning the scheduler's interval applies.
func (t Target) Interval() time.Duration { return t.interval }

// Extractor returns the target's status [Extractor]. Returns nil if none was
// set, in which case the scheduler applies [DefaultExtractor].
func (t Target) Extractor() Extractor { return t.extractor }

// NewTarget creates a [Target] polled with GET every scheduler interval,
// starting as soon as the scheduler starts, with unlimited retries.
//
// Returns an error if name is empty or rawURL has no scheme.
func NewTarget(name, rawURL string, opts ...TargetOption) (Target, error) {
	if name == "" {
		return Target{}, errors.New("target name cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme == "" {
		return Target{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &targetConfig{
		labels:     make(map[string]string),
		headers:    make(map[string]string),
		timeout:    defaultTargetTimeout,
		immediate:  true,
		enabled:    true,
		maxRetries: -1,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Target{}, err
		}
	}

	return Target{
		name:        name,
		url:         rawURL,
		labels:      cfg.labels,
		headers:     cfg.headers,
		timeout:     cfg.timeout,
		extractor:   cfg.extractor,
		method:      cfg.method,
		interval:    cfg.interval,
		immediate:   cfg.immediate,
		enabled:     cfg.enabled,
		maxRetries:  cfg.maxRetries,
		skipOverlap: cfg.skipOverlap,
	}, nil
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
