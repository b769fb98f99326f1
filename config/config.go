// Package config parses the YAML configuration of the cadence binary.
//
// Example configuration:
//
//	port: 8080
//	poll_interval: 15s
//	history_size: 50
//	stream_throttle: 250ms
//	summary_debounce: 2s
//	log:
//	  level: info
//	  format: json
//
//	targets:
//	  - name: GitHub API
//	    url: https://api.github.com
//	    timeout: 5s
//	    extractor: json:status
//	    max_retries: 5
//	  - name: Batch
//	    url: ${BATCH_URL:-http://localhost:9000/health}
//	    immediate: false
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/cadence/internal/poller"
)

// minPollInterval keeps a config from hammering its targets.
const minPollInterval = 1 * time.Second

const (
	defaultPort            = 8080
	defaultPollInterval    = 15 * time.Second
	defaultStreamThrottle  = 250 * time.Millisecond
	defaultSummaryDebounce = 2 * time.Second
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
)

// Config is the root of the YAML file. Use [Load] or [Parse] to create one.
type Config struct {
	// Title names the instance in logs and API responses.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval applies to targets without their own interval.
	// Defaults to 15s.
	PollInterval Duration `yaml:"poll_interval"`

	// HistorySize is the number of results kept per target. Zero selects
	// the store default.
	HistorySize int `yaml:"history_size"`

	// StreamThrottle is the minimum spacing between SSE flushes to one
	// client. Defaults to 250ms.
	StreamThrottle Duration `yaml:"stream_throttle"`

	// SummaryDebounce is how long target health must be stable before the
	// health summary is logged. Defaults to 2s.
	SummaryDebounce Duration `yaml:"summary_debounce"`

	Log LogConfig `yaml:"log"`

	Targets []TargetConfig `yaml:"targets"`
}

// LogConfig selects the process logger.
type LogConfig struct {
	// Level is a zerolog level name. Defaults to info.
	Level string `yaml:"level"`

	// Format is json (default) or text.
	Format string `yaml:"format"`
}

// TargetConfig defines one polled target.
type TargetConfig struct {
	Name string `yaml:"name"`

	// URL supports environment variable substitution: ${VAR} or
	// ${VAR:-default}.
	URL string `yaml:"url"`

	// Method is GET (default), HEAD or POST.
	Method string `yaml:"method"`

	// Timeout is the request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are sent with every request. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`

	Labels map[string]string `yaml:"labels"`

	Extractor ExtractorConfig `yaml:"extractor"`

	// Interval overrides poll_interval for this target. Must be between 1s
	// and 1h.
	Interval Duration `yaml:"interval"`

	// Immediate starts polling with the process. Defaults to true.
	Immediate *bool `yaml:"immediate"`

	// Enabled gates the automatic start. Defaults to true.
	Enabled *bool `yaml:"enabled"`

	// MaxRetries stops polling after that many consecutive failed requests.
	// Zero or negative means never.
	MaxRetries int `yaml:"max_retries"`

	// SkipOverlap skips a tick while the previous request is in flight.
	SkipOverlap bool `yaml:"skip_overlap"`
}

// ExtractorConfig specifies how a response maps to a status.
//
// Shorthand string:
//
//	extractor: json:data.health.status
//	extractor: contains:ok
//	extractor: http
//	extractor: default
//
// Structured object:
//
//	extractor:
//	  type: regex
//	  pattern: 'state=(\w+)'
//	  up: green
type ExtractorConfig struct {
	// Type is one of default, http, json, contains, regex.
	Type string

	// Path is the dotted JSON field path (json).
	Path string

	// Text is the substring to look for (contains).
	Text string

	// Pattern is a regular expression with a capture group (regex).
	Pattern string

	// Up is the captured value that means up (regex).
	Up string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for ExtractorConfig.
func (e *ExtractorConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return e.parseShorthand(s)

	case yaml.MappingNode:
		// separate type avoids recursing into this method
		var raw struct {
			Type    string `yaml:"type"`
			Path    string `yaml:"path"`
			Text    string `yaml:"text"`
			Pattern string `yaml:"pattern"`
			Up      string `yaml:"up"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		*e = ExtractorConfig(raw)
		return nil
	}

	return fmt.Errorf("extractor must be a string or object, got %v", node.Kind)
}

// parseShorthand accepts "default", "http", "json:path" and "contains:text".
func (e *ExtractorConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	if kind, value, ok := strings.Cut(s, ":"); ok {
		e.Type = kind
		switch kind {
		case "json":
			e.Path = value
		case "contains":
			e.Text = value
		default:
			return fmt.Errorf("unknown extractor type %q", kind)
		}
		return nil
	}

	switch s {
	case "default", "http":
		e.Type = s
	default:
		return fmt.Errorf("unknown extractor %q (expected 'default', 'http', 'json:path', or 'contains:text')", s)
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default}. Group 2 is non-empty
// when a default is given; group 3 holds it.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment values.
// An unset variable without a default is an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		value, exists := os.LookupEnv(name)
		if exists {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults, expands
// environment variables in target URLs and header values, and validates the
// result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}
	if c.StreamThrottle == 0 {
		c.StreamThrottle = Duration(defaultStreamThrottle)
	}
	if c.SummaryDebounce == 0 {
		c.SummaryDebounce = Duration(defaultSummaryDebounce)
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
}

// Validate checks the values that flags and environment variables can
// override after parsing.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func (c *Config) expandAndValidate() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("history_size cannot be negative, got %d", c.HistorySize)
	}
	if c.StreamThrottle < 0 {
		return fmt.Errorf("stream_throttle cannot be negative, got %s", c.StreamThrottle.Duration())
	}
	if c.SummaryDebounce < 0 {
		return fmt.Errorf("summary_debounce cannot be negative, got %s", c.SummaryDebounce.Duration())
	}

	if len(c.Targets) == 0 {
		return errors.New("at least one target must be defined")
	}

	seen := make(map[string]int, len(c.Targets))
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.Name == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}
		if first, dup := seen[t.Name]; dup {
			return fmt.Errorf("targets[%d] (%s): duplicate name, first used by targets[%d]", i, t.Name, first)
		}
		seen[t.Name] = i

		if err := t.expandAndValidate(fmt.Sprintf("targets[%d] (%s)", i, t.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (t *TargetConfig) expandAndValidate(where string) error {
	if t.URL == "" {
		return fmt.Errorf("%s: url is required", where)
	}
	expanded, err := expandEnvVars(t.URL)
	if err != nil {
		return fmt.Errorf("%s: url: %w", where, err)
	}
	t.URL = expanded

	parsedURL, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("%s: invalid url: %w", where, err)
	}
	if parsedURL.Scheme == "" {
		return fmt.Errorf("%s: url must have a scheme (http:// or https://)", where)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s: url scheme must be http or https, got %q", where, parsedURL.Scheme)
	}

	for k, v := range t.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("%s: headers[%s]: %w", where, k, err)
		}
		t.Headers[k] = expanded
	}

	switch t.Method {
	case "", "GET", "HEAD", "POST":
	default:
		return fmt.Errorf("%s: method must be GET, HEAD, or POST", where)
	}

	if t.Timeout != 0 && t.Timeout.Duration() < time.Second {
		return fmt.Errorf("%s: timeout must be at least 1s if specified, got %s", where, t.Timeout.Duration())
	}

	if t.Interval != 0 {
		if t.Interval.Duration() < time.Second {
			return fmt.Errorf("%s: interval must be at least 1s, got %s", where, t.Interval.Duration())
		}
		if t.Interval.Duration() > time.Hour {
			return fmt.Errorf("%s: interval must not exceed 1h, got %s", where, t.Interval.Duration())
		}
	}

	return validateExtractor(t.Extractor, where)
}

func validateExtractor(e ExtractorConfig, where string) error {
	switch e.Type {
	case "", "default", "http":
	case "json":
		if e.Path == "" {
			return fmt.Errorf("%s: extractor type 'json' requires a path", where)
		}
	case "contains":
		if e.Text == "" {
			return fmt.Errorf("%s: extractor type 'contains' requires text", where)
		}
	case "regex":
		if e.Up == "" {
			return fmt.Errorf("%s: extractor type 'regex' requires an up value", where)
		}
		if _, err := poller.RegexExtractor(e.Pattern, e.Up); err != nil {
			return fmt.Errorf("%s: extractor pattern: %w", where, err)
		}
	default:
		return fmt.Errorf("%s: unknown extractor type %q", where, e.Type)
	}
	return nil
}
