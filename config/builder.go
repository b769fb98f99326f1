package config

import (
	"fmt"
	"sort"

	"github.com/jpalmerr/cadence/internal/poller"
)

// BuildTargets converts parsed configuration into poller targets, in file
// order.
func BuildTargets(cfg *Config) ([]poller.Target, error) {
	targets := make([]poller.Target, 0, len(cfg.Targets))
	for _, tc := range cfg.Targets {
		t, err := buildTarget(tc)
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", tc.Name, err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func buildTarget(tc TargetConfig) (poller.Target, error) {
	var opts []poller.TargetOption

	if tc.Method != "" {
		opts = append(opts, poller.WithMethod(tc.Method))
	}
	if tc.Timeout != 0 {
		opts = append(opts, poller.WithTimeout(tc.Timeout.Duration()))
	}
	if len(tc.Headers) > 0 {
		opts = append(opts, poller.WithHeaders(mapToKeyValuePairs(tc.Headers)...))
	}
	if len(tc.Labels) > 0 {
		opts = append(opts, poller.WithLabels(mapToKeyValuePairs(tc.Labels)...))
	}
	if tc.Interval != 0 {
		opts = append(opts, poller.WithInterval(tc.Interval.Duration()))
	}
	if tc.Immediate != nil {
		opts = append(opts, poller.WithImmediate(*tc.Immediate))
	}
	if tc.Enabled != nil {
		opts = append(opts, poller.WithEnabled(*tc.Enabled))
	}
	if tc.MaxRetries != 0 {
		opts = append(opts, poller.WithMaxRetries(tc.MaxRetries))
	}
	if tc.SkipOverlap {
		opts = append(opts, poller.WithSkipOverlap(true))
	}

	extractor, err := buildExtractor(tc.Extractor)
	if err != nil {
		return poller.Target{}, err
	}
	if extractor != nil {
		opts = append(opts, poller.WithExtractor(extractor))
	}

	return poller.NewTarget(tc.Name, tc.URL, opts...)
}

// mapToKeyValuePairs flattens m into key-value pairs sorted by key.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// buildExtractor returns nil for the default extractor.
func buildExtractor(ec ExtractorConfig) (poller.Extractor, error) {
	switch ec.Type {
	case "", "default":
		return nil, nil
	case "http":
		return poller.HTTPStatusExtractor, nil
	case "json":
		return poller.JSONFieldExtractor(ec.Path), nil
	case "contains":
		return poller.ContainsExtractor(ec.Text), nil
	case "regex":
		return poller.RegexExtractor(ec.Pattern, ec.Up)
	default:
		return nil, fmt.Errorf("unknown extractor type %q", ec.Type)
	}
}
