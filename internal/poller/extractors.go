package poller

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// healthWords maps the lower-cased values health endpoints commonly report.
// Anything not listed is treated as down.
var healthWords = map[string]Status{
	"ok":          StatusUp,
	"healthy":     StatusUp,
	"up":          StatusUp,
	"active":      StatusUp,
	"running":     StatusUp,
	"pass":        StatusUp,
	"passed":      StatusUp,
	"true":        StatusUp,
	"green":       StatusUp,
	"none":        StatusUp,
	"operational": StatusUp,
	"degraded":    StatusDegraded,
	"warning":     StatusDegraded,
	"warn":        StatusDegraded,
	"partial":     StatusDegraded,
	"yellow":      StatusDegraded,
	"amber":       StatusDegraded,
}

func statusFromWord(word string) Status {
	if s, ok := healthWords[strings.ToLower(word)]; ok {
		return s
	}
	return StatusDown
}

// HTTPStatusExtractor ignores the body: 2xx is up, 4xx degraded, anything
// else down.
var HTTPStatusExtractor Extractor = func(_ []byte, statusCode int) Status {
	switch statusCode / 100 {
	case 2:
		return StatusUp
	case 4:
		return StatusDegraded
	default:
		return StatusDown
	}
}

// JSONFieldExtractor reads the field at a dot-separated path, e.g.
// "data.health.status", and maps its value through the common health
// vocabulary. Booleans and the numbers 0 and 1 read as false and true.
//
// A body that is not JSON, or a missing field, yields [StatusUnknown].
func JSONFieldExtractor(path string) Extractor {
	keys := strings.Split(path, ".")

	return func(body []byte, _ int) Status {
		var doc any
		if err := json.Unmarshal(body, &doc); err != nil {
			return StatusUnknown
		}

		word, ok := lookupJSON(doc, keys)
		if !ok {
			return StatusUnknown
		}
		return statusFromWord(word)
	}
}

// lookupJSON follows keys through nested objects and renders the leaf as a
// word.
func lookupJSON(doc any, keys []string) (string, bool) {
	node := doc
	for _, key := range keys {
		obj, isObj := node.(map[string]any)
		if !isObj {
			return "", false
		}
		if node, isObj = obj[key]; !isObj {
			return "", false
		}
	}

	switch v := node.(type) {
	case string:
		return v, v != ""
	case bool:
		return strconv.FormatBool(v), true
	case float64:
		switch v {
		case 0:
			return "false", true
		case 1:
			return "true", true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}

// RegexExtractor matches the body against pattern, which must have a capture
// group. The target is up when the first group equals upMatch (ignoring
// case), down when it differs, and unknown when the pattern does not match.
func RegexExtractor(pattern, upMatch string) (Extractor, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if re.NumSubexp() < 1 {
		return nil, fmt.Errorf("pattern %q has no capture group", pattern)
	}

	return func(body []byte, _ int) Status {
		m := re.FindSubmatch(body)
		if m == nil {
			return StatusUnknown
		}
		if strings.EqualFold(string(m[1]), upMatch) {
			return StatusUp
		}
		return StatusDown
	}, nil
}

// MustRegexExtractor is like [RegexExtractor] but panics on a bad pattern.
func MustRegexExtractor(pattern, upMatch string) Extractor {
	e, err := RegexExtractor(pattern, upMatch)
	if err != nil {
		panic("poller: " + err.Error())
	}
	return e
}

// ContainsExtractor reports up when the body contains text, ignoring case,
// and down otherwise.
func ContainsExtractor(text string) Extractor {
	needle := strings.ToLower(text)
	return func(body []byte, _ int) Status {
		if strings.Contains(strings.ToLower(string(body)), needle) {
			return StatusUp
		}
		return StatusDown
	}
}

// FirstMatch tries extractors in order and returns the first verdict that is
// not [StatusUnknown].
func FirstMatch(extractors ...Extractor) Extractor {
	return func(body []byte, statusCode int) Status {
		for _, e := range extractors {
			if s := e(body, statusCode); s != StatusUnknown {
				return s
			}
		}
		return StatusUnknown
	}
}

// DefaultExtractor reads a top-level JSON "status" field and falls back to the
// HTTP status code.
var DefaultExtractor = FirstMatch(
	JSONFieldExtractor("status"),
	HTTPStatusExtractor,
)
