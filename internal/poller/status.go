package poller

import "time"

// Status is the health state of a target.
type Status string

const (
	// StatusUp means the target responded and reported itself healthy.
	StatusUp Status = "up"

	// StatusDown means the target is unreachable or reported a failure.
	StatusDown Status = "down"

	// StatusDegraded means the target responded but is partially functional.
	StatusDegraded Status = "degraded"

	// StatusUnknown means the response could not be interpreted.
	StatusUnknown Status = "unknown"
)

// String returns the status as written in results and the API.
func (s Status) String() string {
	return string(s)
}

// Extractor determines the [Status] of a target from its HTTP response.
//
// Extractors run inside the poll operation. A panicking extractor fails the
// tick with cadence.ErrOperationPanic and the target is reported down.
type Extractor func(body []byte, statusCode int) Status

// Result is the outcome of one poll of a target.
type Result struct {
	// Target is the name of the polled target.
	Target string

	URL    string
	Status Status
	Labels map[string]string

	// Latency is the time taken by the HTTP exchange.
	Latency time.Duration

	CheckedAt time.Time

	// Error is set when the request failed or the extractor panicked. A nil
	// Error does not imply StatusUp.
	Error error

	// StatusCode is zero if no response was received.
	StatusCode int

	// RetryCount is the number of consecutive failed polls, this one
	// included.
	RetryCount int

	// SessionID identifies the polling session that produced the result.
	SessionID string
}
