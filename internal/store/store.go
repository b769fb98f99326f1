package store

import "time"

// Record is the stored outcome of one poll, shaped for the JSON API and the
// SSE stream.
type Record struct {
	// Name is the target's name.
	Name string `json:"name"`

	URL    string            `json:"url"`
	Status string            `json:"status"`
	Labels map[string]string `json:"labels"`

	// ResponseTimeMs is the request latency in milliseconds.
	ResponseTimeMs int64 `json:"response_time_ms"`

	// StatusCode is zero if no response was received.
	StatusCode int `json:"status_code,omitempty"`

	CheckedAt time.Time `json:"checked_at"`

	// Error is nil when the request succeeded, even if the target is down.
	Error *string `json:"error"`

	RetryCount int    `json:"retry_count"`
	SessionID  string `json:"session_id,omitempty"`
}

// Store keeps the latest [Record] per target plus a bounded history, and
// fans updates out to subscribers.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Update records a poll outcome and notifies subscribers. The latest
	// record is keyed by Name.
	Update(record Record)

	// GetAll returns the latest record of every target, ordered by name.
	GetAll() []Record

	// Get returns the latest record of one target.
	Get(name string) (Record, bool)

	// History returns the retained records of one target, oldest first.
	History(name string) []Record

	// Subscribe returns a buffered channel of updates. Slow consumers miss
	// updates. Callers must Unsubscribe.
	Subscribe() <-chan Record

	// Unsubscribe removes a subscription and closes its channel. Unknown or
	// already removed channels are ignored.
	Unsubscribe(ch <-chan Record)
}
