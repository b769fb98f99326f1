package cadence

import "time"

// PollObserver is told about every tick and session transition of a [Poller].
//
// Implementations may forward the events to a metrics system. Methods are
// called inline from the poller's goroutines, outside its lock, so they must
// be cheap and safe for concurrent use.
type PollObserver interface {
	// TickStarted is called when a tick launches an invocation.
	TickStarted(name string)

	// TickFinished is called when an invocation settles, before its outcome
	// is applied. err is nil on success.
	TickFinished(name string, err error, latency time.Duration)

	// TickSkipped is called when [WithSkipOverlap] suppresses a tick.
	TickSkipped(name string)

	// SessionChanged is called when a session starts or ends.
	SessionChanged(name string, active bool, retryCount int)
}

type noopObserver struct{}

// NoopObserver returns a [PollObserver] that discards all events.
func NoopObserver() PollObserver {
	return noopObserver{}
}

func (noopObserver) TickStarted(string)                        {}
func (noopObserver) TickFinished(string, error, time.Duration) {}
func (noopObserver) TickSkipped(string)                        {}
func (noopObserver) SessionChanged(string, bool, int)          {}
