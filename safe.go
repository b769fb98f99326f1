package cadence

import (
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// invokeSafe calls fn with panic recovery. Panics are logged but do not
// propagate into the timer goroutine that delivered the callback.
func invokeSafe[A any](logger zerolog.Logger, callback string, fn func(A), arg A) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("callback", callback).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("callback panicked")
		}
	}()
	fn(arg)
}

// recoverAsError converts a recovered panic into an error carrying a
// correlation ID. The full stack is logged under the same ID so the failure
// reported to callers can be matched with the server-side trace.
func recoverAsError(logger zerolog.Logger, r any) error {
	correlationID := uuid.NewString()
	logger.Error().
		Str("correlation_id", correlationID).
		Str("panic", fmt.Sprintf("%v", r)).
		Str("stack", string(debug.Stack())).
		Msg("operation panic")
	return fmt.Errorf("%w (correlation_id: %s)", ErrOperationPanic, correlationID)
}
