package cadence

import "errors"

var (
	// ErrQueueFull is returned by [Queue.Enqueue] and [Queue.EnqueueMany] when
	// the queue is at capacity and uses [OverflowError].
	ErrQueueFull = errors.New("queue is full")

	// ErrOperationPanic wraps the failure recorded when a polled [Operation]
	// panics. The error text carries the correlation ID under which the stack
	// trace was logged.
	ErrOperationPanic = errors.New("operation panicked")
)
