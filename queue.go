package cadence

import (
	"encoding/json"
	"fmt"
	"sync"
)

// OverflowStrategy decides what a bounded [Queue] does with items that do not
// fit.
type OverflowStrategy string

const (
	// OverflowDrop discards incoming items that do not fit.
	OverflowDrop OverflowStrategy = "drop"

	// OverflowError rejects the whole call with [ErrQueueFull].
	OverflowError OverflowStrategy = "error"

	// OverflowShift evicts the oldest items to make room for incoming ones.
	OverflowShift OverflowStrategy = "shift"
)

// queueConfig holds mutable state during Queue construction.
type queueConfig struct {
	initial  any
	maxSize  int
	overflow OverflowStrategy
}

// QueueOption configures a [Queue] during construction.
type QueueOption func(*queueConfig) error

// WithMaxSize bounds the queue. Zero means unbounded.
//
// Returns an error if n is negative.
func WithMaxSize(n int) QueueOption {
	return func(cfg *queueConfig) error {
		if n < 0 {
			return fmt.Errorf("max size cannot be negative, got %d", n)
		}
		cfg.maxSize = n
		return nil
	}
}

// WithOverflow sets the overflow strategy of a bounded queue. Defaults to
// [OverflowDrop].
//
// Returns an error for an unknown strategy.
func WithOverflow(s OverflowStrategy) QueueOption {
	return func(cfg *queueConfig) error {
		switch s {
		case OverflowDrop, OverflowError, OverflowShift:
			cfg.overflow = s
			return nil
		default:
			return fmt.Errorf("unknown overflow strategy %q", s)
		}
	}
}

// WithInitialItems seeds the queue. Initial items are not subject to the size
// bound.
//
// [NewQueue] returns an error if T does not match the queue's item type.
func WithInitialItems[T any](items ...T) QueueOption {
	return func(cfg *queueConfig) error {
		cfg.initial = items
		return nil
	}
}

// Queue is a FIFO queue with an optional size bound.
//
// Queue is safe for concurrent use.
type Queue[T any] struct {
	maxSize  int
	overflow OverflowStrategy

	mu    sync.RWMutex
	items []T
}

// NewQueue creates an empty, unbounded [Queue] unless options say otherwise.
//
// Options: [WithMaxSize], [WithOverflow], [WithInitialItems].
func NewQueue[T any](opts ...QueueOption) (*Queue[T], error) {
	cfg := &queueConfig{overflow: OverflowDrop}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	q := &Queue[T]{
		maxSize:  cfg.maxSize,
		overflow: cfg.overflow,
	}
	if cfg.initial != nil {
		initial, ok := cfg.initial.([]T)
		if !ok {
			var zero T
			return nil, fmt.Errorf("initial items have type %T, want []%T", cfg.initial, zero)
		}
		q.items = append([]T(nil), initial...)
	}
	return q, nil
}

// Enqueue appends item. On a full queue the overflow strategy applies: the
// item is dropped, [ErrQueueFull] is returned, or the oldest item is evicted.
func (q *Queue[T]) Enqueue(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		switch q.overflow {
		case OverflowError:
			return ErrQueueFull
		case OverflowShift:
			copy(q.items, q.items[1:])
			q.items[len(q.items)-1] = item
		}
		return nil
	}

	q.items = append(q.items, item)
	return nil
}

// EnqueueMany appends items in order.
//
// When not all items fit: [OverflowDrop] keeps as many leading items as there
// is room for, [OverflowError] rejects the call without changes, and
// [OverflowShift] keeps the newest maxSize items of the queue followed by the
// incoming items.
func (q *Queue[T]) EnqueueMany(items ...T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize <= 0 {
		q.items = append(q.items, items...)
		return nil
	}

	free := q.maxSize - len(q.items)
	if free >= len(items) {
		q.items = append(q.items, items...)
		return nil
	}

	switch q.overflow {
	case OverflowError:
		return ErrQueueFull
	case OverflowShift:
		combined := append(q.items, items...)
		q.items = append([]T(nil), combined[len(combined)-q.maxSize:]...)
	default:
		if free > 0 {
			q.items = append(q.items, items[:free]...)
		}
	}
	return nil
}

// Dequeue removes and returns the oldest item. ok is false on an empty queue.
func (q *Queue[T]) Dequeue() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Peek returns the oldest item without removing it.
func (q *Queue[T]) Peek() (item T, ok bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.items) == 0 {
		return item, false
	}
	return q.items[0], true
}

// PeekLast returns the newest item without removing it.
func (q *Queue[T]) PeekLast() (item T, ok bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.items) == 0 {
		return item, false
	}
	return q.items[len(q.items)-1], true
}

// Clear removes every item.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// IsEmpty reports whether the queue holds no items.
func (q *Queue[T]) IsEmpty() bool {
	return q.Len() == 0
}

// IsFull reports whether a bounded queue is at capacity. An unbounded queue
// is never full.
func (q *Queue[T]) IsFull() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.maxSize > 0 && len(q.items) >= q.maxSize
}

// Items returns a copy of the queued items, oldest first.
func (q *Queue[T]) Items() []T {
	q.mu.RLock()
	defer q.mu.RUnlock()

	cp := make([]T, len(q.items))
	copy(cp, q.items)
	return cp
}

// String returns the JSON encoding of the queued items.
func (q *Queue[T]) String() string {
	data, err := json.Marshal(q.Items())
	if err != nil {
		return fmt.Sprintf("%v", q.Items())
	}
	return string(data)
}
