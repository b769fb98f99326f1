package store

import (
	"errors"
	"sort"
	"sync"

	"github.com/jpalmerr/cadence"
)

const (
	// DefaultHistorySize is the number of records kept per target when no
	// size is given.
	DefaultHistorySize = 50

	subscriberBuffer = 100
)

// MemoryStore is an in-memory [Store].
//
// Each target's history is a [cadence.Queue] bounded to the history size
// that evicts its oldest record when full. Updates reach subscribers through
// buffered channels with non-blocking sends; a full subscriber misses the
// update rather than blocking the poller.
type MemoryStore struct {
	historyOpts []cadence.QueueOption

	mu      sync.RWMutex
	latest  map[string]Record
	history map[string]*cadence.Queue[Record]

	subMu       sync.RWMutex
	subscribers map[chan Record]struct{}
}

// NewMemoryStore creates a [MemoryStore] keeping historySize records per
// target. Zero selects [DefaultHistorySize].
//
// Returns an error if historySize is negative.
func NewMemoryStore(historySize int) (*MemoryStore, error) {
	if historySize < 0 {
		return nil, errors.New("history size cannot be negative")
	}
	if historySize == 0 {
		historySize = DefaultHistorySize
	}

	opts := []cadence.QueueOption{
		cadence.WithMaxSize(historySize),
		cadence.WithOverflow(cadence.OverflowShift),
	}
	if _, err := cadence.NewQueue[Record](opts...); err != nil {
		return nil, err
	}

	return &MemoryStore{
		historyOpts: opts,
		latest:      make(map[string]Record),
		history:     make(map[string]*cadence.Queue[Record]),
		subscribers: make(map[chan Record]struct{}),
	}, nil
}

// Update stores record as the latest for its target, appends it to the
// target's history and notifies subscribers.
func (m *MemoryStore) Update(record Record) {
	m.mu.Lock()
	m.latest[record.Name] = record
	q, ok := m.history[record.Name]
	if !ok {
		// options were validated by NewMemoryStore
		q, _ = cadence.NewQueue[Record](m.historyOpts...)
		m.history[record.Name] = q
	}
	// shift overflow never fails
	_ = q.Enqueue(record)
	m.mu.Unlock()

	m.notifySubscribers(record)
}

// GetAll returns the latest record of every target, ordered by name.
func (m *MemoryStore) GetAll() []Record {
	m.mu.RLock()
	records := make([]Record, 0, len(m.latest))
	for _, r := range m.latest {
		records = append(records, r)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Name < records[j].Name
	})
	return records
}

// Get returns the latest record for name.
func (m *MemoryStore) Get(name string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.latest[name]
	return r, ok
}

// History returns the retained records for name, oldest first. It returns
// nil for a target that was never updated.
func (m *MemoryStore) History(name string) []Record {
	m.mu.RLock()
	q, ok := m.history[name]
	m.mu.RUnlock()

	if !ok {
		return nil
	}
	return q.Items()
}

// Subscribe creates a subscription with a buffer of 100 updates.
func (m *MemoryStore) Subscribe() <-chan Record {
	ch := make(chan Record, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Record) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (m *MemoryStore) notifySubscribers(record Record) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- record:
		default:
			// slow subscriber
		}
	}
}
