package realtime

import (
	"sync"
	"sync/atomic"
)

const defaultBuffer = 64

// Subscription delivers the changes of one table to a single consumer.
// Close is idempotent and safe to call concurrently with delivery.
type Subscription struct {
	table  string
	filter *Filter
	events chan Change

	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	onClose func()
	onDrop  func(table string)

	overflowed atomic.Bool
}

func newSubscription(table string, filter *Filter, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Subscription{
		table:  table,
		filter: filter,
		events: make(chan Change, buffer),
	}
}

// Table returns the subscribed table name.
func (s *Subscription) Table() string {
	return s.table
}

// Events returns the channel of delivered changes. It is closed by Close.
func (s *Subscription) Events() <-chan Change {
	return s.events
}

// Close detaches the subscription. Subsequent calls do nothing.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()

		if s.onClose != nil {
			s.onClose()
		}
	})
}

// Overflowed reports whether changes were dropped since the previous call
// and clears the mark. A consumer that sees true must resynchronise from the
// source of truth.
func (s *Subscription) Overflowed() bool {
	return s.overflowed.Swap(false)
}

// deliver hands the change to the consumer without blocking. It reports false
// when the change was dropped because the buffer is full.
func (s *Subscription) deliver(change Change) bool {
	if change.Table != s.table || !s.filter.Matches(change.Row) {
		return true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return true
	}

	select {
	case s.events <- change:
		return true
	default:
		s.overflowed.Store(true)
		if s.onDrop != nil {
			s.onDrop(s.table)
		}
		return false
	}
}
