package realtime

import (
	"context"
	"log/slog"
	"sync"
)

// MemoryBroker is an in-process Broker used in tests and single-node deployments.
type MemoryBroker struct {
	logger *slog.Logger
	onDrop func(table string)

	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

// NewMemoryBroker constructs an empty in-process broker. onDrop may be nil.
func NewMemoryBroker(logger *slog.Logger, onDrop func(table string)) *MemoryBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBroker{
		logger: logger,
		onDrop: onDrop,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Publish delivers the change to every current subscriber of its table.
func (b *MemoryBroker) Publish(ctx context.Context, change Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	targets := make([]*Subscription, 0, len(b.subs[change.Table]))
	for sub := range b.subs[change.Table] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		if !sub.deliver(change) {
			b.logger.Warn("dropped change for slow subscriber", "table", change.Table, "event", change.Event)
		}
	}
	return nil
}

// Subscribe attaches a new subscriber to table.
func (b *MemoryBroker) Subscribe(ctx context.Context, table string, filter *Filter) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := newSubscription(table, filter, defaultBuffer)
	sub.onDrop = b.onDrop
	sub.onClose = func() { b.remove(sub) }

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if b.subs[table] == nil {
		b.subs[table] = make(map[*Subscription]struct{})
	}
	b.subs[table][sub] = struct{}{}
	return sub, nil
}

// Subscribers reports how many subscriptions are attached to table.
func (b *MemoryBroker) Subscribers(table string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[table])
}

// Close detaches every subscription and rejects further use.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var all []*Subscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
	return nil
}

func (b *MemoryBroker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[sub.table]
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subs, sub.table)
	}
}

var _ Broker = (*MemoryBroker)(nil)
