package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "changes."

// Subject returns the NATS subject carrying changes for table.
func Subject(table string) string {
	return subjectPrefix + table
}

// NATSBroker fans changes out across processes through NATS core subjects.
type NATSBroker struct {
	nc     *nats.Conn
	owned  bool
	logger *slog.Logger
	onDrop func(table string)
}

// ConnectNATS dials url and returns a broker that owns the connection.
func ConnectNATS(url string, logger *slog.Logger, onDrop func(table string)) (*NATSBroker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("fitfriends"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	b := NewNATSBroker(nc, logger, onDrop)
	b.owned = true
	return b, nil
}

// NewNATSBroker wraps an existing connection. Close leaves the connection open.
func NewNATSBroker(nc *nats.Conn, logger *slog.Logger, onDrop func(table string)) *NATSBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSBroker{nc: nc, logger: logger, onDrop: onDrop}
}

// Publish sends the change on the subject of its table.
func (b *NATSBroker) Publish(ctx context.Context, change Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.nc.IsClosed() {
		return ErrClosed
	}

	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}

	if err := b.nc.Publish(Subject(change.Table), data); err != nil {
		return fmt.Errorf("publish change: %w", err)
	}
	return nil
}

// Subscribe attaches to the table subject. Filtering happens on receipt.
func (b *NATSBroker) Subscribe(ctx context.Context, table string, filter *Filter) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.nc.IsClosed() {
		return nil, ErrClosed
	}

	sub := newSubscription(table, filter, defaultBuffer)
	sub.onDrop = b.onDrop

	natsSub, err := b.nc.Subscribe(Subject(table), func(msg *nats.Msg) {
		var change Change
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			b.logger.Error("invalid change payload", "subject", msg.Subject, "error", err)
			return
		}
		if !sub.deliver(change) {
			b.logger.Warn("dropped change for slow subscriber", "table", change.Table, "event", change.Event)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	sub.onClose = func() {
		if err := natsSub.Unsubscribe(); err != nil && !b.nc.IsClosed() {
			b.logger.Warn("unsubscribe changes", "table", table, "error", err)
		}
	}
	return sub, nil
}

// Close drains the connection when the broker owns it.
func (b *NATSBroker) Close() error {
	if !b.owned || b.nc.IsClosed() {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}

var _ Broker = (*NATSBroker)(nil)
