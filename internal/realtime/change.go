package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrClosed is returned when publishing or subscribing on a closed broker.
var ErrClosed = errors.New("realtime broker closed")

// Event names the kind of row change carried by a Change.
type Event string

const (
	EventInsert Event = "insert"
	EventUpdate Event = "update"
	EventDelete Event = "delete"
)

// Change is a single row change on a table.
type Change struct {
	Event Event           `json:"event"`
	Table string          `json:"table"`
	Row   json.RawMessage `json:"row"`
}

// NewChange encodes row as the payload of a change on table.
func NewChange(event Event, table string, row any) (Change, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return Change{}, fmt.Errorf("encode %s row: %w", table, err)
	}
	return Change{Event: event, Table: table, Row: data}, nil
}

// Decode unmarshals the row payload into v.
func (c Change) Decode(v any) error {
	if len(c.Row) == 0 {
		return errors.New("realtime: empty row payload")
	}
	return json.Unmarshal(c.Row, v)
}

// Filter restricts a subscription to rows whose top-level Column equals Value.
type Filter struct {
	Column string
	Value  string
}

// Matches reports whether the row satisfies the filter. A nil filter matches everything.
func (f *Filter) Matches(row json.RawMessage) bool {
	if f == nil || f.Column == "" {
		return true
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}

	raw, ok := fields[f.Column]
	if !ok {
		return false
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return false
	}
	return fmt.Sprint(value) == f.Value
}

// Publisher emits row changes.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// Broker fans row changes out to table subscribers.
type Broker interface {
	Publisher
	Subscribe(ctx context.Context, table string, filter *Filter) (*Subscription, error)
	Close() error
}
