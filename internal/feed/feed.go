// Package feed defines the row-change notification model shared by the
// dispatch services (producers) and the sync watchers (consumers). Events
// describe inserts, updates and deletes of order and delivery rows and are
// published to per-entity and per-pool channels.
package feed

import (
	"context"
	"encoding/json"

	"dispatch/internal/domain"
)

// EventKind classifies a row change.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Table names carried in events.
const (
	TableOrders     = "orders"
	TableDeliveries = "deliveries"
)

// Event is a single row-change notification. New carries the row after the
// change (absent for deletes), Old the row before it (updates and deletes).
type Event struct {
	Kind  EventKind       `json:"kind"`
	Table string          `json:"table"`
	New   json.RawMessage `json:"new,omitempty"`
	Old   json.RawMessage `json:"old,omitempty"`
}

// NewEvent builds an event, marshalling the row payloads. Either row may be
// nil.
func NewEvent(kind EventKind, table string, oldRow, newRow any) (Event, error) {
	ev := Event{Kind: kind, Table: table}

	if oldRow != nil {
		data, err := json.Marshal(oldRow)
		if err != nil {
			return Event{}, err
		}
		ev.Old = data
	}

	if newRow != nil {
		data, err := json.Marshal(newRow)
		if err != nil {
			return Event{}, err
		}
		ev.New = data
	}

	return ev, nil
}

// DecodeNew unmarshals the new-row payload into v.
func (e Event) DecodeNew(v any) error {
	return json.Unmarshal(e.New, v)
}

// DecodeOld unmarshals the old-row payload into v.
func (e Event) DecodeOld(v any) error {
	return json.Unmarshal(e.Old, v)
}

// OrderChannel is the per-order channel watched by both parties of an order.
func OrderChannel(orderID string) string {
	return "orders:" + orderID
}

// EligibleChannel is the per-service-type channel carrying work-queue
// changes for riders.
func EligibleChannel(serviceType domain.ServiceType) string {
	return "eligible:" + string(serviceType)
}

// Publisher publishes events to a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev Event) error
}

// Subscription is an open, exclusively owned event stream. Events is closed
// when the subscription drops or Close is called; the owner is responsible
// for calling Close exactly once.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Subscriber opens subscriptions to channels.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}
