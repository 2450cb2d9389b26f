// Package events defines the logical events the core emits after successful
// commits, stored transactionally in an outbox and relayed to a pluggable
// sink. Delivery is at-least-once; consumers deduplicate on event ID.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// Type identifies the kind of event.
type Type string

const (
	// TypeOrderCreated is emitted when a cart converts to an order.
	TypeOrderCreated Type = "order.created"
	// TypeOrderStatusChanged is emitted on every order status transition.
	TypeOrderStatusChanged Type = "order.status_changed"
	// TypeCommissionCreated is emitted when a referral commission is recorded.
	TypeCommissionCreated Type = "commission.created"
	// TypeStockBackordered is emitted when a notify-policy reservation drives
	// stock below zero.
	TypeStockBackordered Type = "stock.backordered"
)

// Event is an outbox row: a fact about an aggregate, serialized at commit time.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	Type          Type
	Payload       json.RawMessage
	CreatedAt     time.Time
}

// New builds an event with a fresh ID and the payload marshaled to JSON.
func New(aggregateType, aggregateID string, t Type, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, errors.Wrap(err, "marshal event payload")
	}
	return Event{
		ID:            uuid.New().String(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          t,
		Payload:       body,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Appender stores an event in the outbox within the caller's transaction.
type Appender interface {
	Append(ctx context.Context, e Event) error
}

// Source reads and acknowledges unpublished outbox rows.
type Source interface {
	Unpublished(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []string) error
}

// Sink delivers events to the outside world.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}
