// Package events announces order lifecycle changes to other systems.
package events

import (
	"context"
	"time"
)

// Event types, also used as routing keys.
const (
	OrderCreated               = "order.created"
	OrderPaymentProofSubmitted = "order.payment_proof_submitted"
	OrderProcessed             = "order.processed"
	ServiceStatusChanged       = "service.status_changed"
)

// Event is the message body.
type Event struct {
	Type          string    `json:"type"`
	OrderID       string    `json:"orderId,omitempty"`
	IsServiceOpen *bool     `json:"isServiceOpen,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }
