// Package events carries domain events from the billing core to downstream
// consumers, either in-process or through RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event names.
const (
	// InvoiceCreated is emitted once a gateway invoice has been matched to a
	// local subscription.
	InvoiceCreated = "invoice.created"

	SubscriptionCanceled = "subscription.canceled"
	SubscriptionResumed  = "subscription.resumed"
	SubscriptionExpired  = "subscription.expired"
)

// ErrRedeliver marks a sink failure that is lost unless the source event is
// delivered again. Producers that can ask for redelivery should do so.
var ErrRedeliver = errors.New("events: event must be redelivered")

// Event is the envelope every sink receives.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurred_at"`
	UserID     string          `json:"user_id"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an event with a fresh id and the JSON encoding of payload.
func New(name, userID string, payload any, at time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode %s payload: %w", name, err)
	}
	return Event{
		ID:         uuid.New(),
		Name:       name,
		OccurredAt: at.UTC(),
		UserID:     userID,
		Payload:    raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("events: decode %s payload: %w", e.Name, err)
	}
	return nil
}

// Sink accepts emitted events. Emission is fire-and-forget from the
// emitter's point of view: a Sink error is reported, never retried.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, e Event) error { return f(ctx, e) }
