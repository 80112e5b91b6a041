// Package registry maps outbox rows to broker topics and typed payloads.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/db/models"
	"github.com/identitywear/storefront-backend/pkg/enums"
	"github.com/identitywear/storefront-backend/pkg/outbox"
	"github.com/identitywear/storefront-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will never publish no matter how often
// it is retried. The relay parks such rows immediately.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "outbox row is not publishable"
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func reject(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func orderCreatedPayload() any { return &payloads.OrderCreatedEvent{} }
func orderStatusPayload() any { return &payloads.OrderStatusChangedEvent{} }

// orderEvents lists every event the storefront emits. All of them describe
// the order aggregate.
var orderEvents = map[enums.OutboxEventType]func() any{
	enums.EventOrderCreated:  orderCreatedPayload,
	enums.EventOrderPaid:     orderStatusPayload,
	enums.EventOrderFailed:   orderStatusPayload,
	enums.EventOrderCanceled: orderStatusPayload,
}

// NewEventRegistry routes every order event to cfg.Topic.
func NewEventRegistry(cfg config.EventsConfig) (*EventRegistry, error) {
	if cfg.Topic == "" {
		return nil, errors.New("orders topic is required")
	}
	entries := make(map[enums.OutboxEventType]EventDescriptor, len(orderEvents))
	for eventType, factory := range orderEvents {
		entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  enums.AggregateOrder,
			Topic:          cfg.Topic,
			PayloadFactory: factory,
		}
	}
	return &EventRegistry{entries: entries}, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	switch {
	case !ok:
		return nil, reject("unsupported event type %s", row.EventType)
	case desc.AggregateType != row.AggregateType:
		return nil, reject("%s belongs to %s, row says %s", row.EventType, desc.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, reject("%s row has no aggregate id", row.EventType)
	}

	env, err := outbox.DecodeEnvelope(row.Payload)
	if err != nil {
		return nil, NewNonRetryableError(err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, reject("%s envelope has no data", row.EventType)
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, reject("decode %s data: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
