package enums

import "slices"

// OutboxAggregateType names the entity an outbox row describes.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated  OutboxEventType = "order_created"
	EventOrderPaid     OutboxEventType = "order_paid"
	EventOrderFailed   OutboxEventType = "order_failed"
	EventOrderCanceled OutboxEventType = "order_canceled"
)

var outboxEventTypes = []OutboxEventType{EventOrderCreated, EventOrderPaid, EventOrderFailed, EventOrderCanceled}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(outboxEventTypes, e)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseEnum("event type", value, outboxEventTypes)
}

// statusEvents announces each terminal order status.
var statusEvents = map[OrderStatus]OutboxEventType{
	OrderStatusPaid:     EventOrderPaid,
	OrderStatusFailed:   EventOrderFailed,
	OrderStatusCanceled: EventOrderCanceled,
}

// OrderEventForStatus reports false for statuses that emit nothing.
func OrderEventForStatus(status OrderStatus) (OutboxEventType, bool) {
	event, ok := statusEvents[status]
	return event, ok
}
