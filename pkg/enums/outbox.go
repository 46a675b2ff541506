package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
// Orders are the only aggregate the checkout pipeline emits for.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

var outboxAggregateTypes = []OutboxAggregateType{AggregateOrder}

func (a OutboxAggregateType) IsValid() bool { return member(outboxAggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(outboxAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	// EventOrderCreated is written when a cart is consumed into an order.
	EventOrderCreated OutboxEventType = "order_created"
	// EventOrderPaid follows a gateway confirmation, either at completion or
	// when a pay-later order is settled.
	EventOrderPaid OutboxEventType = "order_paid"
	// EventOrderCanceled carries the restocked lines of a cancelled order.
	EventOrderCanceled OutboxEventType = "order_canceled"
	// EventOrderStateChanged covers fulfillment moves and refunds.
	EventOrderStateChanged OutboxEventType = "order_state_changed"
)

var outboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderCanceled,
	EventOrderStateChanged,
}

func (e OutboxEventType) IsValid() bool { return member(outboxEventTypes, e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(outboxEventTypes, value, "event type")
}
