package enums

// FulfillmentStatus tracks the delivery lifecycle of an order.
type FulfillmentStatus string

const (
	FulfillmentPending   FulfillmentStatus = "pending"
	FulfillmentShipped   FulfillmentStatus = "shipped"
	FulfillmentDelivered FulfillmentStatus = "delivered"
	FulfillmentCancelled FulfillmentStatus = "cancelled"
)

var fulfillmentStatuses = []FulfillmentStatus{
	FulfillmentPending,
	FulfillmentShipped,
	FulfillmentDelivered,
	FulfillmentCancelled,
}

func (f FulfillmentStatus) String() string { return string(f) }

func (f FulfillmentStatus) IsValid() bool { return member(fulfillmentStatuses, f) }

// IsTerminal reports whether no further fulfillment transition is possible.
func (f FulfillmentStatus) IsTerminal() bool {
	return f == FulfillmentDelivered || f == FulfillmentCancelled
}

func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	return parse(fulfillmentStatuses, value, "fulfillment status")
}
