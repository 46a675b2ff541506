package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
)

var fulfillmentTransitions = map[enums.FulfillmentStatus][]enums.FulfillmentStatus{
	enums.FulfillmentPending: {enums.FulfillmentShipped, enums.FulfillmentCancelled},
	enums.FulfillmentShipped: {enums.FulfillmentDelivered, enums.FulfillmentCancelled},
}

var paymentTransitions = map[enums.PaymentStatus][]enums.PaymentStatus{
	enums.PaymentStatusUnpaid: {enums.PaymentStatusPaid},
	enums.PaymentStatusPaid:   {enums.PaymentStatusRefunded},
}

// CanTransitionFulfillment reports whether from -> to is a legal step.
func CanTransitionFulfillment(from, to enums.FulfillmentStatus) bool {
	for _, next := range fulfillmentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment reports whether from -> to is a legal step.
func CanTransitionPayment(from, to enums.PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsDeletable reports whether the buyer may drop the order from history:
// it is finished, or it was never paid nor shipped. Deleting a pending
// order returns its units to stock.
func IsDeletable(order *models.Order) bool {
	if order.FulfillmentStatus.IsTerminal() {
		return true
	}
	return order.PaymentStatus == enums.PaymentStatusUnpaid && order.FulfillmentStatus == enums.FulfillmentPending
}

// HasSeller reports whether sellerID sold at least one item of order.
func HasSeller(order *models.Order, sellerID uuid.UUID) bool {
	for _, item := range order.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}
