package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
)

// OrderCreatedEvent is emitted once per consumed cart.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	SellerIDs     []uuid.UUID         `json:"seller_ids"`
	TotalQuantity int                 `json:"total_quantity"`
	SubtotalCents int                 `json:"subtotal_cents"`
	DiscountCents int                 `json:"discount_cents"`
	TotalCents    int                 `json:"total_cents"`
	Currency      string              `json:"currency"`
	CouponCode    *string             `json:"coupon_code,omitempty"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

// OrderPaidEvent is emitted when the gateway confirms payment for an order.
type OrderPaidEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	UserID            uuid.UUID `json:"user_id"`
	CheckoutSessionID string    `json:"checkout_session_id"`
	AmountCents       int       `json:"amount_cents"`
	Currency          string    `json:"currency"`
	PaidAt            time.Time `json:"paid_at"`
}

// OrderCanceledEvent is emitted when a buyer cancels a pending order.
type OrderCanceledEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	CanceledAt    time.Time           `json:"canceled_at"`
}

// OrderStateChangedEvent reports any other fulfillment or payment transition.
type OrderStateChangedEvent struct {
	OrderID         uuid.UUID               `json:"order_id"`
	FromFulfillment enums.FulfillmentStatus `json:"from_fulfillment"`
	ToFulfillment   enums.FulfillmentStatus `json:"to_fulfillment"`
	FromPayment     enums.PaymentStatus     `json:"from_payment"`
	ToPayment       enums.PaymentStatus     `json:"to_payment"`
	ChangedBy       uuid.UUID               `json:"changed_by"`
	ChangedAt       time.Time               `json:"changed_at"`
}
