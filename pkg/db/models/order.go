package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	"github.com/angelmondragon/marketplace-checkout/pkg/types"
)

// Order is the immutable purchase record; only status columns and their
// timestamps change after insert.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	UserID            uuid.UUID               `gorm:"column:user_id;type:uuid;not null"`
	TotalQuantity     int                     `gorm:"column:total_quantity;not null"`
	SubtotalCents     int                     `gorm:"column:subtotal_cents;not null"`
	DiscountCents     int                     `gorm:"column:discount_cents;not null;default:0"`
	TotalCents        int                     `gorm:"column:total_cents;not null"`
	Currency          string                  `gorm:"column:currency;not null"`
	DeliveryAddress   types.Address           `gorm:"column:delivery_address;type:jsonb;serializer:json;not null"`
	CouponCode        *string                 `gorm:"column:coupon_code"`
	PaymentMethod     enums.PaymentMethod     `gorm:"column:payment_method;not null"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;not null"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;not null"`
	CheckoutSessionID *string                 `gorm:"column:checkout_session_id;uniqueIndex"`
	PaidAt            *time.Time              `gorm:"column:paid_at"`
	ShippedAt         *time.Time              `gorm:"column:shipped_at"`
	DeliveredAt       *time.Time              `gorm:"column:delivered_at"`
	CancelledAt       *time.Time              `gorm:"column:cancelled_at"`
	RefundedAt        *time.Time              `gorm:"column:refunded_at"`
	Items             []OrderItem             `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem freezes product identity and unit price at purchase time.
type OrderItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID  `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	SellerID       uuid.UUID  `gorm:"column:seller_id;type:uuid;not null"`
	ProductName    string     `gorm:"column:product_name;not null"`
	VariantName    *string    `gorm:"column:variant_name"`
	Quantity       int        `gorm:"column:quantity;not null"`
	UnitPriceCents int        `gorm:"column:unit_price_cents;not null"`
	LineTotalCents int        `gorm:"column:line_total_cents;not null"`
	Position       int        `gorm:"column:position;not null;default:0"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
