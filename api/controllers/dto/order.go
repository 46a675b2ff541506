package dto

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/internal/orders"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	"github.com/angelmondragon/marketplace-checkout/pkg/types"
)

// Order is the client representation of a placed order.
type Order struct {
	ID                uuid.UUID               `json:"id"`
	UserID            uuid.UUID               `json:"user_id"`
	Items             []OrderItem             `json:"items"`
	TotalQuantity     int                     `json:"total_quantity"`
	SubtotalCents     int                     `json:"subtotal_cents"`
	DiscountCents     int                     `json:"discount_cents"`
	TotalCents        int                     `json:"total_cents"`
	Currency          string                  `json:"currency"`
	CouponCode        *string                 `json:"coupon_code,omitempty"`
	DeliveryAddress   types.Address           `json:"delivery_address"`
	PaymentMethod     enums.PaymentMethod     `json:"payment_method"`
	PaymentStatus     enums.PaymentStatus     `json:"payment_status"`
	FulfillmentStatus enums.FulfillmentStatus `json:"fulfillment_status"`
	CheckoutSessionID *string                 `json:"checkout_session_id,omitempty"`
	PaidAt            *time.Time              `json:"paid_at,omitempty"`
	ShippedAt         *time.Time              `json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time              `json:"delivered_at,omitempty"`
	CancelledAt       *time.Time              `json:"cancelled_at,omitempty"`
	RefundedAt        *time.Time              `json:"refunded_at,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// OrderItem is one frozen purchase line.
type OrderItem struct {
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	SellerID       uuid.UUID  `json:"seller_id"`
	ProductName    string     `json:"product_name"`
	VariantName    *string    `json:"variant_name,omitempty"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int        `json:"unit_price_cents"`
	LineTotalCents int        `json:"line_total_cents"`
}

// OrderPage is a cursor page of orders.
type OrderPage = types.Page[Order]

func NewOrder(order *models.Order) *Order {
	if order == nil {
		return nil
	}
	items := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItem{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			SellerID:       item.SellerID,
			ProductName:    item.ProductName,
			VariantName:    item.VariantName,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			LineTotalCents: item.LineTotalCents,
		})
	}
	return &Order{
		ID:                order.ID,
		UserID:            order.UserID,
		Items:             items,
		TotalQuantity:     order.TotalQuantity,
		SubtotalCents:     order.SubtotalCents,
		DiscountCents:     order.DiscountCents,
		TotalCents:        order.TotalCents,
		Currency:          order.Currency,
		CouponCode:        order.CouponCode,
		DeliveryAddress:   order.DeliveryAddress,
		PaymentMethod:     order.PaymentMethod,
		PaymentStatus:     order.PaymentStatus,
		FulfillmentStatus: order.FulfillmentStatus,
		CheckoutSessionID: order.CheckoutSessionID,
		PaidAt:            order.PaidAt,
		ShippedAt:         order.ShippedAt,
		DeliveredAt:       order.DeliveredAt,
		CancelledAt:       order.CancelledAt,
		RefundedAt:        order.RefundedAt,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

func NewOrderPage(list *orders.OrderList) OrderPage {
	page := OrderPage{Items: []Order{}}
	if list == nil {
		return page
	}
	for i := range list.Orders {
		page.Items = append(page.Items, *NewOrder(&list.Orders[i]))
	}
	page.NextCursor = list.NextCursor
	return page
}
