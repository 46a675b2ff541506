package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/types"
)

// Cart is the single mutable staging document per user. A cart row never
// exists without at least one item.
type Cart struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID      `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	DeliveryAddress *types.Address `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	CouponCode      *string        `gorm:"column:coupon_code"`
	Items           []CartItem     `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

// CartItem is one (product, variant) line. Quantity is always >= 1.
type CartItem struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID  `gorm:"column:cart_id;type:uuid;not null"`
	ProductID uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariantID *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	Quantity  int        `gorm:"column:quantity;not null"`
	Position  int        `gorm:"column:position;not null;default:0"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// Matches reports whether the item has the given (product, variant) key.
func (i CartItem) Matches(productID uuid.UUID, variantID *uuid.UUID) bool {
	if i.ProductID != productID {
		return false
	}
	if i.VariantID == nil || variantID == nil {
		return i.VariantID == nil && variantID == nil
	}
	return *i.VariantID == *variantID
}
