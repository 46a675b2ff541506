package models

import (
	"time"

	"github.com/google/uuid"
)

// Coupon is a flat-amount cart discount issued by a seller.
type Coupon struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Code              string    `gorm:"column:code;not null;uniqueIndex"`
	IssuerID          uuid.UUID `gorm:"column:issuer_id;type:uuid;not null"`
	DiscountCents     int       `gorm:"column:discount_cents;not null"`
	MinCartPriceCents int       `gorm:"column:min_cart_price_cents;not null;default:0"`
	MinItems          int       `gorm:"column:min_items;not null;default:0"`
	AutoApply         bool      `gorm:"column:auto_apply;not null;default:false"`
	StartsAt          time.Time `gorm:"column:starts_at;not null"`
	EndsAt            time.Time `gorm:"column:ends_at;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
