package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is a seller listing. Stock is tracked on the product itself unless
// the product carries variants, in which case each variant owns its stock.
type Product struct {
	ID              uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	SellerID        uuid.UUID        `gorm:"column:seller_id;type:uuid;not null"`
	Name            string           `gorm:"column:name;not null"`
	BasePriceCents  int              `gorm:"column:base_price_cents;not null"`
	PriceCents      int              `gorm:"column:price_cents;not null"`
	DiscountPercent decimal.Decimal  `gorm:"column:discount_percent;type:numeric(5,2);not null;default:0"`
	Stock           int              `gorm:"column:stock;not null;default:0"`
	IsActive        bool             `gorm:"column:is_active;not null;default:true"`
	Variants        []ProductVariant `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// HasVariants reports whether stock and price live on variants.
func (p Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// ProductVariant is a purchasable option of a product with its own stock.
type ProductVariant struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Name           string    `gorm:"column:name;not null"`
	BasePriceCents int       `gorm:"column:base_price_cents;not null"`
	PriceCents     int       `gorm:"column:price_cents;not null"`
	Stock          int       `gorm:"column:stock;not null;default:0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
