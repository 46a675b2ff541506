package dbtest

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
)

// CreateProduct inserts an active product priced at priceCents. When variants
// are given they carry their own price and stock and the product stock is 0.
func CreateProduct(t testing.TB, conn *gorm.DB, sellerID uuid.UUID, priceCents, stock int, variants ...models.ProductVariant) *models.Product {
	t.Helper()
	if sellerID == uuid.Nil {
		sellerID = uuid.New()
	}
	product := &models.Product{
		ID:             uuid.New(),
		SellerID:       sellerID,
		Name:           fmt.Sprintf("Product %s", uuid.NewString()[:8]),
		BasePriceCents: priceCents,
		PriceCents:     priceCents,
		Stock:          stock,
		IsActive:       true,
	}
	for i := range variants {
		v := variants[i]
		v.ID = uuid.New()
		v.ProductID = product.ID
		if v.Name == "" {
			v.Name = fmt.Sprintf("Variant %d", i+1)
		}
		if v.BasePriceCents == 0 {
			v.BasePriceCents = v.PriceCents
		}
		product.Variants = append(product.Variants, v)
	}
	if len(variants) > 0 {
		product.Stock = 0
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// CreateCoupon inserts a coupon valid for an hour either side of now.
func CreateCoupon(t testing.TB, conn *gorm.DB, code string, discountCents, minCartPriceCents int, now time.Time) *models.Coupon {
	t.Helper()
	coupon := &models.Coupon{
		ID:                uuid.New(),
		Code:              code,
		IssuerID:          uuid.New(),
		DiscountCents:     discountCents,
		MinCartPriceCents: minCartPriceCents,
		StartsAt:          now.Add(-time.Hour).UTC(),
		EndsAt:            now.Add(time.Hour).UTC(),
	}
	if err := conn.Create(coupon).Error; err != nil {
		t.Fatalf("create coupon: %v", err)
	}
	return coupon
}

// Stock reads the current stock of a product or variant row.
func Stock(t testing.TB, conn *gorm.DB, table string, id uuid.UUID) int {
	t.Helper()
	var stock int
	if err := conn.Table(table).Select("stock").Where("id = ?", id).Row().Scan(&stock); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}
