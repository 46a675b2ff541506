// Package discounts models the two discount mechanisms of the marketplace as
// tagged variants of one value. A cart coupon is a flat amount taken off the
// order subtotal; a catalog percentage lowers a product's displayed price. Each
// apply path only accepts its own kind so neither can be applied twice.
package discounts

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
)

var (
	hundred = decimal.NewFromInt(100)

	// ErrWrongKind is returned when a discount is applied on the other kind's path.
	ErrWrongKind = errors.New("discount kind not accepted on this path")
)

// Discount is either a flat cart coupon or a catalog percentage.
type Discount struct {
	Kind        enums.DiscountKind
	AmountCents int
	Percent     decimal.Decimal
	// Source names what produced the discount (coupon code or product id).
	Source string
}

// CartCoupon builds a flat-amount discount sourced from a coupon code.
func CartCoupon(code string, amountCents int) Discount {
	return Discount{Kind: enums.DiscountCartCoupon, AmountCents: amountCents, Source: code}
}

// CatalogPercentage builds a percentage discount for a catalog listing.
func CatalogPercentage(source string, percent decimal.Decimal) Discount {
	return Discount{Kind: enums.DiscountCatalogPercentage, Percent: percent, Source: source}
}

// ApplyToSubtotal subtracts a cart coupon from subtotal. The result is clamped
// at zero and applied reports the amount actually taken off, so
// subtotal - applied == total always holds.
func (d Discount) ApplyToSubtotal(subtotalCents int) (totalCents, appliedCents int, err error) {
	if d.Kind != enums.DiscountCartCoupon {
		return subtotalCents, 0, fmt.Errorf("%w: %s", ErrWrongKind, d.Kind)
	}
	if d.AmountCents < 0 {
		return subtotalCents, 0, fmt.Errorf("negative discount amount %d", d.AmountCents)
	}
	if subtotalCents <= 0 {
		return 0, 0, nil
	}
	applied := d.AmountCents
	if applied > subtotalCents {
		applied = subtotalCents
	}
	return subtotalCents - applied, applied, nil
}

// ApplyToPrice returns round_half_up(base * (100 - percent) / 100).
func (d Discount) ApplyToPrice(basePriceCents int) (int, error) {
	if d.Kind != enums.DiscountCatalogPercentage {
		return basePriceCents, fmt.Errorf("%w: %s", ErrWrongKind, d.Kind)
	}
	if err := ValidatePercent(d.Percent); err != nil {
		return basePriceCents, err
	}
	price := decimal.NewFromInt(int64(basePriceCents)).
		Mul(hundred.Sub(d.Percent)).
		Div(hundred).
		Round(0)
	return int(price.IntPart()), nil
}

// ValidatePercent accepts 0 <= percent < 100.
func ValidatePercent(percent decimal.Decimal) error {
	if percent.IsNegative() || percent.GreaterThanOrEqual(hundred) {
		return fmt.Errorf("discount percent must be in [0, 100), got %s", percent.String())
	}
	return nil
}
