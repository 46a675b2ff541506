package enums

// DiscountKind tags which discount mechanism produced an amount. The two
// kinds are applied on different paths and never combined.
type DiscountKind string

const (
	DiscountCartCoupon        DiscountKind = "cart_coupon"
	DiscountCatalogPercentage DiscountKind = "catalog_percentage"
)

var discountKinds = []DiscountKind{DiscountCartCoupon, DiscountCatalogPercentage}

func (k DiscountKind) String() string { return string(k) }

func (k DiscountKind) IsValid() bool { return member(discountKinds, k) }

func ParseDiscountKind(value string) (DiscountKind, error) {
	return parse(discountKinds, value, "discount kind")
}
