package coupons

import (
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-checkout/internal/discounts"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// RejectionReason explains why a known coupon cannot be applied.
type RejectionReason string

const (
	ReasonExpired      RejectionReason = "expired"
	ReasonBelowMinimum RejectionReason = "below_minimum"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9_-]{3,32}$`)

// RejectionDetails is exposed to clients on COUPON_REJECTED responses.
type RejectionDetails struct {
	Reason            RejectionReason `json:"reason"`
	Code              string          `json:"code"`
	MinCartPriceCents int             `json:"min_cart_price_cents,omitempty"`
	SubtotalCents     int             `json:"subtotal_cents,omitempty"`
}

// NormalizeCode trims and upper-cases a coupon code and checks its shape.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if !codePattern.MatchString(code) {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "coupon code must be 3-32 characters of A-Z, 0-9, '_' or '-'")
	}
	return code, nil
}

// Evaluate decides whether coupon applies to subtotal at now. The validity
// window is inclusive at both ends.
func Evaluate(coupon *models.Coupon, now time.Time, subtotalCents int) (discounts.Discount, error) {
	if coupon == nil {
		return discounts.Discount{}, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
	}
	if now.Before(coupon.StartsAt) || now.After(coupon.EndsAt) {
		return discounts.Discount{}, pkgerrors.New(pkgerrors.CodeCouponRejected, "coupon is not valid at this time").
			WithDetails(RejectionDetails{Reason: ReasonExpired, Code: coupon.Code})
	}
	if subtotalCents < coupon.MinCartPriceCents {
		return discounts.Discount{}, pkgerrors.New(pkgerrors.CodeCouponRejected, "cart subtotal is below the coupon minimum").
			WithDetails(RejectionDetails{
				Reason:            ReasonBelowMinimum,
				Code:              coupon.Code,
				MinCartPriceCents: coupon.MinCartPriceCents,
				SubtotalCents:     subtotalCents,
			})
	}
	return discounts.CartCoupon(coupon.Code, coupon.DiscountCents), nil
}

// RejectionOf extracts the rejection details from a COUPON_REJECTED error.
func RejectionOf(err error) (RejectionDetails, bool) {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeCouponRejected {
		return RejectionDetails{}, false
	}
	details, ok := typed.Details().(RejectionDetails)
	return details, ok
}
