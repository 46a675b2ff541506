package coupons

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/internal/discounts"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// Suggestion is an advisory coupon the cart currently qualifies for.
type Suggestion struct {
	Code          string    `json:"code"`
	DiscountCents int       `json:"discount_cents"`
	EndsAt        time.Time `json:"ends_at"`
}

// Validator resolves coupon codes and evaluates them against a subtotal.
type Validator struct {
	repo *Repository
}

func NewValidator(repo *Repository) *Validator {
	return &Validator{repo: repo}
}

// WithTx returns a validator that reads through tx.
func (v *Validator) WithTx(tx *gorm.DB) *Validator {
	return &Validator{repo: v.repo.WithTx(tx)}
}

// Validate normalizes code, loads the coupon and evaluates it.
func (v *Validator) Validate(ctx context.Context, code string, now time.Time, subtotalCents int) (*models.Coupon, discounts.Discount, error) {
	normalized, err := NormalizeCode(code)
	if err != nil {
		return nil, discounts.Discount{}, err
	}
	coupon, err := v.repo.FindByCode(ctx, normalized)
	if err != nil {
		return nil, discounts.Discount{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	discount, err := Evaluate(coupon, now, subtotalCents)
	if err != nil {
		return coupon, discounts.Discount{}, err
	}
	return coupon, discount, nil
}

// AutoApplicable lists the auto-apply coupons that pass both the subtotal
// and item-count gates. The result is never persisted.
func (v *Validator) AutoApplicable(ctx context.Context, now time.Time, subtotalCents, itemCount int) ([]Suggestion, error) {
	rows, err := v.repo.ListAutoApply(ctx, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list auto-apply coupons")
	}
	suggestions := make([]Suggestion, 0, len(rows))
	for i := range rows {
		coupon := rows[i]
		if itemCount < coupon.MinItems {
			continue
		}
		if _, err := Evaluate(&coupon, now, subtotalCents); err != nil {
			continue
		}
		suggestions = append(suggestions, Suggestion{
			Code:          coupon.Code,
			DiscountCents: coupon.DiscountCents,
			EndsAt:        coupon.EndsAt,
		})
	}
	return suggestions, nil
}
