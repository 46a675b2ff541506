package coupons

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/pkg/db"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

const codeUniqueConstraint = "coupons_code_key"

// CreateInput is the seller payload for issuing a coupon.
type CreateInput struct {
	Code              string
	DiscountCents     int
	MinCartPriceCents int
	MinItems          int
	AutoApply         bool
	StartsAt          time.Time
	EndsAt            time.Time
}

// Service owns coupon issuance.
type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Create issues a coupon owned by issuerID.
func (s *Service) Create(ctx context.Context, issuerID uuid.UUID, input CreateInput) (*models.Coupon, error) {
	if issuerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "issuer is required")
	}
	code, err := NormalizeCode(input.Code)
	if err != nil {
		return nil, err
	}
	switch {
	case input.DiscountCents <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount_cents must be positive")
	case input.MinCartPriceCents < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_cart_price_cents cannot be negative")
	case input.MinItems < 0:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "min_items cannot be negative")
	case !input.EndsAt.After(input.StartsAt):
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ends_at must be after starts_at")
	}

	coupon := &models.Coupon{
		ID:                uuid.New(),
		Code:              code,
		IssuerID:          issuerID,
		DiscountCents:     input.DiscountCents,
		MinCartPriceCents: input.MinCartPriceCents,
		MinItems:          input.MinItems,
		AutoApply:         input.AutoApply,
		StartsAt:          input.StartsAt.UTC(),
		EndsAt:            input.EndsAt.UTC(),
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		if db.IsUniqueViolation(err, codeUniqueConstraint) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert coupon")
	}
	return coupon, nil
}
