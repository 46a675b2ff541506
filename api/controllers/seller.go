package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-checkout/api/middleware"
	"github.com/angelmondragon/marketplace-checkout/api/responses"
	"github.com/angelmondragon/marketplace-checkout/api/validators"
	"github.com/angelmondragon/marketplace-checkout/internal/coupons"
	product "github.com/angelmondragon/marketplace-checkout/internal/products"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

type couponCreateRequest struct {
	Code              string    `json:"code" validate:"required,max=64"`
	DiscountCents     int       `json:"discount_cents" validate:"required,gt=0"`
	MinCartPriceCents int       `json:"min_cart_price_cents" validate:"gte=0"`
	MinItems          int       `json:"min_items" validate:"gte=0"`
	AutoApply         bool      `json:"auto_apply"`
	StartsAt          time.Time `json:"starts_at" validate:"required"`
	EndsAt            time.Time `json:"ends_at" validate:"required,gtfield=StartsAt"`
}

type couponResponse struct {
	ID                uuid.UUID `json:"id"`
	Code              string    `json:"code"`
	IssuerID          uuid.UUID `json:"issuer_id"`
	DiscountCents     int       `json:"discount_cents"`
	MinCartPriceCents int       `json:"min_cart_price_cents"`
	MinItems          int       `json:"min_items"`
	AutoApply         bool      `json:"auto_apply"`
	StartsAt          time.Time `json:"starts_at"`
	EndsAt            time.Time `json:"ends_at"`
}

// SellerCreateCoupon issues a coupon owned by the calling seller.
func SellerCreateCoupon(svc *coupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		sellerID, err := middleware.RequireUser(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload couponCreateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Create(r.Context(), sellerID, coupons.CreateInput{
			Code:              strings.TrimSpace(payload.Code),
			DiscountCents:     payload.DiscountCents,
			MinCartPriceCents: payload.MinCartPriceCents,
			MinItems:          payload.MinItems,
			AutoApply:         payload.AutoApply,
			StartsAt:          payload.StartsAt,
			EndsAt:            payload.EndsAt,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, couponResponse{
			ID:                coupon.ID,
			Code:              coupon.Code,
			IssuerID:          coupon.IssuerID,
			DiscountCents:     coupon.DiscountCents,
			MinCartPriceCents: coupon.MinCartPriceCents,
			MinItems:          coupon.MinItems,
			AutoApply:         coupon.AutoApply,
			StartsAt:          coupon.StartsAt,
			EndsAt:            coupon.EndsAt,
		})
	}
}

type productDiscountRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

type productResponse struct {
	ID              uuid.UUID         `json:"id"`
	SellerID        uuid.UUID         `json:"seller_id"`
	Name            string            `json:"name"`
	BasePriceCents  int               `json:"base_price_cents"`
	PriceCents      int               `json:"price_cents"`
	DiscountPercent decimal.Decimal   `json:"discount_percent"`
	Stock           int               `json:"stock"`
	Variants        []variantResponse `json:"variants"`
}

type variantResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	BasePriceCents int       `json:"base_price_cents"`
	PriceCents     int       `json:"price_cents"`
	Stock          int       `json:"stock"`
}

// SellerProductDiscount sets the catalog percentage discount on one of the
// seller's products. A percent of zero restores base prices.
func SellerProductDiscount(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "product service unavailable"))
			return
		}

		sellerID, err := middleware.RequireUser(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		productID, err := validators.ParseUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload productDiscountRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		updated, err := svc.ApplyCatalogDiscount(r.Context(), sellerID, productID, payload.Percent)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newProductResponse(updated))
	}
}

func newProductResponse(p *models.Product) productResponse {
	out := productResponse{
		ID:              p.ID,
		SellerID:        p.SellerID,
		Name:            p.Name,
		BasePriceCents:  p.BasePriceCents,
		PriceCents:      p.PriceCents,
		DiscountPercent: p.DiscountPercent,
		Stock:           p.Stock,
		Variants:        make([]variantResponse, 0, len(p.Variants)),
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, variantResponse{
			ID:             v.ID,
			Name:           v.Name,
			BasePriceCents: v.BasePriceCents,
			PriceCents:     v.PriceCents,
			Stock:          v.Stock,
		})
	}
	return out
}
