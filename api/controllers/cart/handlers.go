package cart

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/api/middleware"
	"github.com/angelmondragon/marketplace-checkout/api/responses"
	"github.com/angelmondragon/marketplace-checkout/api/validators"
	cartsvc "github.com/angelmondragon/marketplace-checkout/internal/cart"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/types"
)

type itemRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id"`
	Quantity  int        `json:"quantity" validate:"gte=0,lte=10000"`
}

func (p itemRequest) input() cartsvc.ItemInput {
	return cartsvc.ItemInput{ProductID: p.ProductID, VariantID: p.VariantID, Quantity: p.Quantity}
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type handler func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*cartsvc.View, error)

// wrap resolves the buyer and writes the returned cart view.
func wrap(svc cartsvc.Service, logg *logger.Logger, fn handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}

		userID, err := middleware.RequireUser(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := fn(w, r, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// CartFetch returns the caller's cart priced against the live catalog.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return wrap(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		return svc.Get(r.Context(), userID)
	})
}

// CartClear deletes the caller's cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return wrap(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		if err := svc.Clear(r.Context(), userID); err != nil {
			return nil, err
		}
		return cartsvc.EmptyView(userID), nil
	})
}

// CartAddItem adds quantity to a line, creating the cart when needed.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return wrap(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		var payload itemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Add(r.Context(), userID, payload.input())
	})
}

// CartUpdateItem sets a line's quantity; zero removes the line.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return wrap(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		var payload itemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Update(r.Context(), userID, payload.input())
	})
}

// CartRemoveItem drops the line addressed by the path product and optional
// variant_id query parameter.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return wrap(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		productID, err := validators.ParseUUID(chi.URLParam(r, "productId"), "productId")
		if err != nil {
			return nil, err
		}
		variantID, err := validators.ParseOptionalUUID(r.URL.Query().Get("variant_id"), "variant_id")
		if err != nil {
			return nil, err
		}
		return svc.Remove(r.Context(), userID, productID, variantID)
	})
}

func CartApplyCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return wrap(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		var payload couponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.ApplyCoupon(r.Context(), userID, strings.TrimSpace(payload.Code))
	})
}

func CartRemoveCoupon(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return wrap(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		return svc.RemoveCoupon(r.Context(), userID)
	})
}

// CartSetAddress stores the delivery address used at checkout.
func CartSetAddress(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return wrap(svc, logg, func(w http.ResponseWriter, r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		var payload types.Address
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SetDeliveryAddress(r.Context(), userID, payload)
	})
}
