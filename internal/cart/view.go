package cart

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-checkout/internal/coupons"
	product "github.com/angelmondragon/marketplace-checkout/internal/products"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/types"
)

// View is the priced cart returned to clients. It is computed on every read
// and never stored.
type View struct {
	CartID          *uuid.UUID           `json:"cart_id"`
	UserID          uuid.UUID            `json:"user_id"`
	Items           []ItemView           `json:"items"`
	TotalQuantity   int                  `json:"total_quantity"`
	SubtotalCents   int                  `json:"subtotal_cents"`
	TotalCents      int                  `json:"total_cents"`
	DeliveryAddress *types.Address       `json:"delivery_address,omitempty"`
	Coupon          *CouponPreview       `json:"coupon,omitempty"`
	Suggestions     []coupons.Suggestion `json:"suggested_coupons"`
}

// ItemView is a line at its live price. An Unavailable line no longer
// resolves against the catalog and is left out of the totals.
type ItemView struct {
	ProductID      uuid.UUID  `json:"product_id"`
	VariantID      *uuid.UUID `json:"variant_id,omitempty"`
	SellerID       *uuid.UUID `json:"seller_id,omitempty"`
	ProductName    string     `json:"product_name,omitempty"`
	VariantName    *string    `json:"variant_name,omitempty"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int        `json:"unit_price_cents"`
	LineTotalCents int        `json:"line_total_cents"`
	Available      int        `json:"available"`
	Unavailable    bool       `json:"unavailable"`
}

// CouponPreview shows what the applied coupon would take off right now.
type CouponPreview struct {
	Code          string                    `json:"code"`
	Valid         bool                      `json:"valid"`
	DiscountCents int                       `json:"discount_cents"`
	Rejection     *coupons.RejectionDetails `json:"rejection,omitempty"`
	Message       string                    `json:"message,omitempty"`
}

// EmptyView is returned once a mutation has deleted the cart.
func EmptyView(userID uuid.UUID) *View {
	return &View{
		UserID:      userID,
		Items:       []ItemView{},
		Suggestions: []coupons.Suggestion{},
	}
}

func (s *service) view(ctx context.Context, cart *models.Cart) (*View, error) {
	products, err := s.products.FindByIDs(ctx, ProductIDs(cart))
	if err != nil {
		return nil, err
	}

	cartID := cart.ID
	out := &View{
		CartID:          &cartID,
		UserID:          cart.UserID,
		Items:           make([]ItemView, 0, len(cart.Items)),
		DeliveryAddress: cart.DeliveryAddress,
		Suggestions:     []coupons.Suggestion{},
	}
	for _, item := range cart.Items {
		line := ItemView{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		}
		purchasable, err := product.Resolve(products[item.ProductID], item.VariantID)
		if err != nil {
			line.Unavailable = true
			out.Items = append(out.Items, line)
			continue
		}
		sellerID := purchasable.Product.SellerID
		line.SellerID = &sellerID
		line.ProductName = purchasable.Product.Name
		line.VariantName = purchasable.VariantName()
		line.UnitPriceCents = purchasable.UnitPriceCents
		line.LineTotalCents = purchasable.UnitPriceCents * item.Quantity
		line.Available = purchasable.Available
		out.Items = append(out.Items, line)

		out.SubtotalCents += line.LineTotalCents
		out.TotalQuantity += item.Quantity
	}
	out.TotalCents = out.SubtotalCents

	now := s.now().UTC()
	if cart.CouponCode != nil {
		preview, err := s.previewCoupon(ctx, *cart.CouponCode, out.SubtotalCents)
		if err != nil {
			return nil, err
		}
		out.Coupon = preview
		out.TotalCents = out.SubtotalCents - preview.DiscountCents
	}

	suggestions, err := s.coupons.AutoApplicable(ctx, now, out.SubtotalCents, out.TotalQuantity)
	if err != nil {
		return nil, err
	}
	for _, suggestion := range suggestions {
		if cart.CouponCode != nil && suggestion.Code == *cart.CouponCode {
			continue
		}
		out.Suggestions = append(out.Suggestions, suggestion)
	}
	return out, nil
}

// previewCoupon evaluates code without touching the cart record. Rejections
// become part of the preview; infrastructure failures do not.
func (s *service) previewCoupon(ctx context.Context, code string, subtotalCents int) (*CouponPreview, error) {
	preview := &CouponPreview{Code: code}
	_, discount, err := s.coupons.Validate(ctx, code, s.now().UTC(), subtotalCents)
	if err != nil {
		switch pkgerrors.CodeOf(err) {
		case pkgerrors.CodeCouponRejected, pkgerrors.CodeNotFound, pkgerrors.CodeValidation:
			if details, ok := coupons.RejectionOf(err); ok {
				preview.Rejection = &details
			}
			if typed := pkgerrors.As(err); typed != nil {
				preview.Message = typed.Message()
			}
			return preview, nil
		default:
			return nil, err
		}
	}
	_, applied, err := discount.ApplyToSubtotal(subtotalCents)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply coupon preview")
	}
	preview.Valid = true
	preview.DiscountCents = applied
	return preview, nil
}
