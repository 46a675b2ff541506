package cart

import (
	"github.com/google/uuid"

	product "github.com/angelmondragon/marketplace-checkout/internal/products"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
)

// PricedLine is one cart item resolved against the live catalog.
type PricedLine struct {
	Item           models.CartItem
	Purchasable    product.Purchasable
	LineTotalCents int
}

// Priced is a cart snapshot at live prices.
type Priced struct {
	Lines         []PricedLine
	SubtotalCents int
	TotalQuantity int
}

// SellerIDs returns the distinct sellers in line order.
func (p *Priced) SellerIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(p.Lines))
	out := make([]uuid.UUID, 0, len(p.Lines))
	for _, line := range p.Lines {
		id := line.Purchasable.Product.SellerID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ProductIDs lists the products referenced by the cart, without duplicates.
func ProductIDs(cart *models.Cart) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(cart.Items))
	ids := make([]uuid.UUID, 0, len(cart.Items))
	for _, item := range cart.Items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	return ids
}

// Price resolves every item of cart. A product or variant that no longer
// exists fails the whole snapshot with NotFound.
func Price(cart *models.Cart, products map[uuid.UUID]*models.Product) (*Priced, error) {
	priced := &Priced{Lines: make([]PricedLine, 0, len(cart.Items))}
	for _, item := range cart.Items {
		purchasable, err := product.Resolve(products[item.ProductID], item.VariantID)
		if err != nil {
			return nil, err
		}
		line := PricedLine{
			Item:           item,
			Purchasable:    purchasable,
			LineTotalCents: purchasable.UnitPriceCents * item.Quantity,
		}
		priced.Lines = append(priced.Lines, line)
		priced.SubtotalCents += line.LineTotalCents
		priced.TotalQuantity += item.Quantity
	}
	return priced, nil
}
