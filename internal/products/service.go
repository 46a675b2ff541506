package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/internal/discounts"
	"github.com/angelmondragon/marketplace-checkout/pkg/db"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

// StockShortage is exposed to clients on INSUFFICIENT_STOCK responses.
type StockShortage struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Available int        `json:"available"`
	Requested int        `json:"requested"`
}

// NewInsufficientStock names the offending product/variant and what remains.
func NewInsufficientStock(productID uuid.UUID, variantID *uuid.UUID, available, requested int) *pkgerrors.Error {
	msg := fmt.Sprintf("only %d units of product %s available", available, productID)
	if variantID != nil {
		msg = fmt.Sprintf("only %d units of variant %s available", available, *variantID)
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, msg).WithDetails(StockShortage{
		ProductID: productID,
		VariantID: variantID,
		Available: available,
		Requested: requested,
	})
}

// Purchasable is a product resolved down to the unit that is actually sold.
type Purchasable struct {
	Product        *models.Product
	Variant        *models.ProductVariant
	UnitPriceCents int
	Available      int
}

// VariantID returns the variant id or nil for flat products.
func (p Purchasable) VariantID() *uuid.UUID {
	if p.Variant == nil {
		return nil
	}
	id := p.Variant.ID
	return &id
}

// VariantName returns the variant name or nil for flat products.
func (p Purchasable) VariantName() *string {
	if p.Variant == nil {
		return nil
	}
	name := p.Variant.Name
	return &name
}

// Service is the product/stock store consumed by cart, checkout and orders.
type Service interface {
	FindByID(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	FindByIDsTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, qty int) error
	RestoreStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, qty int) error
	ApplyCatalogDiscount(ctx context.Context, sellerID, productID uuid.UUID, percent decimal.Decimal) (*models.Product, error)
}

type service struct {
	repo     *Repository
	dbClient *db.Client
}

// NewService constructs the product service.
func NewService(repo *Repository, dbClient *db.Client) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	return &service{repo: repo, dbClient: dbClient}, nil
}

func (s *service) FindByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	return findProduct(ctx, s.repo, productID)
}

func (s *service) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	return s.FindByIDsTx(ctx, nil, ids)
}

// FindByIDsTx reads through tx so the snapshot belongs to the caller's unit
// of work.
func (s *service) FindByIDsTx(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	rows, err := s.repo.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	return rows, nil
}

// DecrementStock applies the conditional decrement inside tx. A miss is
// reported as INSUFFICIENT_STOCK with the quantity actually left.
func (s *service) DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	repo := s.repo.WithTx(tx)
	err := repo.DecrementStock(ctx, productID, variantID, qty)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrStockUnavailable) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
	}
	available, readErr := repo.AvailableStock(ctx, productID, variantID)
	if readErr != nil {
		available = 0
	}
	return NewInsufficientStock(productID, variantID, available, qty)
}

func (s *service) RestoreStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	if err := s.repo.WithTx(tx).RestoreStock(ctx, productID, variantID, qty); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
	}
	return nil
}

// ApplyCatalogDiscount reprices the product and every variant from their base
// prices. A percent of zero restores the base prices. Carts, orders and stock
// are never touched.
func (s *service) ApplyCatalogDiscount(ctx context.Context, sellerID, productID uuid.UUID, percent decimal.Decimal) (*models.Product, error) {
	if err := discounts.ValidatePercent(percent); err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, err.Error())
	}
	discount := discounts.CatalogPercentage(productID.String(), percent)

	var updatedID uuid.UUID
	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		product, err := findProduct(ctx, txRepo, productID)
		if err != nil {
			return err
		}
		if product.SellerID != sellerID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "product does not belong to seller")
		}

		price, err := discount.ApplyToPrice(product.BasePriceCents)
		if err != nil {
			return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
		}
		product.PriceCents = price
		product.DiscountPercent = percent
		if err := txRepo.UpdateCatalogPrice(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product price")
		}

		for _, variant := range product.Variants {
			variantPrice, err := discount.ApplyToPrice(variant.BasePriceCents)
			if err != nil {
				return pkgerrors.New(pkgerrors.CodeValidation, err.Error())
			}
			if err := txRepo.UpdateVariantPrice(ctx, variant.ID, variantPrice); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update variant price")
			}
		}
		updatedID = product.ID
		return nil
	}); err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply catalog discount")
	}

	return s.FindByID(ctx, updatedID)
}

// Resolve picks the unit being bought. A product with variants must be bought
// through one of them; a flat product cannot take a variant id.
func Resolve(product *models.Product, variantID *uuid.UUID) (Purchasable, error) {
	if product == nil || !product.IsActive {
		return Purchasable{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if variantID == nil {
		if product.HasVariants() {
			return Purchasable{}, pkgerrors.New(pkgerrors.CodeValidation, "variant_id is required for this product")
		}
		return Purchasable{Product: product, UnitPriceCents: product.PriceCents, Available: product.Stock}, nil
	}
	variant, err := FindVariant(product, *variantID)
	if err != nil {
		return Purchasable{}, err
	}
	return Purchasable{Product: product, Variant: variant, UnitPriceCents: variant.PriceCents, Available: variant.Stock}, nil
}

// FindVariant resolves a variant of product, or NOT_FOUND.
func FindVariant(product *models.Product, variantID uuid.UUID) (*models.ProductVariant, error) {
	if product != nil {
		for i := range product.Variants {
			if product.Variants[i].ID == variantID {
				return &product.Variants[i], nil
			}
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "variant not found")
}

func findProduct(ctx context.Context, repo *Repository, productID uuid.UUID) (*models.Product, error) {
	product, err := repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}
