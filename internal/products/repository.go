package product

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
)

// ErrStockUnavailable is returned when a conditional decrement matched no row.
var ErrStockUnavailable = errors.New("stock unavailable")

// Repository wires together product and variant persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByID loads the product with its variants, or gorm.ErrRecordNotFound.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		First(&product, "id = ?", id).
		Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads every listed product with variants, keyed by id. Missing
// ids are simply absent from the map.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	out := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC").Order("id ASC")
		}).
		Where("id IN ?", ids).
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// DecrementStock subtracts qty only while at least qty units remain. The
// check and the write are one statement, so concurrent buyers can never drive
// stock negative.
func (r *Repository) DecrementStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("decrement quantity must be positive, got %d", qty)
	}
	res := r.stockScope(ctx, productID, variantID).
		Where("stock >= ?", qty).
		Updates(map[string]any{"stock": gorm.Expr("stock - ?", qty)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStockUnavailable
	}
	return nil
}

// RestoreStock returns qty units to the product or variant.
func (r *Repository) RestoreStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("restore quantity must be positive, got %d", qty)
	}
	res := r.stockScope(ctx, productID, variantID).
		Updates(map[string]any{"stock": gorm.Expr("stock + ?", qty)})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AvailableStock reads the current stock of the product or variant.
func (r *Repository) AvailableStock(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (int, error) {
	var stock int
	err := r.stockScope(ctx, productID, variantID).Select("stock").Row().Scan(&stock)
	return stock, err
}

// UpdateCatalogPrice stores the percentage and the derived product price.
func (r *Repository) UpdateCatalogPrice(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"discount_percent": product.DiscountPercent,
			"price_cents":      product.PriceCents,
		}).Error
}

// UpdateVariantPrice stores the derived variant price.
func (r *Repository) UpdateVariantPrice(ctx context.Context, variantID uuid.UUID, priceCents int) error {
	return r.db.WithContext(ctx).
		Model(&models.ProductVariant{}).
		Where("id = ?", variantID).
		Update("price_cents", priceCents).Error
}

// stockScope targets the variant row when variantID is set, else the product
// row. Variants must belong to productID.
func (r *Repository) stockScope(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) *gorm.DB {
	if variantID != nil {
		return r.db.WithContext(ctx).
			Model(&models.ProductVariant{}).
			Where("id = ? AND product_id = ?", *variantID, productID)
	}
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID)
}
