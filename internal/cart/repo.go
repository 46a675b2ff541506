package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-checkout/pkg/db"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart and
// checkout services.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	UpdateCoupon(ctx context.Context, cartID uuid.UUID, code *string) error
	UpdateDeliveryAddress(ctx context.Context, cart *models.Cart) error
	InsertItem(ctx context.Context, item *models.CartItem) error
	IncrementItem(ctx context.Context, itemID uuid.UUID, qty int) error
	SetItemQuantity(ctx context.Context, itemID uuid.UUID, qty int) error
	DeleteItem(ctx context.Context, itemID uuid.UUID) error
	CountItems(ctx context.Context, cartID uuid.UUID) (int64, error)
	Delete(ctx context.Context, cartID uuid.UUID) (int64, error)
}

// Repository exposes persistence operations for carts and their lines.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByUser loads the user's cart with items in insertion order.
func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	return r.findByUser(r.db.WithContext(ctx), userID)
}

// FindByUserForUpdate is FindByUser plus a row lock on Postgres, so two
// completions for the same user run one after the other.
func (r *Repository) FindByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	q := r.db.WithContext(ctx)
	if db.SupportsRowLocks(q) {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.findByUser(q, userID)
}

func (r *Repository) findByUser(q *gorm.DB, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC").Order("created_at ASC")
		}).
		Where("user_id = ?", userID).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// Create inserts the cart row together with any items already attached.
func (r *Repository) Create(ctx context.Context, cart *models.Cart) error {
	if cart.ID == uuid.Nil {
		cart.ID = uuid.New()
	}
	for i := range cart.Items {
		if cart.Items[i].ID == uuid.Nil {
			cart.Items[i].ID = uuid.New()
		}
		cart.Items[i].CartID = cart.ID
	}
	return r.db.WithContext(ctx).Create(cart).Error
}

func (r *Repository) UpdateCoupon(ctx context.Context, cartID uuid.UUID, code *string) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("coupon_code", code).Error
}

func (r *Repository) UpdateDeliveryAddress(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{ID: cart.ID}).
		Select("delivery_address").
		Updates(&models.Cart{DeliveryAddress: cart.DeliveryAddress}).Error
}

func (r *Repository) InsertItem(ctx context.Context, item *models.CartItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) IncrementItem(ctx context.Context, itemID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", gorm.Expr("quantity + ?", qty)).Error
}

func (r *Repository) SetItemQuantity(ctx context.Context, itemID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		Update("quantity", qty).Error
}

func (r *Repository) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", itemID).
		Delete(&models.CartItem{}).Error
}

func (r *Repository) CountItems(ctx context.Context, cartID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("cart_id = ?", cartID).
		Count(&count).Error
	return count, err
}

// Delete removes the cart and its lines and reports how many cart rows went
// away. Checkout treats anything but 1 as "already consumed".
func (r *Repository) Delete(ctx context.Context, cartID uuid.UUID) (int64, error) {
	conn := r.db.WithContext(ctx)
	if err := conn.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return 0, err
	}
	res := conn.Where("id = ?", cartID).Delete(&models.Cart{})
	return res.RowsAffected, res.Error
}
