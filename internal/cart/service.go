package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/internal/coupons"
	"github.com/angelmondragon/marketplace-checkout/internal/discounts"
	product "github.com/angelmondragon/marketplace-checkout/internal/products"
	"github.com/angelmondragon/marketplace-checkout/pkg/db"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/types"
)

const uniqueCartUserConstraint = "carts_user_id_key"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

type couponValidator interface {
	Validate(ctx context.Context, code string, now time.Time, subtotalCents int) (*models.Coupon, discounts.Discount, error)
	AutoApplicable(ctx context.Context, now time.Time, subtotalCents, itemCount int) ([]coupons.Suggestion, error)
}

// Service exposes the cart aggregate to HTTP controllers.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*View, error)
	Add(ctx context.Context, userID uuid.UUID, input ItemInput) (*View, error)
	Update(ctx context.Context, userID uuid.UUID, input ItemInput) (*View, error)
	Remove(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID) (*View, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*View, error)
	RemoveCoupon(ctx context.Context, userID uuid.UUID) (*View, error)
	SetDeliveryAddress(ctx context.Context, userID uuid.UUID, address types.Address) (*View, error)
}

// ItemInput targets one (product, variant) line.
type ItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products productLoader
	coupons  couponValidator
	now      func() time.Time
}

// NewService constructs the cart service.
func NewService(repo CartRepository, tx txRunner, products productLoader, validator couponValidator) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if validator == nil {
		return nil, fmt.Errorf("coupon validator required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		products: products,
		coupons:  validator,
		now:      time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

// Add appends a line or accumulates onto the existing (product, variant)
// line. The cart is created with its first item so it is never stored empty.
func (s *service) Add(ctx context.Context, userID uuid.UUID, input ItemInput) (*View, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	if input.Quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	prod, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}
	if _, err := product.Resolve(prod, input.VariantID); err != nil {
		return nil, err
	}

	add := func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByUserForUpdate(ctx, userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repo.Create(ctx, &models.Cart{
				ID:     uuid.New(),
				UserID: userID,
				Items: []models.CartItem{{
					ID:        uuid.New(),
					ProductID: input.ProductID,
					VariantID: input.VariantID,
					Quantity:  input.Quantity,
				}},
			})
		}
		if err != nil {
			return err
		}

		next := 0
		for _, item := range cart.Items {
			if item.Matches(input.ProductID, input.VariantID) {
				return repo.IncrementItem(ctx, item.ID, input.Quantity)
			}
			if item.Position >= next {
				next = item.Position + 1
			}
		}
		return repo.InsertItem(ctx, &models.CartItem{
			ID:        uuid.New(),
			CartID:    cart.ID,
			ProductID: input.ProductID,
			VariantID: input.VariantID,
			Quantity:  input.Quantity,
			Position:  next,
		})
	}

	err = s.tx.WithTx(ctx, add)
	if db.IsUniqueViolation(err, uniqueCartUserConstraint) {
		// A concurrent add created the cart or the line first; the retry
		// sees it and takes the increment path.
		err = s.tx.WithTx(ctx, add)
	}
	if err != nil {
		return nil, wrapDB(err, "add cart item")
	}
	return s.Get(ctx, userID)
}

// Update sets the line's quantity. Zero or less removes the line, and the
// last line going takes the cart with it.
func (s *service) Update(ctx context.Context, userID uuid.UUID, input ItemInput) (*View, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product_id is required")
	}
	deleted := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := lockCart(ctx, repo, userID)
		if err != nil {
			return err
		}
		item := findItem(cart, input.ProductID, input.VariantID)
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		if input.Quantity > 0 {
			return repo.SetItemQuantity(ctx, item.ID, input.Quantity)
		}
		deleted, err = removeItem(ctx, repo, cart, item)
		return err
	})
	if err != nil {
		return nil, wrapDB(err, "update cart item")
	}
	if deleted {
		return EmptyView(userID), nil
	}
	return s.Get(ctx, userID)
}

func (s *service) Remove(ctx context.Context, userID, productID uuid.UUID, variantID *uuid.UUID) (*View, error) {
	return s.Update(ctx, userID, ItemInput{ProductID: productID, VariantID: variantID, Quantity: 0})
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := lockCart(ctx, repo, userID)
		if err != nil {
			return err
		}
		_, err = repo.Delete(ctx, cart.ID)
		return err
	})
	return wrapDB(err, "clear cart")
}

// ApplyCoupon validates code against the current subtotal and stores the
// normalized code. A rejected coupon is surfaced, never stored.
func (s *service) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (*View, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	priced, err := s.price(ctx, cart)
	if err != nil {
		return nil, err
	}
	coupon, _, err := s.coupons.Validate(ctx, code, s.now().UTC(), priced.SubtotalCents)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCoupon(ctx, cart.ID, &coupon.Code); err != nil {
		return nil, wrapDB(err, "apply coupon")
	}
	cart.CouponCode = &coupon.Code
	return s.view(ctx, cart)
}

func (s *service) RemoveCoupon(ctx context.Context, userID uuid.UUID) (*View, error) {
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateCoupon(ctx, cart.ID, nil); err != nil {
		return nil, wrapDB(err, "remove coupon")
	}
	cart.CouponCode = nil
	return s.view(ctx, cart)
}

func (s *service) SetDeliveryAddress(ctx context.Context, userID uuid.UUID, address types.Address) (*View, error) {
	normalized := address.Normalize()
	if err := normalized.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	cart, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	cart.DeliveryAddress = &normalized
	if err := s.repo.UpdateDeliveryAddress(ctx, cart); err != nil {
		return nil, wrapDB(err, "set delivery address")
	}
	return s.view(ctx, cart)
}

func (s *service) load(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := findCart(ctx, s.repo, userID)
	if err != nil {
		return nil, wrapDB(err, "load cart")
	}
	return cart, nil
}

// price is the strict snapshot used when a coupon is checked.
func (s *service) price(ctx context.Context, cart *models.Cart) (*Priced, error) {
	products, err := s.products.FindByIDs(ctx, ProductIDs(cart))
	if err != nil {
		return nil, err
	}
	return Price(cart, products)
}

func findCart(ctx context.Context, repo CartRepository, userID uuid.UUID) (*models.Cart, error) {
	return presentCart(repo.FindByUser(ctx, userID))
}

// lockCart holds the cart row until the transaction ends, so edits queue
// behind a completion that is consuming the same cart.
func lockCart(ctx context.Context, repo CartRepository, userID uuid.UUID) (*models.Cart, error) {
	return presentCart(repo.FindByUserForUpdate(ctx, userID))
}

func presentCart(cart *models.Cart, err error) (*models.Cart, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
		}
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return cart, nil
}

func findItem(cart *models.Cart, productID uuid.UUID, variantID *uuid.UUID) *models.CartItem {
	for i := range cart.Items {
		if cart.Items[i].Matches(productID, variantID) {
			return &cart.Items[i]
		}
	}
	return nil
}

// removeItem deletes item and reports whether the cart went with it.
func removeItem(ctx context.Context, repo CartRepository, cart *models.Cart, item *models.CartItem) (bool, error) {
	if err := repo.DeleteItem(ctx, item.ID); err != nil {
		return false, err
	}
	remaining, err := repo.CountItems(ctx, cart.ID)
	if err != nil {
		return false, err
	}
	if remaining > 0 {
		return false, nil
	}
	_, err = repo.Delete(ctx, cart.ID)
	return err == nil, err
}

func wrapDB(err error, op string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: "+op)
}
