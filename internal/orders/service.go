package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-checkout/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// StockRestorer puts cancelled quantities back on the shelf.
type StockRestorer interface {
	RestoreStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, variantID *uuid.UUID, qty int) error
}

// Actor is the authenticated caller of a state-changing operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.UserRole
}

// OrderList is one page of orders plus the cursor for the next.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Service exposes order reads and the post-purchase lifecycle.
type Service interface {
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	ListSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error)
	Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	FindBySession(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Order, error)
	Delete(ctx context.Context, userID, orderID uuid.UUID) error
	Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error)
	UpdateFulfillment(ctx context.Context, actor Actor, orderID uuid.UUID, target enums.FulfillmentStatus) (*models.Order, error)
	MarkRefunded(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outbox.Emitter
	stock  StockRestorer
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, stock StockRestorer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock restorer required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: emitter,
		stock:  stock,
		logg:   logg,
		now:    time.Now,
	}, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, wrapList(err)
	}
	return buildList(rows, params.Limit), nil
}

func (s *service) ListSeller(ctx context.Context, sellerID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListBySeller(ctx, sellerID, params)
	if err != nil {
		return nil, wrapList(err)
	}
	return buildList(rows, params.Limit), nil
}

func (s *service) Get(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := findOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

// FindBySession returns the caller's order created from a gateway session.
func (s *service) FindBySession(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Order, error) {
	order, err := s.repo.FindByCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by session")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	return order, nil
}

func (s *service) Delete(ctx context.Context, userID, orderID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := findOrderForUpdate(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if !IsDeletable(order) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only delivered, cancelled or unpaid pending orders can be deleted").
				WithDetails(statusDetails(order))
		}
		// an unpaid pending order still holds the units taken at placement
		if order.FulfillmentStatus == enums.FulfillmentPending {
			if err := s.restoreStock(ctx, tx, order); err != nil {
				return err
			}
		}
		return repo.Delete(ctx, order.ID)
	})
	return wrapTx(err, "delete order")
}

// Cancel is the buyer's cancellation. It is only possible before shipping and
// returns every item's quantity to stock in the same transaction.
func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := findOrderForUpdate(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if order.FulfillmentStatus != enums.FulfillmentPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending orders can be cancelled").
				WithDetails(statusDetails(order))
		}

		now := s.now().UTC()
		if err := s.restoreStock(ctx, tx, order); err != nil {
			return err
		}
		if err := repo.Update(ctx, order.ID, map[string]any{
			"fulfillment_status": enums.FulfillmentCancelled,
			"cancelled_at":       now,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: userID, Role: enums.RoleBuyer},
			Data: payloads.OrderCanceledEvent{
				OrderID:       order.ID,
				UserID:        order.UserID,
				PaymentStatus: order.PaymentStatus,
				CanceledAt:    now,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, wrapTx(err, "cancel order")
	}
	return findOrder(ctx, s.repo, orderID)
}

// UpdateFulfillment moves the order along Pending -> Shipped -> Delivered or
// cancels it. Sellers may only touch orders containing their items.
func (s *service) UpdateFulfillment(ctx context.Context, actor Actor, orderID uuid.UUID, target enums.FulfillmentStatus) (*models.Order, error) {
	if !target.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid fulfillment status %q", target)
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := findOrderForUpdate(ctx, repo, orderID)
		if err != nil {
			return err
		}
		switch actor.Role {
		case enums.RoleAdmin:
		case enums.RoleSeller:
			if !HasSeller(order, actor.UserID) {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order has no items from this seller")
			}
		default:
			return pkgerrors.New(pkgerrors.CodeForbidden, "seller or admin role required")
		}
		from := order.FulfillmentStatus
		if !CanTransitionFulfillment(from, target) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot move order from %s to %s", from, target).
				WithDetails(statusDetails(order))
		}

		now := s.now().UTC()
		updates := map[string]any{"fulfillment_status": target}
		switch target {
		case enums.FulfillmentShipped:
			updates["shipped_at"] = now
		case enums.FulfillmentDelivered:
			updates["delivered_at"] = now
		case enums.FulfillmentCancelled:
			updates["cancelled_at"] = now
			if from == enums.FulfillmentPending {
				if err := s.restoreStock(ctx, tx, order); err != nil {
					return err
				}
			}
		}
		if err := repo.Update(ctx, order.ID, updates); err != nil {
			return err
		}
		return s.emitStateChanged(ctx, tx, actor, order, target, order.PaymentStatus, now)
	})
	if err != nil {
		return nil, wrapTx(err, "update fulfillment")
	}
	return findOrder(ctx, s.repo, orderID)
}

// MarkRefunded records a refund settled outside the system. Admin only.
func (s *service) MarkRefunded(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	if actor.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := findOrderForUpdate(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if !CanTransitionPayment(order.PaymentStatus, enums.PaymentStatusRefunded) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only paid orders can be refunded").
				WithDetails(statusDetails(order))
		}
		now := s.now().UTC()
		if err := repo.Update(ctx, order.ID, map[string]any{
			"payment_status": enums.PaymentStatusRefunded,
			"refunded_at":    now,
		}); err != nil {
			return err
		}
		return s.emitStateChanged(ctx, tx, actor, order, order.FulfillmentStatus, enums.PaymentStatusRefunded, now)
	})
	if err != nil {
		return nil, wrapTx(err, "mark refunded")
	}
	return findOrder(ctx, s.repo, orderID)
}

func (s *service) restoreStock(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	for _, item := range order.Items {
		err := s.stock.RestoreStock(ctx, tx, item.ProductID, item.VariantID, item.Quantity)
		if err == nil {
			continue
		}
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			// The listing is gone; there is no shelf to return the units to.
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"order_id":   order.ID.String(),
				"product_id": item.ProductID.String(),
				"quantity":   item.Quantity,
			})
			s.logg.Warn(logCtx, "orders.restore_stock_skipped")
			continue
		}
		return err
	}
	return nil
}

func (s *service) emitStateChanged(ctx context.Context, tx *gorm.DB, actor Actor, order *models.Order, toFulfillment enums.FulfillmentStatus, toPayment enums.PaymentStatus, at time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStateChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role},
		Data: payloads.OrderStateChangedEvent{
			OrderID:         order.ID,
			FromFulfillment: order.FulfillmentStatus,
			ToFulfillment:   toFulfillment,
			FromPayment:     order.PaymentStatus,
			ToPayment:       toPayment,
			ChangedBy:       actor.UserID,
			ChangedAt:       at,
		},
		OccurredAt: at,
	})
}

type stateDetails struct {
	FulfillmentStatus enums.FulfillmentStatus `json:"fulfillment_status"`
	PaymentStatus     enums.PaymentStatus     `json:"payment_status"`
}

func statusDetails(order *models.Order) stateDetails {
	return stateDetails{FulfillmentStatus: order.FulfillmentStatus, PaymentStatus: order.PaymentStatus}
}

func buildList(rows []models.Order, limit int) *OrderList {
	orders, next := pagination.Cut(rows, limit, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	return &OrderList{Orders: orders, NextCursor: next}
}

func findOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	return mapFind(order, err)
}

func findOrderForUpdate(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByIDForUpdate(ctx, orderID)
	return mapFind(order, err)
}

func mapFind(order *models.Order, err error) (*models.Order, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func wrapList(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
}

func wrapTx(err error, op string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: "+op)
}
