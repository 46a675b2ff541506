package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/internal/cart"
	"github.com/angelmondragon/marketplace-checkout/internal/orders"
	"github.com/angelmondragon/marketplace-checkout/internal/payments"
	product "github.com/angelmondragon/marketplace-checkout/internal/products"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-checkout/pkg/types"
)

// consumeInput describes one attempt to turn the user's cart into an order.
type consumeInput struct {
	UserID          uuid.UUID
	DeliveryAddress *types.Address
	PaymentMethod   enums.PaymentMethod
	PaymentStatus   enums.PaymentStatus
	SessionID       string
	ChargedCents    *int
	ChargedCurrency string
}

// Complete reconciles a paid gateway session. Sessions carrying an order id
// settle that order; all others consume the user's current cart.
func (s *service) Complete(ctx context.Context, source string, sess *payments.Session) (*models.Order, error) {
	started := time.Now()
	order, err := s.complete(ctx, sess)
	s.metrics.ObserveCompletion(source, resultLabel(err), time.Since(started))
	return order, err
}

func (s *service) complete(ctx context.Context, sess *payments.Session) (*models.Order, error) {
	if sess == nil || sess.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session required")
	}
	if !sess.Paid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session is not paid")
	}
	meta, err := payments.ParseMetadata(sess.Metadata)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"session_id": sess.ID,
		"user_id":    meta.UserID.String(),
	})
	if meta.OrderID != nil {
		return s.payOrder(ctx, meta, sess)
	}

	charged := sess.AmountTotalCents
	return s.consumeCart(ctx, consumeInput{
		UserID:          meta.UserID,
		DeliveryAddress: meta.DeliveryAddress,
		PaymentMethod:   meta.PaymentMethod,
		PaymentStatus:   enums.PaymentStatusPaid,
		SessionID:       sess.ID,
		ChargedCents:    &charged,
		ChargedCurrency: sess.Currency,
	})
}

// ConfirmSuccess is the buyer-facing return from the hosted page. It reads
// the session back from the gateway instead of trusting the browser.
func (s *service) ConfirmSuccess(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Order, error) {
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	sess, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, gatewayError(err)
	}
	meta, err := payments.ParseMetadata(sess.Metadata)
	if err != nil {
		return nil, err
	}
	if meta.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "checkout session belongs to another user")
	}
	if !sess.Paid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has not completed")
	}

	order, err := s.Complete(ctx, SourceCallback, sess)
	if err == nil || !pkgerrors.Is(err, pkgerrors.CodeEmptyCart) {
		return order, err
	}
	// The webhook usually gets there first; hand back what it created.
	existing, findErr := s.orders.FindByCheckoutSession(ctx, sess.ID)
	if findErr == nil && existing.UserID == userID {
		return existing, nil
	}
	return nil, err
}

// PlaceUnpaidOrder consumes the cart into an order settled outside the
// gateway, e.g. cash on delivery.
func (s *service) PlaceUnpaidOrder(ctx context.Context, input UnpaidOrderInput) (*models.Order, error) {
	started := time.Now()
	order, err := s.placeUnpaidOrder(ctx, input)
	s.metrics.ObserveCompletion(SourcePayLater, resultLabel(err), time.Since(started))
	return order, err
}

func (s *service) placeUnpaidOrder(ctx context.Context, input UnpaidOrderInput) (*models.Order, error) {
	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodCashOnDelivery
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	return s.consumeCart(ctx, consumeInput{
		UserID:          input.UserID,
		DeliveryAddress: input.DeliveryAddress,
		PaymentMethod:   method,
		PaymentStatus:   enums.PaymentStatusUnpaid,
	})
}

// consumeCart is the all-or-nothing conversion of a cart into an order. The
// cart delete is the gate: only the transaction that removes the row wins.
func (s *service) consumeCart(ctx context.Context, in consumeInput) (*models.Order, error) {
	var created *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.carts.WithTx(tx)
		ordersRepo := s.orders.WithTx(tx)

		record, err := cartRepo.FindByUserForUpdate(ctx, in.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return emptyCart()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: lock cart")
		}
		if len(record.Items) == 0 {
			return emptyCart()
		}

		if in.SessionID != "" {
			existing, err := ordersRepo.FindByCheckoutSession(ctx, in.SessionID)
			switch {
			case err == nil:
				s.logg.Warn(s.logg.WithField(ctx, "order_id", existing.ID.String()), "checkout.duplicate_completion")
				return emptyCart()
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: find order by session")
			}
		}

		address, err := resolveAddress(in.DeliveryAddress, record.DeliveryAddress)
		if err != nil {
			return err
		}
		products, err := s.products.FindByIDsTx(ctx, tx, cart.ProductIDs(record))
		if err != nil {
			return err
		}
		priced, err := cart.Price(record, products)
		if err != nil {
			return err
		}
		for _, line := range priced.Lines {
			if line.Item.Quantity > line.Purchasable.Available {
				return s.stockFailure(ctx, line.Item.ProductID, line.Item.VariantID, line.Purchasable.Available, line.Item.Quantity)
			}
		}
		q, err := s.quote(ctx, s.coupons.WithTx(tx), record, priced)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		order := buildOrder(in, address, priced, q, s.currency, now)
		if err := ordersRepo.Create(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert order")
		}

		for _, line := range priced.Lines {
			err := s.products.DecrementStock(ctx, tx, line.Item.ProductID, line.Item.VariantID, line.Item.Quantity)
			if err == nil {
				continue
			}
			if pkgerrors.Is(err, pkgerrors.CodeInsufficientStock) {
				s.metrics.IncStockFailure()
				s.logg.Warn(s.logg.WithField(ctx, "product_id", line.Item.ProductID.String()), "checkout.stock_decrement_failed")
			}
			return err
		}

		deleted, err := cartRepo.Delete(ctx, record.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete cart")
		}
		if deleted != 1 {
			s.logg.Warn(ctx, "checkout.cart_already_consumed")
			return emptyCart()
		}

		if err := s.emitCreated(ctx, tx, order, priced); err != nil {
			return err
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			if err := s.emitPaid(ctx, tx, order, in.SessionID, now); err != nil {
				return err
			}
		}
		created = order
		return nil
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete checkout")
	}

	if in.ChargedCents != nil && *in.ChargedCents != created.TotalCents {
		driftCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id":         created.ID.String(),
			"charged_cents":    *in.ChargedCents,
			"computed_cents":   created.TotalCents,
			"charged_currency": in.ChargedCurrency,
		})
		s.logg.Warn(driftCtx, "checkout.amount_drift")
	}
	s.logg.Info(s.logg.WithField(ctx, "order_id", created.ID.String()), "checkout.order_created")
	return created, nil
}

// payOrder settles a pay-later order through a gateway session.
func (s *service) payOrder(ctx context.Context, meta payments.Metadata, sess *payments.Session) (*models.Order, error) {
	orderID := *meta.OrderID
	var duplicate bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.orders.WithTx(tx)
		order, err := repo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: lock order")
		}
		if order.UserID != meta.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
		}
		if order.PaymentStatus == enums.PaymentStatusPaid && order.CheckoutSessionID != nil && *order.CheckoutSessionID == sess.ID {
			duplicate = true
			return nil
		}
		if order.FulfillmentStatus == enums.FulfillmentCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancelled orders cannot be paid")
		}
		if !orders.CanTransitionPayment(order.PaymentStatus, enums.PaymentStatusPaid) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment")
		}

		now := s.now().UTC()
		sessionID := sess.ID
		if err := repo.Update(ctx, order.ID, map[string]any{
			"payment_status":      enums.PaymentStatusPaid,
			"paid_at":             now,
			"checkout_session_id": sessionID,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: mark order paid")
		}
		order.CheckoutSessionID = &sessionID
		if sess.AmountTotalCents != order.TotalCents {
			s.logg.Warn(s.logg.WithField(ctx, "charged_cents", sess.AmountTotalCents), "checkout.amount_drift")
		}
		return s.emitPaid(ctx, tx, order, sessionID, now)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "pay order")
	}
	if duplicate {
		s.logg.Warn(s.logg.WithField(ctx, "order_id", orderID.String()), "checkout.duplicate_completion")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) stockFailure(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID, available, requested int) error {
	s.metrics.IncStockFailure()
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"product_id": productID.String(),
		"available":  available,
		"requested":  requested,
	})
	s.logg.Warn(logCtx, "checkout.insufficient_stock")
	return product.NewInsufficientStock(productID, variantID, available, requested)
}

func buildOrder(in consumeInput, address *types.Address, priced *cart.Priced, q quote, currency string, now time.Time) *models.Order {
	order := &models.Order{
		ID:                uuid.New(),
		UserID:            in.UserID,
		TotalQuantity:     priced.TotalQuantity,
		SubtotalCents:     q.SubtotalCents,
		DiscountCents:     q.DiscountCents,
		TotalCents:        q.TotalCents,
		Currency:          currency,
		DeliveryAddress:   *address,
		CouponCode:        q.CouponCode,
		PaymentMethod:     in.PaymentMethod,
		PaymentStatus:     in.PaymentStatus,
		FulfillmentStatus: enums.FulfillmentPending,
		Items:             make([]models.OrderItem, 0, len(priced.Lines)),
	}
	if in.SessionID != "" {
		sessionID := in.SessionID
		order.CheckoutSessionID = &sessionID
	}
	if in.PaymentStatus == enums.PaymentStatusPaid {
		paidAt := now
		order.PaidAt = &paidAt
	}
	for _, line := range priced.Lines {
		order.Items = append(order.Items, models.OrderItem{
			ID:             uuid.New(),
			ProductID:      line.Item.ProductID,
			VariantID:      line.Item.VariantID,
			SellerID:       line.Purchasable.Product.SellerID,
			ProductName:    line.Purchasable.Product.Name,
			VariantName:    line.Purchasable.VariantName(),
			Quantity:       line.Item.Quantity,
			UnitPriceCents: line.Purchasable.UnitPriceCents,
			LineTotalCents: line.LineTotalCents,
		})
	}
	return order
}

func (s *service) emitCreated(ctx context.Context, tx *gorm.DB, order *models.Order, priced *cart.Priced) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: enums.RoleBuyer},
		Data: payloads.OrderCreatedEvent{
			OrderID:       order.ID,
			UserID:        order.UserID,
			SellerIDs:     priced.SellerIDs(),
			TotalQuantity: order.TotalQuantity,
			SubtotalCents: order.SubtotalCents,
			DiscountCents: order.DiscountCents,
			TotalCents:    order.TotalCents,
			Currency:      order.Currency,
			CouponCode:    order.CouponCode,
			PaymentMethod: order.PaymentMethod,
			PaymentStatus: order.PaymentStatus,
		},
	})
}

func (s *service) emitPaid(ctx context.Context, tx *gorm.DB, order *models.Order, sessionID string, paidAt time.Time) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: enums.RoleBuyer},
		Data: payloads.OrderPaidEvent{
			OrderID:           order.ID,
			UserID:            order.UserID,
			CheckoutSessionID: sessionID,
			AmountCents:       order.TotalCents,
			Currency:          order.Currency,
			PaidAt:            paidAt,
		},
		OccurredAt: paidAt,
	})
}
