package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-checkout/internal/cart"
	"github.com/angelmondragon/marketplace-checkout/internal/coupons"
	"github.com/angelmondragon/marketplace-checkout/internal/orders"
	"github.com/angelmondragon/marketplace-checkout/internal/payments"
	product "github.com/angelmondragon/marketplace-checkout/internal/products"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/metrics"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
	"github.com/angelmondragon/marketplace-checkout/pkg/types"
)

const (
	SourceWebhook  = "webhook"
	SourceCallback = "callback"
	SourcePayLater = "pay_later"

	sessionPlaceholder = "{CHECKOUT_SESSION_ID}"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RateLimiter is the fixed-window counter used to throttle session creation.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Service turns carts into gateway sessions and paid sessions into orders.
type Service interface {
	CreateSession(ctx context.Context, input SessionInput) (*SessionResult, error)
	Complete(ctx context.Context, source string, sess *payments.Session) (*models.Order, error)
	ConfirmSuccess(ctx context.Context, userID uuid.UUID, sessionID string) (*models.Order, error)
	PlaceUnpaidOrder(ctx context.Context, input UnpaidOrderInput) (*models.Order, error)
	CreateOrderPaymentSession(ctx context.Context, userID, orderID uuid.UUID) (*SessionResult, error)
}

// SessionInput starts a hosted payment for the caller's cart.
type SessionInput struct {
	UserID          uuid.UUID
	DeliveryAddress *types.Address
	PaymentMethod   enums.PaymentMethod
	IdempotencyKey  string
}

// UnpaidOrderInput places an order that is settled outside the gateway.
type UnpaidOrderInput struct {
	UserID          uuid.UUID
	DeliveryAddress *types.Address
	PaymentMethod   enums.PaymentMethod
}

// SessionResult is the redirect handle returned to the client.
type SessionResult struct {
	SessionID     string     `json:"session_id"`
	URL           string     `json:"url"`
	AmountCents   int        `json:"amount_cents"`
	Currency      string     `json:"currency"`
	SubtotalCents int        `json:"subtotal_cents"`
	DiscountCents int        `json:"discount_cents"`
	CouponCode    *string    `json:"coupon_code,omitempty"`
	OrderID       *uuid.UUID `json:"order_id,omitempty"`
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	TransactionRunner txRunner
	CartRepo          cart.CartRepository
	OrdersRepo        orders.Repository
	Products          product.Service
	Coupons           *coupons.Validator
	Gateway           payments.Gateway
	Outbox            outbox.Emitter
	RateLimiter       RateLimiter
	Metrics           *metrics.CheckoutMetrics
	Logger            *logger.Logger

	Currency   string
	SuccessURL string
	CancelURL  string
	RateLimit  int
	RateWindow time.Duration
}

type service struct {
	tx       txRunner
	carts    cart.CartRepository
	orders   orders.Repository
	products product.Service
	coupons  *coupons.Validator
	gateway  payments.Gateway
	outbox   outbox.Emitter
	limiter  RateLimiter
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger

	currency   string
	successURL string
	cancelURL  string
	rateLimit  int64
	rateWindow time.Duration
	now        func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.CartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product service required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon validator required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if strings.TrimSpace(params.SuccessURL) == "" || strings.TrimSpace(params.CancelURL) == "" {
		return nil, fmt.Errorf("success and cancel urls required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:         params.TransactionRunner,
		carts:      params.CartRepo,
		orders:     params.OrdersRepo,
		products:   params.Products,
		coupons:    params.Coupons,
		gateway:    params.Gateway,
		outbox:     params.Outbox,
		limiter:    params.RateLimiter,
		metrics:    params.Metrics,
		logg:       logg,
		currency:   currency,
		successURL: withSessionPlaceholder(params.SuccessURL),
		cancelURL:  params.CancelURL,
		rateLimit:  int64(params.RateLimit),
		rateWindow: params.RateWindow,
		now:        time.Now,
	}, nil
}

// CreateSession prices the cart, re-checks the applied coupon and opens a
// gateway session. Nothing is reserved or written locally.
func (s *service) CreateSession(ctx context.Context, input SessionInput) (*SessionResult, error) {
	result, err := s.createSession(ctx, input)
	s.metrics.ObserveSession(resultLabel(err))
	return result, err
}

func (s *service) createSession(ctx context.Context, input SessionInput) (*SessionResult, error) {
	method := input.PaymentMethod
	if method == "" {
		method = enums.PaymentMethodCard
	}
	if !method.SupportsHostedSession() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "payment method %q is settled offline; place the order instead", method)
	}
	if err := s.allowSession(ctx, input.UserID); err != nil {
		return nil, err
	}

	record, err := s.carts.FindByUser(ctx, input.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, emptyCart()
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if len(record.Items) == 0 {
		return nil, emptyCart()
	}

	address, err := resolveAddress(input.DeliveryAddress, record.DeliveryAddress)
	if err != nil {
		return nil, err
	}

	products, err := s.products.FindByIDs(ctx, cart.ProductIDs(record))
	if err != nil {
		return nil, err
	}
	priced, err := cart.Price(record, products)
	if err != nil {
		return nil, err
	}
	quote, err := s.quote(ctx, s.coupons, record, priced)
	if err != nil {
		return nil, err
	}

	if quote.TotalCents <= 0 {
		return nil, zeroTotal(quote.SubtotalCents, quote.DiscountCents)
	}

	lines := make([]payments.LineItem, 0, len(priced.Lines))
	for _, line := range priced.Lines {
		name := line.Purchasable.Product.Name
		if variant := line.Purchasable.VariantName(); variant != nil {
			name = fmt.Sprintf("%s (%s)", name, *variant)
		}
		lines = append(lines, payments.LineItem{
			Name:            name,
			UnitAmountCents: line.Purchasable.UnitPriceCents,
			Quantity:        line.Item.Quantity,
		})
	}

	metadata := payments.Metadata{
		UserID:          input.UserID,
		DeliveryAddress: address,
		DiscountCents:   quote.DiscountCents,
		PaymentMethod:   method,
		SubtotalCents:   quote.SubtotalCents,
	}
	if quote.CouponCode != nil {
		metadata.CouponCode = *quote.CouponCode
	}

	sess, err := s.gateway.CreateSession(ctx, payments.SessionRequest{
		AmountCents:    quote.TotalCents,
		Currency:       s.currency,
		LineItems:      lines,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		Metadata:       metadata,
		IdempotencyKey: input.IdempotencyKey,
	})
	if err != nil {
		return nil, gatewayError(err)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"session_id":   sess.ID,
		"amount_cents": quote.TotalCents,
	})
	s.logg.Info(logCtx, "checkout.session_created")

	return &SessionResult{
		SessionID:     sess.ID,
		URL:           sess.URL,
		AmountCents:   quote.TotalCents,
		Currency:      s.currency,
		SubtotalCents: quote.SubtotalCents,
		DiscountCents: quote.DiscountCents,
		CouponCode:    quote.CouponCode,
	}, nil
}

// CreateOrderPaymentSession opens a gateway session for an existing unpaid
// order. The order total is charged as-is; the cart is not involved.
func (s *service) CreateOrderPaymentSession(ctx context.Context, userID, orderID uuid.UUID) (*SessionResult, error) {
	result, err := s.createOrderPaymentSession(ctx, userID, orderID)
	s.metrics.ObserveSession(resultLabel(err))
	return result, err
}

func (s *service) createOrderPaymentSession(ctx context.Context, userID, orderID uuid.UUID) (*SessionResult, error) {
	if err := s.allowSession(ctx, userID); err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user")
	}
	if order.FulfillmentStatus == enums.FulfillmentCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
	}
	if order.PaymentStatus != enums.PaymentStatusUnpaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
	}

	if order.TotalCents <= 0 {
		return nil, zeroTotal(order.SubtotalCents, order.DiscountCents)
	}

	id := order.ID
	sess, err := s.gateway.CreateSession(ctx, payments.SessionRequest{
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		LineItems:   orderLines(order),
		SuccessURL:  s.successURL,
		CancelURL:   s.cancelURL,
		Metadata: payments.Metadata{
			UserID:        userID,
			OrderID:       &id,
			PaymentMethod: enums.PaymentMethodCard,
		},
		IdempotencyKey: "order-payment-" + order.ID.String(),
	})
	if err != nil {
		return nil, gatewayError(err)
	}
	return &SessionResult{
		SessionID:     sess.ID,
		URL:           sess.URL,
		AmountCents:   order.TotalCents,
		Currency:      order.Currency,
		SubtotalCents: order.SubtotalCents,
		DiscountCents: order.DiscountCents,
		CouponCode:    order.CouponCode,
		OrderID:       &id,
	}, nil
}

func (s *service) allowSession(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil || s.rateLimit <= 0 || s.rateWindow <= 0 {
		return nil
	}
	allowed, count, err := s.limiter.FixedWindowAllow(ctx, "checkout_session:"+userID.String(), s.rateLimit, s.rateWindow)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit check")
	}
	if !allowed {
		s.logg.Warn(s.logg.WithField(ctx, "attempts", count), "checkout.session_rate_limited")
		return pkgerrors.New(pkgerrors.CodeRateLimit, "too many checkout attempts; try again shortly")
	}
	return nil
}

// quote applies the cart's coupon, if any, against the priced subtotal. An
// invalid coupon aborts; it is never dropped silently.
func (s *service) quote(ctx context.Context, validator *coupons.Validator, record *models.Cart, priced *cart.Priced) (quote, error) {
	q := quote{SubtotalCents: priced.SubtotalCents, TotalCents: priced.SubtotalCents}
	if record.CouponCode == nil {
		return q, nil
	}
	coupon, discount, err := validator.Validate(ctx, *record.CouponCode, s.now().UTC(), priced.SubtotalCents)
	if err != nil {
		return q, err
	}
	total, applied, err := discount.ApplyToSubtotal(priced.SubtotalCents)
	if err != nil {
		return q, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply coupon")
	}
	code := coupon.Code
	q.CouponCode = &code
	q.DiscountCents = applied
	q.TotalCents = total
	return q, nil
}

type quote struct {
	SubtotalCents int
	DiscountCents int
	TotalCents    int
	CouponCode    *string
}

func resolveAddress(requested, stored *types.Address) (*types.Address, error) {
	source := requested
	if source == nil {
		source = stored
	}
	if source == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address is required")
	}
	normalized := source.Normalize()
	if err := normalized.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}
	return &normalized, nil
}

func orderLines(order *models.Order) []payments.LineItem {
	lines := make([]payments.LineItem, 0, len(order.Items))
	for _, item := range order.Items {
		name := item.ProductName
		if item.VariantName != nil {
			name = fmt.Sprintf("%s (%s)", name, *item.VariantName)
		}
		lines = append(lines, payments.LineItem{Name: name, UnitAmountCents: item.UnitPriceCents, Quantity: item.Quantity})
	}
	return lines
}

func withSessionPlaceholder(raw string) string {
	if strings.Contains(raw, sessionPlaceholder) {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	// The placeholder must stay unescaped for the gateway to substitute it.
	sep := "?"
	if u.RawQuery != "" {
		sep = "&"
	}
	return raw + sep + "session_id=" + sessionPlaceholder
}

func emptyCart() error {
	return pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
}

// zeroTotal rejects sessions the gateway cannot charge. A coupon that covers
// the whole cart leaves nothing to collect in payment mode.
func zeroTotal(subtotalCents, discountCents int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "checkout total must be greater than zero").
		WithDetails(map[string]any{
			"subtotal_cents": subtotalCents,
			"discount_cents": discountCents,
		})
}

func gatewayError(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment gateway")
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return strings.ToLower(string(pkgerrors.CodeOf(err)))
}
