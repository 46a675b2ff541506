package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	pkgstripe "github.com/angelmondragon/marketplace-checkout/pkg/stripe"
)

const aggregateLineName = "Order total"

type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type checkoutSessions struct{}

func (checkoutSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.New(params)
}

func (checkoutSessions) Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	return session.Get(id, params)
}

// StripeGateway opens Stripe Checkout sessions in payment mode.
type StripeGateway struct {
	sessions sessionAPI
}

// NewStripeGateway requires an initialized client so the API key is set.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	return &StripeGateway{sessions: checkoutSessions{}}, nil
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if req.AmountCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must not be negative")
	}
	metadata, err := req.Metadata.Encode()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode session metadata")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Metadata.UserID.String()),
		LineItems:         lineItemParams(req),
		Metadata:          metadata,
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	created, err := g.sessions.New(params)
	if err != nil {
		return nil, wrapStripeError(err, "create checkout session")
	}
	return FromStripe(created), nil
}

func (g *StripeGateway) RetrieveSession(ctx context.Context, id string) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	found, err := g.sessions.Get(id, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "checkout session not found")
		}
		return nil, wrapStripeError(err, "retrieve checkout session")
	}
	return FromStripe(found), nil
}

// FromStripe maps a Stripe checkout session, including ones decoded from
// webhook payloads.
func FromStripe(cs *stripe.CheckoutSession) *Session {
	if cs == nil {
		return nil
	}
	metadata := cs.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	paid := cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
	return &Session{
		ID:               cs.ID,
		URL:              cs.URL,
		AmountTotalCents: int(cs.AmountTotal),
		Currency:         strings.ToLower(string(cs.Currency)),
		Paid:             paid,
		Metadata:         metadata,
	}
}

// lineItemParams sends the per-item lines only while they add up to the
// charged amount. A discounted total goes through as one aggregated line.
func lineItemParams(req SessionRequest) []*stripe.CheckoutSessionLineItemParams {
	currency := strings.ToLower(req.Currency)
	if len(req.LineItems) > 0 && req.LineItemsTotal() == req.AmountCents {
		out := make([]*stripe.CheckoutSessionLineItemParams, 0, len(req.LineItems))
		for _, item := range req.LineItems {
			out = append(out, lineItem(currency, item))
		}
		return out
	}
	return []*stripe.CheckoutSessionLineItemParams{
		lineItem(currency, LineItem{Name: aggregateLineName, UnitAmountCents: req.AmountCents, Quantity: 1}),
	}
}

func lineItem(currency string, item LineItem) *stripe.CheckoutSessionLineItemParams {
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(int64(item.Quantity)),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(int64(item.UnitAmountCents)),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(item.Name),
			},
		},
	}
}

func wrapStripeError(err error, op string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, op+": "+stripeErr.Msg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, op)
}
