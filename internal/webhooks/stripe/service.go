package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketplace-checkout/internal/checkout"
	"github.com/angelmondragon/marketplace-checkout/internal/payments"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

type completer interface {
	Complete(ctx context.Context, source string, sess *payments.Session) (*models.Order, error)
}

type ServiceParams struct {
	Checkout completer
	Logger   *logger.Logger
}

// Service routes verified Stripe events into checkout completion.
type Service struct {
	checkout completer
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{checkout: params.Checkout, logg: logg}, nil
}

// HandleEvent completes paid checkout sessions. Events of other types and
// sessions still awaiting an async payment are acknowledged untouched.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
	default:
		s.logg.Debug(ctx, "stripe.event_ignored")
		return nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session event")
	}
	sess := payments.FromStripe(&cs)
	if !sess.Paid {
		s.logg.Info(s.logg.WithField(ctx, "session_id", sess.ID), "stripe.session_awaiting_payment")
		return nil
	}

	order, err := s.checkout.Complete(ctx, checkout.SourceWebhook, sess)
	if err != nil {
		if rejectedByDomain(err) {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"session_id": sess.ID,
				"reason":     string(pkgerrors.CodeOf(err)),
			}), "stripe.completion_rejected")
			return nil
		}
		return err
	}
	s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID.String()), "stripe.session_completed")
	return nil
}

// rejectedByDomain lists completion failures a retry cannot fix.
func rejectedByDomain(err error) bool {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeEmptyCart, pkgerrors.CodeInsufficientStock, pkgerrors.CodeCouponRejected,
		pkgerrors.CodeNotFound, pkgerrors.CodeStateConflict, pkgerrors.CodeForbidden:
		return true
	default:
		return false
	}
}
