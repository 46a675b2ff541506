package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/marketplace-checkout/internal/payments"
	"github.com/angelmondragon/marketplace-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
)

type fakeCompleter struct {
	sessions []*payments.Session
	sources  []string
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, source string, sess *payments.Session) (*models.Order, error) {
	f.sessions = append(f.sessions, sess)
	f.sources = append(f.sources, source)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Order{ID: uuid.New()}, nil
}

func sessionEvent(t *testing.T, eventType stripe.EventType, status stripe.CheckoutSessionPaymentStatus) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":             "cs_test_1",
		"object":         "checkout.session",
		"amount_total":   300,
		"currency":       "usd",
		"payment_status": status,
		"metadata":       map[string]string{payments.MetaUserID: uuid.NewString()},
	})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{ID: "evt_1", Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestNewServiceRequiresCheckout(t *testing.T) {
	if _, err := NewService(ServiceParams{}); err == nil {
		t.Fatalf("expected error without checkout service")
	}
}

func TestHandleEventCompletesPaidSessions(t *testing.T) {
	cases := []stripe.EventType{
		stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded,
	}
	for _, eventType := range cases {
		t.Run(string(eventType), func(t *testing.T) {
			completer := &fakeCompleter{}
			svc, err := NewService(ServiceParams{Checkout: completer})
			if err != nil {
				t.Fatalf("setup: %v", err)
			}
			if err := svc.HandleEvent(context.Background(), sessionEvent(t, eventType, stripe.CheckoutSessionPaymentStatusPaid)); err != nil {
				t.Fatalf("handle event: %v", err)
			}
			if len(completer.sessions) != 1 {
				t.Fatalf("expected one completion, got %d", len(completer.sessions))
			}
			got := completer.sessions[0]
			if got.ID != "cs_test_1" || got.AmountTotalCents != 300 || !got.Paid {
				t.Fatalf("unexpected session %+v", got)
			}
			if completer.sources[0] != "webhook" {
				t.Fatalf("expected webhook source, got %s", completer.sources[0])
			}
		})
	}
}

func TestHandleEventSkipsUnpaidAndUnrelatedEvents(t *testing.T) {
	completer := &fakeCompleter{}
	svc, _ := NewService(ServiceParams{Checkout: completer})

	if err := svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, stripe.CheckoutSessionPaymentStatusUnpaid)); err != nil {
		t.Fatalf("unpaid session: %v", err)
	}
	if err := svc.HandleEvent(context.Background(), &stripe.Event{Type: stripe.EventTypeInvoicePaid, Data: &stripe.EventData{}}); err != nil {
		t.Fatalf("unrelated event: %v", err)
	}
	if len(completer.sessions) != 0 {
		t.Fatalf("expected no completions, got %d", len(completer.sessions))
	}
	if err := svc.HandleEvent(context.Background(), nil); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for nil event, got %v", err)
	}
}

func TestHandleEventAcknowledgesDomainRejections(t *testing.T) {
	cases := []struct {
		err  error
		ack  bool
		name string
	}{
		{name: "empty cart", err: pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty"), ack: true},
		{name: "stock", err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "short"), ack: true},
		{name: "coupon", err: pkgerrors.New(pkgerrors.CodeCouponRejected, "expired"), ack: true},
		{name: "vanished product", err: pkgerrors.New(pkgerrors.CodeNotFound, "product not found"), ack: true},
		{name: "cancelled order", err: pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled"), ack: true},
		{name: "foreign order", err: pkgerrors.New(pkgerrors.CodeForbidden, "order belongs to another user"), ack: true},
		{name: "database", err: pkgerrors.New(pkgerrors.CodeDependency, "db down"), ack: false},
		{name: "gateway", err: pkgerrors.New(pkgerrors.CodeGateway, "stripe unavailable"), ack: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, _ := NewService(ServiceParams{Checkout: &fakeCompleter{err: tc.err}})
			err := svc.HandleEvent(context.Background(), sessionEvent(t, stripe.EventTypeCheckoutSessionCompleted, stripe.CheckoutSessionPaymentStatusPaid))
			if tc.ack && err != nil {
				t.Fatalf("expected acknowledgement, got %v", err)
			}
			if !tc.ack && err == nil {
				t.Fatalf("expected error to propagate for retry")
			}
		})
	}
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func TestIdempotencyGuardClaimAndRelease(t *testing.T) {
	guard, err := NewIdempotencyGuard(&memoryStore{data: map[string]string{}}, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	ctx := context.Background()

	claimed, err := guard.Claim(ctx, "evt_1")
	if err != nil || !claimed {
		t.Fatalf("first claim: %v %v", claimed, err)
	}
	claimed, _ = guard.Claim(ctx, "evt_1")
	if claimed {
		t.Fatalf("second claim must lose")
	}
	if err := guard.Release(ctx, "evt_1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	claimed, _ = guard.Claim(ctx, "evt_1")
	if !claimed {
		t.Fatalf("claim after release must win")
	}
	if _, err := guard.Claim(ctx, ""); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if _, err := NewIdempotencyGuard(nil, time.Hour, "stripe"); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
