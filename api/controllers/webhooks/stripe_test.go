package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	stripewebhook "github.com/angelmondragon/marketplace-checkout/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

const testSecret = "whsec_test"

func TestStripeWebhookProcessesOnceAndAcknowledgesReplays(t *testing.T) {
	payload := eventPayload(t)
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSecret}, newGuard(t), logger.Nop())

	rec := deliver(handler, payload, signedHeader(payload, testSecret))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, service.calls)

	replay := deliver(handler, payload, signedHeader(payload, testSecret))
	require.Equal(t, http.StatusOK, replay.Code, replay.Body.String())
	assert.Equal(t, 1, service.calls, "a replayed event id must not be reprocessed")
}

func TestStripeWebhookRejectsBadSignatures(t *testing.T) {
	payload := eventPayload(t)
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSecret}, newGuard(t), logger.Nop())

	cases := map[string]string{
		"missing":      "",
		"wrong secret": signedHeader(payload, "whsec_other"),
		"garbage":      "t=1,v1=invalid",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			rec := deliver(handler, payload, header)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), string(pkgerrors.CodeValidation))
		})
	}
	assert.Zero(t, service.calls)
}

func TestStripeWebhookReleasesClaimOnFailure(t *testing.T) {
	payload := eventPayload(t)
	service := &fakeStripeWebhookService{err: pkgerrors.New(pkgerrors.CodeDependency, "db down")}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSecret}, newGuard(t), logger.Nop())

	rec := deliver(handler, payload, signedHeader(payload, testSecret))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	service.err = nil
	retry := deliver(handler, payload, signedHeader(payload, testSecret))
	assert.Equal(t, http.StatusOK, retry.Code)
	assert.Equal(t, 2, service.calls, "a failed delivery must be retried on redelivery")
}

func TestStripeWebhookGuardFailureIsDependencyError(t *testing.T) {
	payload := eventPayload(t)
	store := newInMemoryStore()
	store.setErr = errors.New("redis down")
	guard, err := stripewebhook.NewIdempotencyGuard(store, time.Minute, "stripe-webhook")
	require.NoError(t, err)
	service := &fakeStripeWebhookService{}
	handler := StripeWebhook(service, &fakeSigningClient{secret: testSecret}, guard, logger.Nop())

	rec := deliver(handler, payload, signedHeader(payload, testSecret))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Zero(t, service.calls)
}

func TestStripeWebhookRequiresDependencies(t *testing.T) {
	handler := StripeWebhook(nil, &fakeSigningClient{secret: testSecret}, newGuard(t), nil)
	rec := deliver(handler, []byte(`{}`), "t=1,v1=x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func deliver(handler http.Handler, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if header != "" {
		req.Header.Set("Stripe-Signature", header)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func newGuard(t *testing.T) *stripewebhook.IdempotencyGuard {
	t.Helper()
	guard, err := stripewebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "stripe-webhook")
	require.NoError(t, err)
	return guard
}

func eventPayload(t *testing.T) []byte {
	t.Helper()
	session := stripe.CheckoutSession{
		ID:            "cs_test_" + uuid.NewString(),
		PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid,
		AmountTotal:   1200,
		Currency:      stripe.CurrencyUSD,
		Metadata:      map[string]string{"user_id": uuid.NewString()},
	}
	raw, err := json.Marshal(session)
	require.NoError(t, err)

	event := map[string]any{
		"id":          "evt_" + uuid.NewString(),
		"object":      "event",
		"type":        string(stripe.EventTypeCheckoutSessionCompleted),
		"api_version": stripe.APIVersion,
		"data":        map[string]json.RawMessage{"object": raw},
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return payload
}

func signedHeader(payload []byte, secret string) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

type fakeStripeWebhookService struct {
	calls int
	err   error
}

func (f *fakeStripeWebhookService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	f.calls++
	return f.err
}

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) SigningSecret() string {
	return c.secret
}

type inMemoryStore struct {
	mu     sync.Mutex
	data   map[string]string
	setErr error
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{data: make(map[string]string)}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return false, s.setErr
	}
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("mc:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
