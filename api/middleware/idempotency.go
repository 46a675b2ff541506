package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-checkout/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-checkout/pkg/errors"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	pkgredis "github.com/angelmondragon/marketplace-checkout/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotency-Replayed"
	maxIdempotencyKey = 255

	defaultIdempotencyTTL  = 24 * time.Hour
	criticalIdempotencyTTL = 7 * 24 * time.Hour

	// inFlightTTL bounds how long a crashed attempt blocks its key.
	inFlightTTL = 2 * time.Minute
)

// ResponseStore persists replayable responses keyed by Idempotency-Key.
type ResponseStore interface {
	pkgredis.IdempotencyStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// idempotentRoute matches a chi route pattern by prefix and optional suffix.
type idempotentRoute struct {
	method string
	prefix string
	suffix string
	exact  bool
	ttl    time.Duration
}

func (rt idempotentRoute) matches(method, pattern string) bool {
	if rt.method != method {
		return false
	}
	if rt.exact {
		return pattern == rt.prefix
	}
	return strings.HasPrefix(pattern, rt.prefix) && strings.HasSuffix(pattern, rt.suffix)
}

var idempotentRoutes = []idempotentRoute{
	{method: http.MethodPost, prefix: "/api/v1/cart/items", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPut, prefix: "/api/v1/cart/coupon", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/seller/orders/", suffix: "/fulfillment", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/seller/coupons", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/admin/orders/", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/checkout/session", exact: true, ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/orders", exact: true, ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/orders/", suffix: "/cancel", ttl: criticalIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/orders/", suffix: "/payment-session", ttl: criticalIdempotencyTTL},
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if pattern == "" {
		return 0, false
	}
	for _, rt := range idempotentRoutes {
		if rt.matches(method, pattern) {
			return rt.ttl, true
		}
	}
	return 0, false
}

// storedResponse is either an in-flight claim or a completed response.
type storedResponse struct {
	Pending     bool              `json:"pending,omitempty"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// the listed routes. Requests without the header pass through unchanged.
// The key is claimed before the handler runs, so a concurrent duplicate gets
// a conflict instead of a second execution. Responses of 500 and above
// release the claim so the client may retry.
func Idempotency(store ResponseStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if !ok || store == nil || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(clientKey) > maxIdempotencyKey {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header too long"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			g := guard{
				store: store,
				key:   store.IdempotencyKey(UserIDFromContext(ctx)+"|"+r.Method+"|"+r.URL.Path, clientKey),
				hash:  hashBody(body),
				ttl:   ttl,
			}

			claimed, err := g.claim(r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if !claimed {
				if err := g.replay(r, w); err != nil {
					responses.WriteError(ctx, logg, w, err)
				}
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			if err := g.persist(r, capture); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

type guard struct {
	store ResponseStore
	key   string
	hash  string
	ttl   time.Duration
}

func (g guard) claim(r *http.Request) (bool, error) {
	marker, err := json.Marshal(storedResponse{Pending: true, RequestHash: g.hash})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency claim")
	}
	ok, err := g.store.SetNX(r.Context(), g.key, string(marker), inFlightTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key")
	}
	return ok, nil
}

func (g guard) replay(r *http.Request, w http.ResponseWriter) error {
	raw, err := g.store.Get(r.Context(), g.key)
	if err != nil && !errors.Is(err, redis.Nil) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	if raw == "" {
		// the claim expired between SetNX and Get
		return pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if stored.RequestHash != g.hash {
		return pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}
	if stored.Pending {
		return pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress")
	}

	body, err := base64.StdEncoding.DecodeString(stored.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency body")
	}
	for name, value := range stored.Headers {
		w.Header().Set(name, value)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(body)
	return nil
}

func (g guard) persist(r *http.Request, capture *responseCapture) error {
	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		return g.store.Del(r.Context(), g.key)
	}

	stored := storedResponse{
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		RequestHash: g.hash,
	}
	if ct := capture.Header().Get("Content-Type"); ct != "" {
		stored.Headers = map[string]string{"Content-Type": ct}
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return g.store.Set(r.Context(), g.key, string(payload), g.ttl)
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	// a group-level middleware only sees the partial "/api/v1/*" pattern
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" && !strings.Contains(pattern, "*") {
			return pattern
		}
	}
	return r.URL.Path
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *responseCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *responseCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *responseCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
