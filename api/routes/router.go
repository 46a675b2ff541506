package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-checkout/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketplace-checkout/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/marketplace-checkout/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/marketplace-checkout/api/controllers/webhooks"
	"github.com/angelmondragon/marketplace-checkout/api/middleware"
	"github.com/angelmondragon/marketplace-checkout/internal/cart"
	checkoutsvc "github.com/angelmondragon/marketplace-checkout/internal/checkout"
	"github.com/angelmondragon/marketplace-checkout/internal/coupons"
	"github.com/angelmondragon/marketplace-checkout/internal/orders"
	products "github.com/angelmondragon/marketplace-checkout/internal/products"
	stripewebhook "github.com/angelmondragon/marketplace-checkout/internal/webhooks/stripe"
	"github.com/angelmondragon/marketplace-checkout/pkg/auth/session"
	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	"github.com/angelmondragon/marketplace-checkout/pkg/db"
	"github.com/angelmondragon/marketplace-checkout/pkg/enums"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
)

type sessionManager interface {
	session.RevocationChecker
	Revoke(ctx context.Context, jti string, remaining time.Duration) error
}

type redisStore interface {
	db.Pinger
	middleware.ResponseStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type stripeClient interface {
	SigningSecret() string
}

// Dependencies carries everything the HTTP surface dispatches to.
type Dependencies struct {
	DB       db.Pinger
	Redis    redisStore
	Gatherer prometheus.Gatherer
	Sessions sessionManager

	Carts    cart.Service
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Coupons  *coupons.Service
	Products products.Service

	Stripe             stripeClient
	StripeWebhook      *stripewebhook.Service
	StripeWebhookGuard *stripewebhook.IdempotencyGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]db.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	webhookPolicy := middleware.NewRateLimitPolicy(
		"stripe_webhook",
		cfg.Eventing.WebhookRateWindow,
		cfg.Eventing.WebhookRateLimit,
	)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.IPRateLimit(webhookPolicy, deps.Redis, logg)).
			Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhook, deps.Stripe, deps.StripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, deps.Sessions, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Post("/auth/logout", controllers.AuthLogout(deps.Sessions, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(deps.Carts, logg))
			r.Delete("/", cartcontrollers.CartClear(deps.Carts, logg))
			r.Post("/items", cartcontrollers.CartAddItem(deps.Carts, logg))
			r.Patch("/items", cartcontrollers.CartUpdateItem(deps.Carts, logg))
			r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(deps.Carts, logg))
			r.Put("/coupon", cartcontrollers.CartApplyCoupon(deps.Carts, logg))
			r.Delete("/coupon", cartcontrollers.CartRemoveCoupon(deps.Carts, logg))
			r.Put("/address", cartcontrollers.CartSetAddress(deps.Carts, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/session", controllers.CheckoutSession(deps.Checkout, logg))
			r.Get("/success", controllers.CheckoutSuccess(deps.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.BuyerOrderList(deps.Orders, logg))
			r.Post("/", ordercontrollers.PlaceOrder(deps.Checkout, logg))
			r.Get("/{orderId}", ordercontrollers.BuyerOrderDetail(deps.Orders, logg))
			r.Delete("/{orderId}", ordercontrollers.BuyerOrderDelete(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.BuyerOrderCancel(deps.Orders, logg))
			r.Post("/{orderId}/payment-session", ordercontrollers.OrderPaymentSession(deps.Checkout, logg))
		})

		r.Route("/seller", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleSeller))
			r.Get("/orders", ordercontrollers.SellerOrderList(deps.Orders, logg))
			r.Post("/orders/{orderId}/fulfillment", ordercontrollers.OrderFulfillment(deps.Orders, logg))
			r.Post("/coupons", controllers.SellerCreateCoupon(deps.Coupons, logg))
			r.Put("/products/{productId}/discount", controllers.SellerProductDiscount(deps.Products, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
			r.Post("/orders/{orderId}/fulfillment", ordercontrollers.OrderFulfillment(deps.Orders, logg))
			r.Post("/orders/{orderId}/refund", ordercontrollers.AdminOrderRefund(deps.Orders, logg))
		})
	})

	return r
}
