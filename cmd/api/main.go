package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-checkout/api/routes"
	"github.com/angelmondragon/marketplace-checkout/internal/cart"
	"github.com/angelmondragon/marketplace-checkout/internal/checkout"
	"github.com/angelmondragon/marketplace-checkout/internal/coupons"
	"github.com/angelmondragon/marketplace-checkout/internal/orders"
	"github.com/angelmondragon/marketplace-checkout/internal/payments"
	product "github.com/angelmondragon/marketplace-checkout/internal/products"
	stripewebhook "github.com/angelmondragon/marketplace-checkout/internal/webhooks/stripe"
	"github.com/angelmondragon/marketplace-checkout/pkg/auth/session"
	"github.com/angelmondragon/marketplace-checkout/pkg/config"
	"github.com/angelmondragon/marketplace-checkout/pkg/db"
	"github.com/angelmondragon/marketplace-checkout/pkg/logger"
	"github.com/angelmondragon/marketplace-checkout/pkg/metrics"
	"github.com/angelmondragon/marketplace-checkout/pkg/migrate"
	"github.com/angelmondragon/marketplace-checkout/pkg/outbox"
	"github.com/angelmondragon/marketplace-checkout/pkg/redis"
	pkgstripe "github.com/angelmondragon/marketplace-checkout/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	sessions, err := session.NewManager(redisClient)
	if err != nil {
		return err
	}

	stripeClient, err := pkgstripe.NewClient(bootCtx, cfg.Stripe, logg)
	if err != nil {
		return err
	}
	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	products, err := product.NewService(product.NewRepository(dbClient.DB()), dbClient)
	if err != nil {
		return err
	}
	couponRepo := coupons.NewRepository(dbClient.DB())
	couponValidator := coupons.NewValidator(couponRepo)
	cartRepo := cart.NewRepository(dbClient.DB())
	carts, err := cart.NewService(cartRepo, dbClient, products, couponValidator)
	if err != nil {
		return err
	}

	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	ordersRepo := orders.NewRepository(dbClient.DB())
	orderSvc, err := orders.NewService(ordersRepo, dbClient, emitter, products, logg)
	if err != nil {
		return err
	}

	checkoutSvc, err := checkout.NewService(checkout.ServiceParams{
		TransactionRunner: dbClient,
		CartRepo:          cartRepo,
		OrdersRepo:        ordersRepo,
		Products:          products,
		Coupons:           couponValidator,
		Gateway:           gateway,
		Outbox:            emitter,
		RateLimiter:       redisClient,
		Metrics:           metrics.NewCheckoutMetrics(registry),
		Logger:            logg,
		Currency:          cfg.Checkout.NormalizedCurrency(),
		SuccessURL:        cfg.Checkout.SuccessURL,
		CancelURL:         cfg.Checkout.CancelURL,
		RateLimit:         cfg.Checkout.SessionRateLimit,
		RateWindow:        cfg.Checkout.RateLimitWindow(),
	})
	if err != nil {
		return err
	}

	webhookSvc, err := stripewebhook.NewService(stripewebhook.ServiceParams{Checkout: checkoutSvc, Logger: logg})
	if err != nil {
		return err
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe-webhook")
	if err != nil {
		return err
	}

	handler := routes.NewRouter(cfg, logg, routes.Dependencies{
		DB:                 dbClient,
		Redis:              redisClient,
		Gatherer:           registry,
		Sessions:           sessions,
		Carts:              carts,
		Checkout:           checkoutSvc,
		Orders:             orderSvc,
		Coupons:            coupons.NewService(couponRepo),
		Products:           products,
		Stripe:             stripeClient,
		StripeWebhook:      webhookSvc,
		StripeWebhookGuard: webhookGuard,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(bootCtx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"stripe_env":  stripeClient.Environment(),
		"serviceKind": cfg.Service.Kind,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
