package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/text/language"

	"github.com/identitywear/storefront-backend/api/routes"
	"github.com/identitywear/storefront-backend/internal/auth"
	"github.com/identitywear/storefront-backend/internal/cart"
	"github.com/identitywear/storefront-backend/internal/checkout"
	"github.com/identitywear/storefront-backend/internal/orders"
	"github.com/identitywear/storefront-backend/internal/products"
	"github.com/identitywear/storefront-backend/internal/settings"
	stripewebhooks "github.com/identitywear/storefront-backend/internal/webhooks/stripe"
	"github.com/identitywear/storefront-backend/internal/wishlist"
	"github.com/identitywear/storefront-backend/pkg/auth/session"
	"github.com/identitywear/storefront-backend/pkg/catalog"
	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/currency"
	"github.com/identitywear/storefront-backend/pkg/db"
	"github.com/identitywear/storefront-backend/pkg/logger"
	"github.com/identitywear/storefront-backend/pkg/metrics"
	"github.com/identitywear/storefront-backend/pkg/migrate"
	"github.com/identitywear/storefront-backend/pkg/outbox"
	"github.com/identitywear/storefront-backend/pkg/redis"
	pkgstripe "github.com/identitywear/storefront-backend/pkg/stripe"
	"github.com/identitywear/storefront-backend/pkg/supabase"
)

const (
	stripeEventTTL   = 7 * 24 * time.Hour
	stripeEventScope = "stripe_webhook"
	shutdownTimeout  = 15 * time.Second
)

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
		Level:       cfg.App.LogLevel,
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

	sessionManager, err := session.NewManager(redisClient)
	if err != nil {
		return err
	}

	supabaseClient, err := supabase.NewClient(cfg.Supabase, supabase.WithLogger(logg))
	if err != nil {
		return err
	}
	functions, err := checkout.NewFunctionsGateway(supabaseClient)
	if err != nil {
		return err
	}

	catalogClient, err := catalog.NewClient(cfg.Catalog.BaseURL,
		catalog.WithPublishableKey(cfg.Catalog.PublishableKey),
		catalog.WithTimeout(cfg.Catalog.Timeout),
	)
	if err != nil {
		return err
	}

	lang, langErr := language.Parse(cfg.Checkout.Locale)
	if langErr != nil {
		lang = language.Norwegian
	}
	productService, err := products.NewService(products.ServiceParams{
		Catalog:   catalogClient,
		Formatter: currency.NewFormatter(cfg.Checkout.CurrencyLocale),
		Language:  lang,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	storeSettings, err := settings.NewService(settings.ServiceParams{
		Repository:     settings.NewRepository(dbClient.DB()),
		DefaultTaxRate: cfg.Checkout.DefaultTaxRate(),
		Logger:         logg,
	})
	if err != nil {
		return err
	}

	persister, err := cart.NewRedisPersister(redisClient, cfg.Redis.CartTTL)
	if err != nil {
		return err
	}
	carts, err := cart.NewRegistry(cart.RegistryParams{
		Persister: persister,
		TaxRate:   storeSettings.TaxRate(bootCtx),
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(dbClient.DB()),
		TxRunner:   dbClient,
		Outbox:     outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
	})
	if err != nil {
		return err
	}

	var stripeClient *pkgstripe.Client
	if cfg.Stripe.Enabled() {
		stripeClient, err = pkgstripe.NewClient(bootCtx, cfg.Stripe, logg)
		if err != nil {
			return err
		}
	}

	var payments checkout.PaymentGateway = functions
	if strings.EqualFold(strings.TrimSpace(cfg.Checkout.PaymentMode), config.PaymentModeStripe) {
		if stripeClient == nil {
			return errors.New("stripe payment mode requires stripe credentials")
		}
		payments, err = checkout.NewStripeGateway(stripeClient, cfg.Checkout.Currency)
		if err != nil {
			return err
		}
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Config:    cfg.Checkout,
		Carts:     carts,
		Orders:    orderService,
		Settings:  storeSettings,
		Validator: functions,
		Rater:     functions,
		Payments:  payments,
		Metrics:   metrics.NewCheckoutMetrics(promRegistry),
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	wishlistService, err := wishlist.NewService(wishlist.ServiceParams{
		Repository: wishlist.NewRepository(dbClient.DB()),
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Backend:   supabaseClient,
		Functions: supabaseClient,
		Revoker:   sessionManager,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	deps := routes.Dependencies{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		Revocations: sessionManager,
		Gatherer:    promRegistry,
		Auth:        authService,
		Products:    productService,
		Carts:       carts,
		Checkout:    checkoutService,
		Orders:      orderService,
		Wishlist:    wishlistService,
	}
	if stripeClient != nil {
		webhookService, err := stripewebhooks.NewService(stripewebhooks.ServiceParams{Orders: orderService, Logger: logg})
		if err != nil {
			return err
		}
		guard, err := stripewebhooks.NewIdempotencyGuard(redisClient, stripeEventTTL, stripeEventScope)
		if err != nil {
			return err
		}
		deps.StripeSigning = stripeClient
		deps.StripeWebhooks = webhookService
		deps.StripeGuard = guard
	} else {
		logg.Warn(bootCtx, "stripe not configured, webhook route disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"paymentMode": cfg.Checkout.PaymentMode,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logg.Info(ctx, "api server shutting down gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
