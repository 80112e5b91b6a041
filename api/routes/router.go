package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v84"

	"github.com/identitywear/storefront-backend/api/controllers"
	cartcontrollers "github.com/identitywear/storefront-backend/api/controllers/cart"
	checkoutcontrollers "github.com/identitywear/storefront-backend/api/controllers/checkout"
	ordercontrollers "github.com/identitywear/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/identitywear/storefront-backend/api/controllers/webhooks"
	"github.com/identitywear/storefront-backend/api/middleware"
	"github.com/identitywear/storefront-backend/internal/auth"
	cartsvc "github.com/identitywear/storefront-backend/internal/cart"
	checkoutsvc "github.com/identitywear/storefront-backend/internal/checkout"
	"github.com/identitywear/storefront-backend/internal/orders"
	"github.com/identitywear/storefront-backend/internal/products"
	"github.com/identitywear/storefront-backend/internal/wishlist"
	"github.com/identitywear/storefront-backend/pkg/auth/session"
	"github.com/identitywear/storefront-backend/pkg/config"
	"github.com/identitywear/storefront-backend/pkg/logger"
)

// RedisStore is the slice of the redis client the HTTP layer needs.
type RedisStore interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	IdempotencyKey(scope, id string) string
	RateLimitKey(scope string) string
}

type cartRegistry interface {
	Get(ctx context.Context, sessionID string) (*cartsvc.Store, error)
}

type stripeWebhookGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type signingSecretProvider interface {
	SigningSecret() string
}

type stripeEventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// Dependencies collects everything the router wires into handlers. The
// Stripe webhook fields may be nil when Stripe is not configured; the
// webhook route is then not mounted.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       RedisStore
	Revocations session.AccessSessionChecker
	Gatherer    prometheus.Gatherer

	Auth     auth.Service
	Products products.Service
	Carts    cartRegistry
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Wishlist wishlist.Service

	StripeSigning  signingSecretProvider
	StripeWebhooks stripeEventHandler
	StripeGuard    stripeWebhookGuard
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	authPolicy := middleware.NewRateLimitPolicy("auth", cfg.RateLimit.AuthWindow, cfg.RateLimit.AuthIPLimit, cfg.RateLimit.AuthEmailLimit)
	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.RateLimit.CheckoutWindow, cfg.RateLimit.CheckoutIPLimit, 0)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
		}, logg))
	})

	if cfg.Metrics.Enabled && deps.Gatherer != nil {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.CartSession(logg))
		r.Use(middleware.OptionalAuth(cfg.JWT, deps.Revocations, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		if deps.StripeWebhooks != nil && deps.StripeSigning != nil && deps.StripeGuard != nil {
			r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhooks, deps.StripeSigning, deps.StripeGuard, logg))
		}

		r.Route("/auth", func(r chi.Router) {
			limited := r.With(middleware.RateLimit(authPolicy, deps.Redis, logg))
			limited.Post("/signup", controllers.AuthSignUp(deps.Auth, logg))
			limited.Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
			r.With(middleware.Auth(cfg.JWT, deps.Revocations, logg)).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductsList(deps.Products, logg))
			r.Get("/{productId}", controllers.ProductDetail(deps.Products, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.Fetch(deps.Carts, logg))
			r.Delete("/", cartcontrollers.Clear(deps.Carts, logg))
			r.Post("/items", cartcontrollers.AddItem(deps.Carts, deps.Products, logg))
			r.Patch("/items/{variantId}", cartcontrollers.UpdateItem(deps.Carts, logg))
			r.Delete("/items/{variantId}", cartcontrollers.RemoveItem(deps.Carts, logg))
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkoutcontrollers.State(deps.Checkout, logg))
			r.Put("/address", checkoutcontrollers.UpdateAddress(deps.Checkout, logg))
			r.Post("/refresh", checkoutcontrollers.Refresh(deps.Checkout, logg))
			r.Put("/shipping", checkoutcontrollers.SelectShipping(deps.Checkout, logg))
			r.Post("/verify", checkoutcontrollers.Verify(deps.Checkout, logg))

			limited := r.With(middleware.RateLimit(checkoutPolicy, deps.Redis, logg))
			limited.Post("/submit", checkoutcontrollers.Submit(deps.Checkout, logg))
			limited.Post("/quick", checkoutcontrollers.QuickCheckout(deps.Checkout, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(middleware.Auth(cfg.JWT, deps.Revocations, logg)).Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, deps.Revocations, logg))
			r.Get("/", controllers.WishlistList(deps.Wishlist, logg))
			r.Post("/", controllers.WishlistAdd(deps.Wishlist, logg))
			r.Get("/{productId}", controllers.WishlistContains(deps.Wishlist, logg))
			r.Delete("/{productId}", controllers.WishlistRemove(deps.Wishlist, logg))
		})
	})

	return r
}
