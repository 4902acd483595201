package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/marketplace-settlement/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/orders"
	outboxcontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/outbox"
	paymentcontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/payments"
	vendorcontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/vendors"
	webhookcontrollers "github.com/angelmondragon/marketplace-settlement/api/controllers/webhooks"
	"github.com/angelmondragon/marketplace-settlement/api/middleware"
	"github.com/angelmondragon/marketplace-settlement/internal/cart"
	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/internal/payments"
	"github.com/angelmondragon/marketplace-settlement/internal/vendors"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

// RedisStore is the subset of the redis client the HTTP layer uses.
type RedisStore interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies wires the router. A nil Redis disables idempotency and rate
// limiting; a nil Metrics handler leaves /metrics unmounted.
type Dependencies struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Redis       RedisStore
	Metrics     http.Handler
	Cart        cart.Service
	Orders      orders.Service
	Payments    payments.Service
	Vendors     vendors.Service
	DeadLetters outboxcontrollers.DeadLetterReader
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{}
	if deps.DB != nil {
		readiness["db"] = deps.DB
	}
	if deps.Redis != nil {
		readiness["redis"] = deps.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Post("/api/webhooks/gateway", webhookcontrollers.GatewayWebhook(deps.Payments, logg))
	r.Post("/api/webhooks/gateway/vendors/{vendorId}", webhookcontrollers.VendorGatewayWebhook(deps.Payments, logg))

	verifyPolicy := middleware.NewRateLimitPolicy("payment_verify", cfg.RateLimit.VerifyWindow, cfg.RateLimit.VerifyLimit)
	idempotency := middleware.Idempotency(deps.Redis, cfg.Eventing.RequestIdempotencyTTL, logg)

	buyer := middleware.RequireRole(logg, enums.ActorRoleBuyer)
	vendor := middleware.RequireRole(logg, enums.ActorRoleVendor)
	fulfiller := middleware.RequireRole(logg, enums.ActorRoleVendor, enums.ActorRoleAdmin)

	// Routes inside the idempotency groups stay flat so the middleware sees
	// the full route pattern.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Group(func(r chi.Router) {
			r.Use(idempotency)

			r.With(buyer).Get("/cart", cartcontrollers.CartFetch(deps.Cart, logg))
			r.With(buyer).Delete("/cart", cartcontrollers.CartClear(deps.Cart, logg))
			r.With(buyer).Post("/cart/items", cartcontrollers.CartAddItem(deps.Cart, logg))
			r.With(buyer).Delete("/cart/items/{itemId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))

			r.With(buyer).Post("/orders", ordercontrollers.Build(deps.Orders, logg))
			r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/orders/{orderId}/checkout", ordercontrollers.Checkout(deps.Orders, logg))
			r.Post("/orders/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.With(fulfiller).Post("/orders/{orderId}/status", ordercontrollers.Advance(deps.Orders, logg))
			r.Post("/orders/{orderId}/payments/gateway", paymentcontrollers.StartGateway(deps.Payments, logg))
			r.With(middleware.RateLimit(verifyPolicy, deps.Redis, logg)).
				Post("/orders/{orderId}/payments/verify", paymentcontrollers.Verify(deps.Payments, logg))

			r.With(vendor).Get("/vendor/settlement", vendorcontrollers.MySettlement(deps.Vendors, logg))
			r.With(vendor).Put("/vendor/settlement", vendorcontrollers.UpdateMySettlement(deps.Vendors, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))

		r.Group(func(r chi.Router) {
			r.Use(idempotency)
			r.Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/orders/{orderId}/settle", paymentcontrollers.AdminSettle(deps.Payments, logg))
			r.Put("/vendors/{vendorId}/settlement", vendorcontrollers.AdminUpdateSettlement(deps.Vendors, logg))
		})
		r.Get("/orders/{orderId}/dead-letters", outboxcontrollers.OrderDeadLetters(deps.DeadLetters, logg))
		r.Get("/outbox/dead-letters/{eventId}", outboxcontrollers.DeadLetter(deps.DeadLetters, logg))
	})

	return r
}
