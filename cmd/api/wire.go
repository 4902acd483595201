package main

import (
	"github.com/angelmondragon/marketplace-settlement/api/routes"
	"github.com/angelmondragon/marketplace-settlement/internal/cart"
	"github.com/angelmondragon/marketplace-settlement/internal/catalog"
	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/internal/payments"
	"github.com/angelmondragon/marketplace-settlement/internal/settlement"
	"github.com/angelmondragon/marketplace-settlement/internal/vendors"
	gatewaywebhooks "github.com/angelmondragon/marketplace-settlement/internal/webhooks/gateway"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/gateway"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/redis"
)

// wire builds the services behind the router. Orders and payments share one
// repository and one outbox emitter so their writes land in the same tables.
func wire(cfg *config.Config, logg *logger.Logger, database *db.Client, cache *redis.Client, settlementMetrics *metrics.SettlementMetrics) (routes.Dependencies, error) {
	gormDB := database.DB()
	emitter := outbox.NewService(outbox.NewRepository(gormDB), logg)

	stock, err := catalog.NewService(catalog.NewRepository(gormDB))
	if err != nil {
		return routes.Dependencies{}, err
	}
	carts, err := cart.NewService(cart.NewRepository(gormDB), stock)
	if err != nil {
		return routes.Dependencies{}, err
	}
	vendorSvc, err := vendors.NewService(vendors.ServiceParams{
		Repository:        vendors.NewRepository(gormDB),
		Logger:            logg,
		DefaultCommission: cfg.Orders.DefaultCommission(),
	})
	if err != nil {
		return routes.Dependencies{}, err
	}
	credentials, err := settlement.NewRouter(vendorSvc, cfg.Gateway, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}
	guard, err := gatewaywebhooks.NewDeliveryGuard(cache, cfg.Eventing.WebhookIdempotencyTTL, "")
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderRepo := orders.NewRepository(gormDB)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orderRepo,
		Tx:         database,
		Outbox:     emitter,
		Cart:       carts,
		Stock:      stock,
		Logger:     logg,
		Metrics:    settlementMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	paymentSvc, err := payments.NewService(payments.ServiceParams{
		Repository:        orderRepo,
		Tx:                database,
		Outbox:            emitter,
		Gateway:           gateway.NewClient(),
		Router:            credentials,
		Vendors:           vendorSvc,
		Stock:             stock,
		Guard:             guard,
		Logger:            logg,
		Metrics:           settlementMetrics,
		Currency:          cfg.Gateway.Currency,
		DefaultCommission: cfg.Orders.DefaultCommission(),
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Config:      cfg,
		Logger:      logg,
		DB:          database,
		Redis:       cache,
		Cart:        carts,
		Orders:      orderSvc,
		Payments:    paymentSvc,
		Vendors:     vendorSvc,
		DeadLetters: outbox.NewDLQRepository(gormDB),
	}, nil
}
