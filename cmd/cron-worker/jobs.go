package main

import (
	"github.com/angelmondragon/marketplace-settlement/internal/cart"
	"github.com/angelmondragon/marketplace-settlement/internal/catalog"
	"github.com/angelmondragon/marketplace-settlement/internal/cron"
	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
)

// buildJobs assembles the order service the expiry sweep cancels through,
// so expired orders restock and emit events like a buyer cancellation.
func buildJobs(cfg *config.Config, logg *logger.Logger, database *db.Client) (*cron.Registry, error) {
	gormDB := database.DB()
	outboxRepo := outbox.NewRepository(gormDB)

	stock, err := catalog.NewService(catalog.NewRepository(gormDB))
	if err != nil {
		return nil, err
	}
	carts, err := cart.NewService(cart.NewRepository(gormDB), stock)
	if err != nil {
		return nil, err
	}
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(gormDB),
		Tx:         database,
		Outbox:     outbox.NewService(outboxRepo, logg),
		Cart:       carts,
		Stock:      stock,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	expire, err := cron.NewExpirePendingJob(cron.ExpirePendingJobParams{
		Logger:    logg,
		Orders:    orderSvc,
		TTL:       cfg.Orders.PendingPaymentTTL,
		BatchSize: cfg.Orders.ExpiryBatchSize,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         database,
		Repository: outboxRepo,
		Retention:  cfg.Cron.OutboxRetention,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(expire, retention), nil
}
