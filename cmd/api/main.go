package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-settlement/api"
	"github.com/angelmondragon/marketplace-settlement/api/routes"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/env"
	"github.com/angelmondragon/marketplace-settlement/pkg/instance"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
	"github.com/angelmondragon/marketplace-settlement/pkg/migrate"
	"github.com/angelmondragon/marketplace-settlement/pkg/redis"
)

const (
	serviceName     = "api"
	shutdownTimeout = 20 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceName}).Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "instance": instance.ID()})
	err = run(ctx, cfg, logg)
	stop()
	if err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	database, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer func() {
		if err := database.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()
	if err := migrate.MaybeRunDev(ctx, cfg, logg, database); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	cache, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	deps, err := wire(cfg, logg, database, cache, metrics.NewSettlementMetrics(registry))
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	deps.Metrics = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})

	// PORT is set by the hosting platform and wins over the configured port.
	addr := ":" + env.Get("PORT", cfg.App.Port)
	logg.Info(logg.WithField(ctx, "addr", addr), "starting api server")
	return api.Serve(ctx, api.NewServer(addr, routes.NewRouter(deps)), shutdownTimeout, logg)
}
