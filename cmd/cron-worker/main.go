package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-settlement/api"
	"github.com/angelmondragon/marketplace-settlement/internal/cron"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/instance"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
	"github.com/angelmondragon/marketplace-settlement/pkg/migrate"
	"github.com/angelmondragon/marketplace-settlement/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Options{ServiceName: serviceKind}).Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": serviceKind,
		"instance":    instance.ID(),
	})

	err = run(ctx, cfg, logg)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

// run owns every connection the worker opens; they close in reverse order
// once the scheduler loop returns.
func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				logg.Error(ctx, "close dependency", cerr)
			}
		}
	}()

	database, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	closers = append(closers, database.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, database); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	closers = append(closers, redisClient.Close)

	jobs, err := buildJobs(cfg, logg, database)
	if err != nil {
		return fmt.Errorf("build cron jobs: %w", err)
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	scheduler, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"interval": cfg.Cron.Interval.String(),
		"jobs":     jobs.Names(),
	}), "starting cron worker")
	api.ServeMetrics(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg)
	return scheduler.Run(ctx)
}
