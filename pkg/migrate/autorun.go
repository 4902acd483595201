package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
)

// MaybeRunDev applies the embedded migrations on startup when running in dev
// with AUTO_MIGRATE enabled. Other environments migrate through cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	src := Embedded()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "source": src.String()})
	logg.Info(ctx, "migrations.autorun_start")

	if err := Run(ctx, sqlDB, src, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "migrations.autorun_done")
	return nil
}
