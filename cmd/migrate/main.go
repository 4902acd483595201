package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/migrate"
)

var errUsage = errors.New("usage")

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	opts := options{}
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory on disk (default: embedded for up|down|status|version|validate, "+migrate.DefaultDir+" for create)")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if err := run(context.Background(), opts, os.Stdout, logg); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			flag.Usage()
			os.Exit(2)
		}
		logg.Error(context.Background(), "migrate failed", err)
		os.Exit(1)
	}
}

// run executes one migration command. Offline commands never load config or
// open the database.
func run(ctx context.Context, opts options, out io.Writer, logg *logger.Logger) error {
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("%w: -name is required for create", errUsage)
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name)
		if err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintln(out, "created migration:", path)
		return nil
	case "validate":
		if err := migrate.Validate(source(opts)); err != nil {
			return fmt.Errorf("validate migrations: %w", err)
		}
		fmt.Fprintln(out, "migration validation passed")
		return nil
	case "up", "down", "status":
	case "version":
		if opts.version == "" {
			return fmt.Errorf("%w: -version is required for version", errUsage)
		}
	default:
		return fmt.Errorf("%w: unknown -cmd value %q", errUsage, opts.cmd)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"source": source(opts).String(),
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		return fmt.Errorf("extract sql.DB: %w", err)
	}

	logg.Info(ctx, "migrate ready")
	if opts.cmd == "version" {
		return migrate.MigrateToVersion(ctx, sqlDB, source(opts), opts.version)
	}
	return migrate.Run(ctx, sqlDB, source(opts), opts.cmd)
}

func source(opts options) migrate.Source {
	if opts.dir == "" {
		return migrate.Embedded()
	}
	return migrate.FromDir(opts.dir)
}
