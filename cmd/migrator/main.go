package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/screwyprof/stakeledger/migrator"
	"github.com/screwyprof/stakeledger/migrator/config"
	"github.com/screwyprof/stakeledger/pkg/logger"
	"github.com/screwyprof/stakeledger/pkg/pgxdb"
	"github.com/screwyprof/stakeledger/staking"
)

// These values are overridden at build time using -ldflags
var (
	version = "dev"
	date    = "unknown"
)

func main() {
	// Load configuration from environment
	cfg := config.New()

	// Initialize logger and set as default
	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
		Service:          "migrator",
	})
	slog.SetDefault(log)

	log.Info("Starting database migrator service",
		slog.String("migrationsDir", cfg.MigrationsDir),
		slog.Bool("seedDemo", cfg.SeedDemo),
		slog.String("version", version),
		slog.String("date", date),
	)

	// Create a context that cancels on SIGINT/SIGTERM _or_ when the timeout elapses
	baseCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(baseCtx, cfg.OperationTimeout)
	defer cancel()

	// Connect to database
	db, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Apply migrations
	log.Info("Applying database migrations")
	if err := migrator.ApplyMigrations(db, cfg.MigrationsDir); err != nil {
		log.Error("Failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("Database migrations applied successfully")

	if cfg.SeedDemo {
		demo := migrator.Demo{
			Validators: cfg.DemoValidators,
			Delegators: cfg.DemoDelegators,
			Periods:    cfg.DemoPeriods,
			Rate:       staking.RateFromPercent(cfg.DemoRatePct),
			Timeout:    cfg.OperationTimeout,
		}
		if err := migrator.Seed(ctx, db, demo); err != nil {
			log.Error("Failed to seed demo ledger", slog.Any("error", err))
			os.Exit(1)
		}
	}

	log.Info("Database migrator completed successfully")
}
