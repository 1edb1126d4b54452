package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/screwyprof/stakeledger/checkpointer"
	"github.com/screwyprof/stakeledger/cmd/stakeledger/config"
	"github.com/screwyprof/stakeledger/metrics"
	"github.com/screwyprof/stakeledger/migrator"
	"github.com/screwyprof/stakeledger/pkg/identity"
	"github.com/screwyprof/stakeledger/pkg/logger"
	"github.com/screwyprof/stakeledger/pkg/payout"
	"github.com/screwyprof/stakeledger/pkg/pgxdb"
	"github.com/screwyprof/stakeledger/staking"
	"github.com/screwyprof/stakeledger/staking/emission"
	"github.com/screwyprof/stakeledger/staking/store/pgxstore"
	"github.com/screwyprof/stakeledger/web/handler"
)

// These values are overridden at build time using -ldflags
var (
	version = "dev"
	date    = "unknown"
)

func main() {
	// Load configuration
	cfg := config.New()

	// Initialize logger and set as default
	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
		Service:          "stakeledger",
	})
	slog.SetDefault(log)

	// Prepare context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoContext(ctx, "Stake ledger service starting",
		slog.String("version", version),
		slog.String("date", date),
	)

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "Stake ledger service failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.InfoContext(ctx, "Stake ledger service stopped gracefully")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	// Database connection
	db, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL, pgxdb.WithMaxConns(cfg.DatabaseMaxConn))
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.ApplyMigrations {
		log.InfoContext(ctx, "Applying database migrations", slog.String("dir", cfg.MigrationsDir))
		if err := migrator.ApplyMigrations(db, cfg.MigrationsDir); err != nil {
			return err
		}
	}

	schedule, err := loadEmission(cfg)
	if err != nil {
		return err
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics, err := metrics.New(registry)
	if err != nil {
		return err
	}

	// Engine
	store, _ := pgxstore.New(db) // the deferred db.Close owns the pool
	payoutClient := payout.NewClient(cfg.PayoutURL,
		payout.WithHTTPClient(&http.Client{Timeout: cfg.PayoutTimeout}),
		payout.WithToken(cfg.PayoutToken),
	)
	engine := staking.NewEngine(store, payoutVia(payoutClient), schedule,
		staking.WithObserver(staking.Observers(ledgerMetrics.Observe, logEvents(ctx, log))),
	)
	if err := engine.Restore(ctx); err != nil {
		return err
	}
	validators := engine.ListValidators(ctx)
	ledgerMetrics.Prime(validators)
	log.InfoContext(ctx, "Ledger restored", slog.Int("validators", len(validators)))

	// HTTP API
	verifier := identity.NewVerifier([]byte(cfg.Web.JWTSecret), cfg.Web.JWTIssuer)
	mux := http.NewServeMux()
	handler.NewValidators(engine, verifier).AddRoutes(mux)
	handler.NewPositions(engine, verifier).AddRoutes(mux)
	handler.NewHistory(store, verifier).AddRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Web.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Link", "Location"},
	})

	addr := net.JoinHostPort(cfg.Web.HTTPHost, cfg.Web.HTTPPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      corsHandler.Handler(logger.NewMiddleware(log)(mux)),
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.InfoContext(gctx, "Server started", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.InfoContext(gctx, "Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		scheduler := checkpointer.NewService(engine,
			checkpointer.WithInterval(cfg.CheckpointInterval),
			checkpointer.WithConcurrency(cfg.CheckpointConcurrency),
		)
		events, done := scheduler.Start(gctx)

		subCloser := setupSchedulerLogging(gctx, events, log, ledgerMetrics)
		defer subCloser()

		<-done
		return nil
	})

	return g.Wait()
}

// loadEmission reads the emission schedule file or falls back to a flat rate
func loadEmission(cfg config.Config) (staking.EmissionSchedule, error) {
	if cfg.EmissionFile == "" {
		return staking.FixedRate(staking.RateFromPercent(cfg.DefaultRatePct)), nil
	}
	return emission.Load(cfg.EmissionFile)
}

// logEvents logs engine events
func logEvents(ctx context.Context, log *slog.Logger) staking.Observer {
	return func(e staking.Event) {
		switch event := e.(type) {
		case staking.ValidatorRegistered:
			log.InfoContext(ctx, "Validator registered",
				slog.String("validator", string(event.Validator)),
				slog.Any("commissionBps", event.CommissionBps),
			)
		case staking.ValidatorStatusChanged:
			log.InfoContext(ctx, "Validator status changed",
				slog.String("validator", string(event.Validator)),
				slog.String("status", string(event.Status)),
			)
		case staking.RewardsClaimed:
			log.InfoContext(ctx, "Rewards claimed",
				slog.String("claim", event.Claim.ID.String()),
				slog.String("delegator", string(event.Claim.Delegator)),
				slog.String("validator", string(event.Claim.Validator)),
				slog.Uint64("amount", event.Claim.Amount),
			)
		case staking.ClaimRolledBack:
			log.WarnContext(ctx, "Claim rolled back",
				slog.String("claim", event.Claim.ID.String()),
				slog.String("delegator", string(event.Claim.Delegator)),
				slog.Any("error", event.Err),
			)
		case staking.ClaimUnconfirmed:
			log.ErrorContext(ctx, "Claim payout unconfirmed, reconcile by claim id",
				slog.String("claim", event.Claim.ID.String()),
				slog.String("delegator", string(event.Claim.Delegator)),
				slog.String("validator", string(event.Claim.Validator)),
				slog.Uint64("amount", event.Claim.Amount),
				slog.Any("error", event.Err),
			)
		default:
			log.DebugContext(ctx, "Ledger event", slog.Any("event", event))
		}
	}
}

// setupSchedulerLogging configures event handlers using slog directly and feeds round metrics
func setupSchedulerLogging(ctx context.Context, events <-chan checkpointer.Event, log *slog.Logger, m *metrics.Metrics) func() {
	return checkpointer.NewSubscriber(events,
		checkpointer.OnSchedulerStarted(func(event checkpointer.SchedulerStarted) {
			log.InfoContext(ctx, "Checkpoint scheduler started",
				slog.String("startedAt", event.StartedAt.Format(logger.BritishTimeFormat)),
				slog.Duration("interval", event.Interval),
				slog.Int("concurrency", event.Concurrency),
			)
		}),
		checkpointer.OnCheckpointAdvanced(func(event checkpointer.CheckpointAdvanced) {
			log.DebugContext(ctx, "Checkpoint advanced",
				slog.Uint64("round", event.Round),
				slog.String("validator", string(event.Accrual.Validator)),
				slog.Uint64("checkpoint", event.Accrual.Checkpoint),
				slog.Uint64("net", event.Accrual.Net),
				slog.Int("positions", event.Accrual.Positions),
			)
		}),
		checkpointer.OnAdvanceFailed(func(event checkpointer.AdvanceFailed) {
			m.ObserveAdvanceFailure(event)
			log.ErrorContext(ctx, "Checkpoint advance failed",
				slog.Uint64("round", event.Round),
				slog.String("validator", string(event.Validator)),
				slog.Any("error", event.Err),
			)
		}),
		checkpointer.OnRoundCompleted(func(event checkpointer.RoundCompleted) {
			m.ObserveRound(event)
			log.InfoContext(ctx, "Checkpoint round completed",
				slog.Uint64("round", event.Round),
				slog.Int("advanced", event.Advanced),
				slog.Int("failed", event.Failed),
				slog.Int("skipped", event.Skipped),
				slog.Duration("duration", event.Duration),
			)
		}),
		checkpointer.OnSchedulerShutdown(func(event checkpointer.SchedulerShutdown) {
			log.InfoContext(ctx, "Checkpoint scheduler stopped",
				slog.String("reason", event.Reason.Error()),
				slog.Uint64("rounds", event.Rounds),
			)
		}),
	)
}
