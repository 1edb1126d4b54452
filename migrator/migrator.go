package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/sqlmigrator"
	migrate "github.com/rubenv/sql-migrate"

	"github.com/screwyprof/stakeledger/pkg/pgxdb"
	"github.com/screwyprof/stakeledger/staking"
	"github.com/screwyprof/stakeledger/staking/store/pgxstore"
)

// Migration constants
const (
	migrationsTableName = "schema_migrations"
	schemaHashPrefix    = "schema_only_"
	seededHashPrefix    = "seeded_demo_"
	defaultSeedTimeout  = time.Minute
)

// Migration-related errors
var (
	ErrMigrationExecution = errors.New("migration execution failed")
	ErrSeedFailed         = errors.New("demo seeding failed")
)

// SchemaMigrator applies only database schema migrations
// Used for production and tests that need schema-only setup
type SchemaMigrator struct {
	migrationsDir string
}

// NewSchemaMigrator creates a migrator that applies schema migrations only
func NewSchemaMigrator(migrationsDir string) *SchemaMigrator {
	return &SchemaMigrator{
		migrationsDir: migrationsDir,
	}
}

func (m *SchemaMigrator) Hash() (string, error) {
	baseHash, err := migrationsHash(m.migrationsDir)
	if err != nil {
		return "", err
	}
	return schemaHashPrefix + baseHash, nil
}

func (m *SchemaMigrator) Migrate(ctx context.Context, db *sql.DB, conf pgtestdb.Config) error {
	return applyMigrations(db, m.migrationsDir)
}

// Demo describes the deterministic demo ledger written by Seed
type Demo struct {
	Validators int           // registered validators, the last one is deactivated
	Delegators int           // delegators, spread round-robin over validators
	Periods    int           // checkpoints advanced on every active validator
	Rate       staking.Rate  // per-period rate
	Timeout    time.Duration // bound on a seeding migration, a minute when unset
}

// SeededMigrator applies schema migrations + seeds the demo ledger
// Used for web API tests that need realistic data to test against
type SeededMigrator struct {
	migrationsDir string
	demo          Demo
}

// NewSeededMigrator creates a migrator that applies schema + seeds demo data
func NewSeededMigrator(migrationsDir string, demo Demo) *SeededMigrator {
	return &SeededMigrator{
		migrationsDir: migrationsDir,
		demo:          demo,
	}
}

func (m *SeededMigrator) Hash() (string, error) {
	baseHash, err := migrationsHash(m.migrationsDir)
	if err != nil {
		return "", err
	}

	return seededHashPrefix + baseHash +
		"_" + strconv.Itoa(m.demo.Validators) +
		"_" + strconv.Itoa(m.demo.Delegators) +
		"_" + strconv.Itoa(m.demo.Periods) +
		"_" + strconv.FormatUint(uint64(m.demo.Rate), 10), nil
}

func (m *SeededMigrator) Migrate(ctx context.Context, db *sql.DB, conf pgtestdb.Config) error {
	if err := applyMigrations(db, m.migrationsDir); err != nil {
		return err
	}

	timeout := m.demo.Timeout
	if timeout <= 0 {
		timeout = defaultSeedTimeout
	}
	seedCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pool, err := pgxdb.NewConnection(seedCtx, conf.URL())
	if err != nil {
		return err
	}
	defer pool.Close()

	return Seed(seedCtx, pool, m.demo)
}

// Seed writes the demo ledger through the engine so that every row satisfies the
// engine invariants. Claims are paid by a payout that always succeeds.
func Seed(ctx context.Context, pool *pgxpool.Pool, demo Demo) error {
	slog.InfoContext(ctx, "🌱 Seeding demo ledger",
		"validators", demo.Validators,
		"delegators", demo.Delegators,
		"periods", demo.Periods)

	store, _ := pgxstore.New(pool) // the caller owns the pool
	engine := staking.NewEngine(store,
		staking.PayoutFunc(func(context.Context, staking.Transfer) error { return nil }),
		staking.FixedRate(demo.Rate),
	)
	if err := engine.Restore(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrSeedFailed, err)
	}
	if existing := engine.ListValidators(ctx); len(existing) > 0 {
		slog.InfoContext(ctx, "Ledger already holds validators, skipping demo seed", "validators", len(existing))
		return nil
	}

	validators := make([]staking.ValidatorID, demo.Validators)
	for i := range validators {
		validators[i] = staking.ValidatorID(fmt.Sprintf("tz1demovalidator%02d", i+1))
		if _, err := engine.RegisterValidator(ctx, validators[i], uint16(500+100*i%staking.MaxCommissionBps)); err != nil {
			return fmt.Errorf("%w: %w", ErrSeedFailed, err)
		}
	}
	if len(validators) == 0 {
		return nil
	}

	for j := range demo.Delegators {
		delegator := staking.DelegatorID(fmt.Sprintf("tz1demodelegator%03d", j+1))
		validator := validators[j%len(validators)]
		if _, err := engine.Delegate(ctx, delegator, validator, uint64(1_000_000*(j+1))); err != nil {
			return fmt.Errorf("%w: %w", ErrSeedFailed, err)
		}
	}

	// the last validator stops accepting stake but keeps its positions
	if len(validators) > 1 {
		if _, err := engine.Deactivate(ctx, validators[len(validators)-1]); err != nil {
			return fmt.Errorf("%w: %w", ErrSeedFailed, err)
		}
	}

	for range demo.Periods {
		for _, v := range engine.ListValidators(ctx) {
			if !v.Active() {
				continue
			}
			if _, err := engine.AdvanceCheckpoint(ctx, v.ID); err != nil {
				return fmt.Errorf("%w: %w", ErrSeedFailed, err)
			}
		}
	}

	// every third delegator has claimed
	for j := 0; j < demo.Delegators; j += 3 {
		delegator := staking.DelegatorID(fmt.Sprintf("tz1demodelegator%03d", j+1))
		_, err := engine.ClaimRewards(ctx, delegator, validators[j%len(validators)])
		if err != nil && !errors.Is(err, staking.ErrNothingToClaim) {
			return fmt.Errorf("%w: %w", ErrSeedFailed, err)
		}
	}

	slog.InfoContext(ctx, "✅ Demo ledger seeded")
	return nil
}

// ApplyMigrations applies database migrations using sql-migrate with the provided pgx pool
func ApplyMigrations(pool *pgxpool.Pool, migrationsDir string) error {
	// Create sql.DB from the pgx pool for sql-migrate
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	return applyMigrations(db, migrationsDir)
}

// applyMigrations applies database migrations using sql-migrate
func applyMigrations(db *sql.DB, migrationsDir string) error {
	source := &migrate.FileMigrationSource{Dir: migrationsDir}
	migrationSet := &migrate.MigrationSet{TableName: migrationsTableName}

	_, err := migrationSet.Exec(db, "postgres", source, migrate.Up)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationExecution, err)
	}
	return nil
}

func migrationsHash(migrationsDir string) (string, error) {
	source := &migrate.FileMigrationSource{Dir: migrationsDir}
	migrationSet := &migrate.MigrationSet{TableName: migrationsTableName}

	hash, err := sqlmigrator.New(source, migrationSet).Hash()
	if err != nil {
		return "", fmt.Errorf("failed to calculate migration hash for %s: %w", migrationsDir, err)
	}
	return hash, nil
}
