package migratortest

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for pgtestdb
	"github.com/peterldowns/pgtestdb"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/stakeledger/migrator"
	"github.com/screwyprof/stakeledger/pkg/pgxdb/pgxdbtest"
)

// CreateSchemaTestDatabase creates a test database with schema migrations applied.
// Returns the connection pool ready for use.
func CreateSchemaTestDatabase(t *testing.T, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	return createTestDatabaseWithMigrator(t, migrator.NewSchemaMigrator(migrationsDir))
}

// CreateSeededTestDatabase creates a test database with migrations and the demo ledger seeded.
// Databases with the same migrations and demo parameters are cloned from one template.
func CreateSeededTestDatabase(t *testing.T, migrationsDir string, demo migrator.Demo) *pgxpool.Pool {
	t.Helper()

	return createTestDatabaseWithMigrator(t, migrator.NewSeededMigrator(migrationsDir, demo))
}

// createTestDatabaseWithMigrator creates a test database using the provided migrator
func createTestDatabaseWithMigrator(t *testing.T, migratorInstance pgtestdb.Migrator) *pgxpool.Pool {
	t.Helper()

	// Create test database and get its config
	dbConfig := pgtestdb.Custom(t, pgxdbtest.LoadServer(t).Config(), migratorInstance)

	// Connect to the test database using test context for proper lifecycle management
	pool, err := pgxpool.New(t.Context(), dbConfig.URL())
	require.NoError(t, err)

	t.Logf("testdbconf: %s", dbConfig.URL())

	return pool
}
