// Package pgxdbtest provisions throwaway ledger databases for acceptance tests.
// Every database is cloned from a template with the validators, positions,
// reward_periods and claims tables migrated, so tests never share rows.
package pgxdbtest

import (
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for pgtestdb
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/sqlmigrator"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/stakeledger/pkg/pgxdb"
)

// Server is the Postgres instance hosting test databases. The defaults match
// the local development database.
type Server struct {
	Host     string `env:"STAKELEDGER_TEST_DB_HOST" envDefault:"localhost"`
	Port     string `env:"STAKELEDGER_TEST_DB_PORT" envDefault:"5432"`
	User     string `env:"STAKELEDGER_TEST_DB_USER" envDefault:"stakeledger"`
	Password string `env:"STAKELEDGER_TEST_DB_PASSWORD" envDefault:"stakeledger"`
}

// LoadServer reads the test server location from the environment
func LoadServer(t *testing.T) Server {
	t.Helper()

	var s Server
	require.NoError(t, env.Parse(&s))
	return s
}

// Config returns the pgtestdb configuration for the server
func (s Server) Config() pgtestdb.Config {
	return pgtestdb.Config{
		DriverName: "pgx",
		User:       s.User,
		Password:   s.Password,
		Host:       s.Host,
		Port:       s.Port,
		Options:    "sslmode=disable",
	}
}

// CreateLedgerDatabase creates a database with the ledger schema from
// migrationsDir and returns a pool that is closed when the test ends. The pool
// uses the production settings, shrunk for tests unless opts say otherwise.
func CreateLedgerDatabase(t *testing.T, migrationsDir string, opts ...pgxdb.Option) *pgxpool.Pool {
	t.Helper()

	schema := sqlmigrator.New(
		&migrate.FileMigrationSource{Dir: migrationsDir},
		&migrate.MigrationSet{TableName: "schema_migrations"},
	)
	dbConfig := pgtestdb.Custom(t, LoadServer(t).Config(), schema)
	t.Logf("ledger test database: %s", dbConfig.URL())

	// pgxstore commits a changeset in one transaction, two connections cover a test
	opts = append([]pgxdb.Option{pgxdb.WithMinConns(1), pgxdb.WithMaxConns(2)}, opts...)
	pool, err := pgxdb.NewConnection(t.Context(), dbConfig.URL(), opts...)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}
