package testdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/phrazzld/taskforperks/internal/platform/postgres/migrations"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// TestTimeout bounds individual database operations in helpers.
const TestTimeout = 5 * time.Second

// Environment variables consulted for the test database, in order.
var databaseURLEnvVars = []string{"DATABASE_URL", "TFP_TEST_DB_URL"}

// goose keeps package-level state, so migrations run at most once per
// test binary.
var migrateOnce struct {
	sync.Once
	err error
}

// GetTestDatabaseURL returns the first non-empty test database URL.
func GetTestDatabaseURL() string {
	for _, name := range databaseURLEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// IsIntegrationTestEnvironment reports whether a test database is configured.
func IsIntegrationTestEnvironment() bool {
	return GetTestDatabaseURL() != ""
}

// GetTestDBWithT connects to the test database and migrates it, skipping
// the test when no database is configured. The connection is closed when
// the test ends.
func GetTestDBWithT(t *testing.T) *bun.DB {
	t.Helper()

	dsn := GetTestDatabaseURL()
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping database test")
	}

	sqldb, err := sql.Open("pgx", dsn)
	require.NoError(t, err, "failed to open test database")

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, sqldb.PingContext(ctx), "failed to ping test database")

	SetupTestDatabaseSchema(t, sqldb)

	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return db
}

// SetupTestDatabaseSchema applies the embedded migrations.
func SetupTestDatabaseSchema(t *testing.T, db *sql.DB) {
	t.Helper()
	migrateOnce.Do(func() {
		goose.SetLogger(goose.NopLogger())
		goose.SetBaseFS(migrations.FS)
		goose.SetTableName(migrations.TableName)
		if err := goose.SetDialect("postgres"); err != nil {
			migrateOnce.err = err
			return
		}
		migrateOnce.err = goose.Up(db, ".")
	})
	require.NoError(t, migrateOnce.err, "failed to apply migrations")
}

// CleanupDB truncates every application table now and again when the test
// ends.
func CleanupDB(t *testing.T, db bun.IDB) {
	t.Helper()
	truncate := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
		defer cancel()
		_, err := db.ExecContext(ctx, "TRUNCATE TABLE claims, tasks, users CASCADE")
		return err
	}
	require.NoError(t, truncate(), "failed to truncate tables")
	t.Cleanup(func() {
		if err := truncate(); err != nil {
			t.Logf("failed to truncate tables: %v", err)
		}
	})
}

// WithTx runs fn inside a transaction that is always rolled back.
func WithTx(t *testing.T, db *bun.DB, fn func(t *testing.T, tx bun.Tx)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err, "failed to begin transaction")
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			t.Logf("failed to roll back transaction: %v", err)
		}
	}()

	fn(t, tx)
}

// MustExec runs a statement and fails the test on error.
func MustExec(t *testing.T, db bun.IDB, query string, args ...any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	_, err := db.ExecContext(ctx, query, args...)
	require.NoError(t, err, fmt.Sprintf("failed to execute %q", query))
}
