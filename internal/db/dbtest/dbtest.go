// Package dbtest starts a throwaway Postgres for integration tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/atharvakonge/finance/internal/db"
)

// SetupTestDB starts a Postgres container, applies the migrations and
// returns a connection. Everything is torn down when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	ctx := context.Background()
	pg, err := tcpostgres.Run(
		ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("trading_db"),
		tcpostgres.WithUsername("trader"),
		tcpostgres.WithPassword("trading123"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pg); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	log := zap.NewNop()
	conn, err := db.Open(ctx, dsn, db.DefaultOptions, log)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	t.Cleanup(func() { db.Close(conn, log) })

	if err = db.Migrate(conn, log); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return conn
}

// CleanupTestDB empties every table.
func CleanupTestDB(t *testing.T, conn *sql.DB) {
	t.Helper()
	if _, err := conn.Exec("TRUNCATE trades, users RESTART IDENTITY"); err != nil {
		t.Logf("Warning: failed to truncate tables: %v", err)
	}
}

// CreateTestUser inserts a user with the given cash and returns its id.
// The username gets a unique suffix so tests can share a database.
func CreateTestUser(t *testing.T, conn *sql.DB, username string, cash float64) int64 {
	t.Helper()

	var userID int64
	uniqueUsername := fmt.Sprintf("%s_%d", username, time.Now().UnixNano())
	err := conn.QueryRow(
		"INSERT INTO users (username, hash, cash) VALUES ($1, $2, $3) RETURNING id",
		uniqueUsername, "not-a-real-hash", decimal.NewFromFloat(cash),
	).Scan(&userID)
	if err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return userID
}
