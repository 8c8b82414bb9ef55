package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/streamlens/db"
)

// SetupTestDB creates a test database connection and runs migrations.
// It skips the test if TEST_PG_DSN environment variable is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	ResetTables(t, database)
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// ResetTables empties the snapshot and channel tables so tests start clean.
func ResetTables(t *testing.T, database *sql.DB) {
	t.Helper()
	if _, err := database.Exec(`DELETE FROM live_snapshots`); err != nil {
		t.Fatalf("failed to reset live_snapshots: %v", err)
	}
	if _, err := database.Exec(`DELETE FROM channels`); err != nil {
		t.Fatalf("failed to reset channels: %v", err)
	}
}
