// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/iliyamo/event-seat-reservation/internal/database"
)

// NewTestDB connects to the MySQL instance named by TEST_MYSQL_DSN,
// applies migrations and empties the tables.  The test is skipped when the
// variable is unset or the server cannot be reached.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skipping MySQL integration test: TEST_MYSQL_DSN not set")
	}
	db, err := database.OpenDSN(dsn)
	if err != nil {
		t.Skipf("skipping MySQL integration test: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.Migrate(ctx, db); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}
	for _, table := range []string{"purchases", "seats"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("failed to reset %s: %v", table, err)
		}
	}
	return db
}
