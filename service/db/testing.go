package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// newTestStore connects to TEST_DATABASE_URL, migrates it and empties the
// solclient tables. The test is skipped when the variable is unset or the
// database cannot be reached. The pool is closed and the tables truncated
// again when the test ends.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("Skipping database test (set TEST_DATABASE_URL to enable)")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Skipf("Skipping database test: cannot connect to test database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("Skipping database test: cannot ping test database: %v", err)
	}

	if _, err := Migrate(dbURL); err != nil {
		pool.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	truncate := func() {
		if _, err := pool.Exec(context.Background(), "TRUNCATE TABLE transactions, snapshots"); err != nil {
			t.Errorf("failed to truncate test tables: %v", err)
		}
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		pool.Close()
	})

	return NewStore(pool)
}
