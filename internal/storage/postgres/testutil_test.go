package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB starts a PostgreSQL container and returns its DSN.
// The container is terminated when the test finishes.
func setupTestDB(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	return dsn
}

// newTestPool connects to dsn and applies migrations.
func newTestPool(t *testing.T, dsn string) *Pool {
	t.Helper()
	ctx := context.Background()

	pool, err := NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")
	require.NoError(t, pool.Migrate(ctx), "failed to apply migrations")

	return pool
}

// truncate empties the cache tables between subtests sharing a container.
func truncate(t *testing.T, pool *Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), "TRUNCATE price_bars, cache_metadata")
	require.NoError(t, err)
}
