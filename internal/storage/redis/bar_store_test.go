package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"gapup-lab/internal/storage"
	"gapup-lab/internal/storage/storagetest"
)

// setupRedis starts a Redis container and returns its address.
func setupRedis(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForLog("Ready to accept connections").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestBarStore(t *testing.T) {
	addr := setupRedis(t)

	n := 0
	storagetest.Run(t, func(t *testing.T) storage.BarStore {
		n++
		client, err := NewClient(context.Background(), WithAddr(addr), WithPrefix(fmt.Sprintf("test%d", n)))
		require.NoError(t, err)
		return NewBarStore(client)
	})
}

func TestBarStore_PrefixIsolation(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	a, err := NewClient(ctx, WithAddr(addr), WithPrefix("a"))
	require.NoError(t, err)
	b, err := NewClient(ctx, WithAddr(addr), WithPrefix("b"))
	require.NoError(t, err)

	storeA, storeB := NewBarStore(a), NewBarStore(b)
	defer storeA.Close()
	defer storeB.Close()

	require.NoError(t, storeA.Upsert(ctx, "QQQ", storagetest.Bars(1, 3)))
	require.NoError(t, storeB.Clear(ctx, ""))

	got, err := storeA.GetRange(ctx, "QQQ", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = storeB.Metadata(ctx, "QQQ")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNewClient_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewClient(ctx, WithAddr("127.0.0.1:1"))
	assert.Error(t, err)
}
