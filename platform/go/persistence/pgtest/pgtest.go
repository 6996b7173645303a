// Package pgtest starts a disposable Postgres for integration tests and applies the
// hotspot schema to it.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/netpesa/hotspot-billing/platform/go/persistence"
)

// Start launches a postgres:16-alpine container, bootstraps the hotspot schema and returns a
// pool plus a DB bound to that schema. Tests are skipped in -short mode.
func Start(t *testing.T) (*pgxpool.Pool, *persistence.DB) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("hotspot"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      connString,
		ConnectAttempts: 5,
		ConnectDelay:    200 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { persistence.ClosePool(pool) })

	require.NoError(t, persistence.BootstrapSchema(ctx, pool, persistence.DefaultSchema))

	return pool, persistence.NewDB(persistence.DBConfig{Pool: pool, Schema: persistence.DefaultSchema})
}
