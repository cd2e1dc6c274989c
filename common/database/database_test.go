package database

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/ecx?sslmode=disable", migrateURL("postgres://u:p@db:5432/ecx?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/ecx", migrateURL("postgresql://u@db/ecx"))
	assert.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)
	// every up has a matching down
	assert.Equal(t, 0, len(entries)%2)
	assert.GreaterOrEqual(t, len(entries), 6)
}

func TestMigrator_UpDownVersion(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("ecx_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	mg, err := NewMigrator(dsn, slog.Default())
	require.NoError(t, err)
	defer mg.Close()

	v, _, err := mg.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)

	require.NoError(t, mg.Up())
	v, dirty, err := mg.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(3), v)
	assert.False(t, dirty)

	// idempotent
	require.NoError(t, mg.Up())

	require.NoError(t, mg.Down(1))
	v, _, err = mg.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
}
