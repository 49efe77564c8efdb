//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T, driver string) *DB {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithUsername("tabretry"),
		tcpostgres.WithPassword("tabretry"),
		tcpostgres.WithDatabase("tabretry"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := NewDB(ctx, Config{URL: connStr, Driver: driver})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestRetryRepo_Integration(t *testing.T) {
	for _, driver := range []string{"pgx", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			db := setupTestDB(t, driver)
			repo := NewRetryRepo(db)
			ctx := context.Background()

			_, found, err := repo.Get(ctx, 7)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, repo.Set(ctx, 7, 1))
			require.NoError(t, repo.Set(ctx, 7, 2))
			require.NoError(t, repo.Set(ctx, 3, 5))

			n, found, err := repo.Get(ctx, 7)
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, 2, n)

			states, err := repo.List(ctx)
			require.NoError(t, err)
			require.Len(t, states, 2)
			assert.EqualValues(t, 3, states[0].TabID)
			assert.Equal(t, 5, states[0].RetryCount)
			assert.False(t, states[0].UpdatedAt.IsZero())

			require.NoError(t, repo.Delete(ctx, 7))
			_, found, err = repo.Get(ctx, 7)
			require.NoError(t, err)
			assert.False(t, found)

			pruned, err := repo.DeleteOlderThan(ctx, time.Now().Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 1, pruned)

			// Migrations are idempotent
			require.NoError(t, db.Migrate(ctx))
		})
	}
}
