//go:build integration

package repositories

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/authenticator/internal/database"
	"github.com/BradenHooton/authenticator/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDatabase starts PostgreSQL in a container and applies the embedded migrations.
func setupTestDatabase(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("authenticator"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := database.NewFromPool(pool, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestUserRepository_Integration(t *testing.T) {
	db := setupTestDatabase(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.User{Email: "a@x.com", PasswordHash: "hash"})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.TwoFactorEnabled)
	assert.Empty(t, created.TOTPSecret)
	assert.Nil(t, created.PasswordChangedAt)

	t.Run("duplicate email conflicts case-insensitively", func(t *testing.T) {
		_, err := repo.Create(ctx, &models.User{Email: "A@X.com", PasswordHash: "hash"})
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("lookups", func(t *testing.T) {
		byEmail, err := repo.GetByEmail(ctx, "A@x.COM")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		byID, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", byID.Email)

		_, err = repo.GetByEmail(ctx, "nobody@x.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = repo.GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("scoped writes persist 2FA and reset state", func(t *testing.T) {
		updated, err := repo.SetTwoFactor(ctx, created.ID, true, "JBSWY3DPEHPK3PXP")
		require.NoError(t, err)
		assert.True(t, updated.TwoFactorEnabled)
		assert.Equal(t, "JBSWY3DPEHPK3PXP", updated.TOTPSecret)

		expires := time.Now().Add(10 * time.Minute)
		updated, err = repo.SetResetState(ctx, created.ID, "abc", &expires)
		require.NoError(t, err)
		assert.Equal(t, "abc", updated.PasswordResetCodeHash)
		require.NotNil(t, updated.PasswordResetExpiresAt)
		assert.True(t, updated.TwoFactorEnabled)
		assert.Equal(t, created.PasswordHash, updated.PasswordHash)
	})

	t.Run("2FA enabled without a secret is rejected", func(t *testing.T) {
		_, err := repo.SetTwoFactor(ctx, created.ID, true, "")
		assert.ErrorIs(t, err, models.ErrBadRequest)
	})

	t.Run("swap is single use", func(t *testing.T) {
		expires := time.Now().Add(10 * time.Minute)
		_, err := repo.SwapResetState(ctx, created.ID, "abc", "def", &expires)
		require.NoError(t, err)

		_, err = repo.SwapResetState(ctx, created.ID, "abc", "ghi", &expires)
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("password update is conditional and clears reset state", func(t *testing.T) {
		changedAt := time.Now().UTC().Truncate(time.Microsecond)
		updated, err := repo.UpdatePasswordIfResetHash(ctx, created.ID, "def", "new-hash", changedAt)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", updated.PasswordHash)
		require.NotNil(t, updated.PasswordChangedAt)
		assert.True(t, changedAt.Equal(*updated.PasswordChangedAt))
		assert.Empty(t, updated.PasswordResetCodeHash)
		assert.Nil(t, updated.PasswordResetExpiresAt)
		assert.True(t, updated.TwoFactorEnabled)

		_, err = repo.UpdatePasswordIfResetHash(ctx, created.ID, "def", "other-hash", changedAt)
		assert.ErrorIs(t, err, models.ErrConflict)
	})

	t.Run("2FA writes leave the password alone", func(t *testing.T) {
		updated, err := repo.SetTwoFactor(ctx, created.ID, false, "")
		require.NoError(t, err)
		assert.Equal(t, "new-hash", updated.PasswordHash)
		assert.NotNil(t, updated.PasswordChangedAt)
	})

	t.Run("expired resets are cleared", func(t *testing.T) {
		past := time.Now().Add(-time.Minute)
		_, err := repo.SetResetState(ctx, created.ID, "old", &past)
		require.NoError(t, err)

		n, err := repo.ClearExpiredResets(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		user, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Empty(t, user.PasswordResetCodeHash)
		assert.Nil(t, user.PasswordResetExpiresAt)
	})
}
