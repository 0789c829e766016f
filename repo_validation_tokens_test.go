package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/quipu-labs/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, repo identity.RepositoryManager, email string) *identity.User {
	t.Helper()

	hash, err := identity.HashPassword("Password1!")
	require.NoError(t, err)

	user, err := repo.Users().Create(context.Background(), &identity.User{
		Email:        email,
		PasswordHash: hash,
	})
	require.NoError(t, err)

	return user
}

func TestValidationTokensCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("persists a fresh token", func(t *testing.T) {
		_, repo := setupTestDB(t)
		user := seedUser(t, repo, "tester@example.com")

		token, err := repo.ValidationTokens().Create(ctx, &identity.IdentityValidationToken{
			UserID:     user.ID,
			Expiration: time.Now().Add(time.Hour),
		})

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, token.ID)
		assert.False(t, token.Verified)
	})

	t.Run("rejects an expiration in the past", func(t *testing.T) {
		_, repo := setupTestDB(t)
		user := seedUser(t, repo, "tester@example.com")

		_, err := repo.ValidationTokens().Create(ctx, &identity.IdentityValidationToken{
			UserID:     user.ID,
			Expiration: time.Now().Add(-time.Minute),
		})

		assert.ErrorIs(t, err, identity.ErrInvalidExpiration)
	})

	t.Run("rejects a nil record", func(t *testing.T) {
		_, repo := setupTestDB(t)

		_, err := repo.ValidationTokens().Create(ctx, nil)
		assert.ErrorIs(t, err, identity.ErrInvalidExpiration)
	})

	t.Run("never persists a pre verified token", func(t *testing.T) {
		_, repo := setupTestDB(t)
		user := seedUser(t, repo, "tester@example.com")

		token, err := repo.ValidationTokens().Create(ctx, &identity.IdentityValidationToken{
			UserID:     user.ID,
			Expiration: time.Now().Add(time.Hour),
			Verified:   true,
		})

		require.NoError(t, err)
		assert.False(t, token.Verified)
	})
}

func TestValidationTokensMarkVerified(t *testing.T) {
	ctx := context.Background()

	t.Run("flips exactly once", func(t *testing.T) {
		_, repo := setupTestDB(t)
		user := seedUser(t, repo, "tester@example.com")

		token, err := repo.ValidationTokens().Create(ctx, &identity.IdentityValidationToken{
			UserID:     user.ID,
			Expiration: time.Now().Add(time.Hour),
		})
		require.NoError(t, err)

		ok, err := repo.ValidationTokens().MarkVerified(ctx, token.ID, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		// second presentation of the same token must fail
		ok, err = repo.ValidationTokens().MarkVerified(ctx, token.ID, time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown token reports false without error", func(t *testing.T) {
		_, repo := setupTestDB(t)

		ok, err := repo.ValidationTokens().MarkVerified(ctx, uuid.New(), time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired token reports false", func(t *testing.T) {
		_, repo := setupTestDB(t)
		user := seedUser(t, repo, "tester@example.com")

		token, err := repo.ValidationTokens().Create(ctx, &identity.IdentityValidationToken{
			UserID:     user.ID,
			Expiration: time.Now().Add(time.Minute),
		})
		require.NoError(t, err)

		ok, err := repo.ValidationTokens().MarkVerified(ctx, token.ID, time.Now().Add(2*time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestValidationTokensDeleteExpired(t *testing.T) {
	ctx := context.Background()

	t.Run("removes only expired rows", func(t *testing.T) {
		_, repo := setupTestDB(t)
		user := seedUser(t, repo, "tester@example.com")

		now := time.Now()

		expired, err := repo.ValidationTokens().Create(ctx, &identity.IdentityValidationToken{
			UserID:     user.ID,
			Expiration: now.Add(time.Minute),
		})
		require.NoError(t, err)

		live, err := repo.ValidationTokens().Create(ctx, &identity.IdentityValidationToken{
			UserID:     user.ID,
			Expiration: now.Add(time.Hour),
		})
		require.NoError(t, err)

		removed, err := repo.ValidationTokens().DeleteExpired(ctx, now.Add(30*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		_, err = repo.ValidationTokens().GetByID(ctx, expired.ID.String())
		assert.Error(t, err)

		kept, err := repo.ValidationTokens().GetByID(ctx, live.ID.String())
		require.NoError(t, err)
		assert.Equal(t, live.ID, kept.ID)
	})

	t.Run("idempotent on an empty table", func(t *testing.T) {
		_, repo := setupTestDB(t)

		removed, err := repo.ValidationTokens().DeleteExpired(ctx, time.Now())
		require.NoError(t, err)
		assert.Equal(t, int64(0), removed)
	})

	t.Run("removes expired rows regardless of verified state", func(t *testing.T) {
		_, repo := setupTestDB(t)
		user := seedUser(t, repo, "tester@example.com")

		now := time.Now()

		token, err := repo.ValidationTokens().Create(ctx, &identity.IdentityValidationToken{
			UserID:     user.ID,
			Expiration: now.Add(time.Minute),
		})
		require.NoError(t, err)

		ok, err := repo.ValidationTokens().MarkVerified(ctx, token.ID, now)
		require.NoError(t, err)
		require.True(t, ok)

		removed, err := repo.ValidationTokens().DeleteExpired(ctx, now.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})
}
