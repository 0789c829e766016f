package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/quipu-labs/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerAccount(t *testing.T, repo identity.RepositoryManager, email string) *identity.RegisterUserResponse {
	t.Helper()

	var res *identity.RegisterUserResponse
	err := identity.NewRegisterUserHandler(repo).
		WithNotifier(&captureNotifier{}).
		WithLogger(testLogger{}).
		Execute(context.Background(), identity.RegisterUserMessage{
			Email:    email,
			Password: "Password1!",
			OnResponse: func(resp *identity.RegisterUserResponse) {
				res = resp
			},
		})
	require.NoError(t, err)
	require.NotNil(t, res)

	return res
}

func TestValidateEmailHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes the token and validates the account", func(t *testing.T) {
		_, repo := setupTestDB(t)
		account := registerAccount(t, repo, "tester@example.com")

		handler := identity.NewValidateEmailHandler(repo)

		var res *identity.ValidateEmailResponse
		err := handler.Execute(ctx, identity.ValidateEmailMessage{
			Token: account.Token.ID.String(),
			OnResponse: func(resp *identity.ValidateEmailResponse) {
				res = resp
			},
		})

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.True(t, res.Verified)
		require.NotNil(t, res.User)
		assert.Equal(t, account.User.ID, res.User.ID)

		user, err := repo.Users().GetByID(ctx, account.User.ID.String())
		require.NoError(t, err)
		assert.True(t, user.EmailValidated)

		token, err := repo.ValidationTokens().GetByID(ctx, account.Token.ID.String())
		require.NoError(t, err)
		assert.True(t, token.Verified)
	})

	t.Run("second presentation fails", func(t *testing.T) {
		_, repo := setupTestDB(t)
		account := registerAccount(t, repo, "tester@example.com")

		handler := identity.NewValidateEmailHandler(repo)
		msg := identity.ValidateEmailMessage{Token: account.Token.ID.String()}

		require.NoError(t, handler.Execute(ctx, msg))

		var res *identity.ValidateEmailResponse
		msg.OnResponse = func(resp *identity.ValidateEmailResponse) { res = resp }

		require.NoError(t, handler.Execute(ctx, msg))
		require.NotNil(t, res)
		assert.False(t, res.Verified)
	})

	t.Run("expired token fails", func(t *testing.T) {
		_, repo := setupTestDB(t)
		account := registerAccount(t, repo, "tester@example.com")

		clock := newFakeClock(time.Now().Add(2 * identity.DefaultValidationTokenTTL))
		handler := identity.NewValidateEmailHandler(repo).WithClock(clock)

		var res *identity.ValidateEmailResponse
		err := handler.Execute(ctx, identity.ValidateEmailMessage{
			Token: account.Token.ID.String(),
			OnResponse: func(resp *identity.ValidateEmailResponse) {
				res = resp
			},
		})

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.False(t, res.Verified)

		user, err := repo.Users().GetByID(ctx, account.User.ID.String())
		require.NoError(t, err)
		assert.False(t, user.EmailValidated)
	})

	t.Run("unknown token fails", func(t *testing.T) {
		_, repo := setupTestDB(t)

		handler := identity.NewValidateEmailHandler(repo)

		var res *identity.ValidateEmailResponse
		err := handler.Execute(ctx, identity.ValidateEmailMessage{
			Token: "43f1e6b2-4f62-4c6b-a877-6279b8de3ac7",
			OnResponse: func(resp *identity.ValidateEmailResponse) {
				res = resp
			},
		})

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.False(t, res.Verified)
	})

	t.Run("unparseable token behaves like an unknown one", func(t *testing.T) {
		_, repo := setupTestDB(t)

		handler := identity.NewValidateEmailHandler(repo)

		var res *identity.ValidateEmailResponse
		err := handler.Execute(ctx, identity.ValidateEmailMessage{
			Token: "not-a-uuid",
			OnResponse: func(resp *identity.ValidateEmailResponse) {
				res = resp
			},
		})

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.False(t, res.Verified)
	})
}
