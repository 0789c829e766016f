package identity_test

import (
	"context"
	"testing"

	"github.com/quipu-labs/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserContext(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		user := &identity.User{Username: "tester"}
		ctx := identity.WithContext(context.Background(), user)

		got, ok := identity.FromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, user, got)
	})

	t.Run("missing user", func(t *testing.T) {
		got, ok := identity.FromContext(context.Background())
		assert.False(t, ok)
		assert.Nil(t, got)
	})
}

func TestIdentityContext(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		id := identity.NewIdentityFromUser(&identity.User{Username: "tester"})
		ctx := identity.WithIdentityContext(context.Background(), id)

		got, ok := identity.IdentityFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, "tester", got.Username())
	})

	t.Run("missing identity", func(t *testing.T) {
		got, ok := identity.IdentityFromContext(context.Background())
		assert.False(t, ok)
		assert.Nil(t, got)
	})
}

func TestClaimsContext(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		claims := ownerClaims("user-123")
		ctx := identity.WithClaimsContext(context.Background(), claims)

		got, ok := identity.GetClaims(ctx)
		require.True(t, ok)
		assert.Equal(t, "user-123", got.Subject())
	})

	t.Run("missing claims", func(t *testing.T) {
		got, ok := identity.GetClaims(context.Background())
		assert.False(t, ok)
		assert.Nil(t, got)
	})
}

func TestGetRouterClaims(t *testing.T) {
	t.Run("reads claims from locals", func(t *testing.T) {
		claims := ownerClaims("user-123")

		ctx := new(MockContext)
		ctx.On("Locals", "jwt").Return(claims)

		got, ok := identity.GetRouterClaims(ctx, "jwt")
		require.True(t, ok)
		assert.Equal(t, "user-123", got.Subject())
	})

	t.Run("empty key falls back to default", func(t *testing.T) {
		claims := ownerClaims("user-123")

		ctx := new(MockContext)
		ctx.On("Locals", "user").Return(claims)

		got, ok := identity.GetRouterClaims(ctx, "")
		require.True(t, ok)
		assert.Equal(t, "user-123", got.Subject())
	})

	t.Run("missing value", func(t *testing.T) {
		ctx := new(MockContext)
		ctx.On("Locals", "user").Return(nil)

		_, ok := identity.GetRouterClaims(ctx, "user")
		assert.False(t, ok)
	})

	t.Run("wrong type", func(t *testing.T) {
		ctx := new(MockContext)
		ctx.On("Locals", "user").Return("not-claims")

		_, ok := identity.GetRouterClaims(ctx, "user")
		assert.False(t, ok)
	})
}
