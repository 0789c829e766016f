package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
)

// UserChecker is the existence probe the ownership gate runs against
// the account directory.
type UserChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// OwnershipGate enforces that a caller operating on /users/<id> is the
// very account the path names. It runs after the credential gate, so a
// request arriving here either matched a public route or carries
// validated claims.
//
// Rejections are deliberately asymmetric: a path naming an account
// that does not exist answers 404, the same as an unregistered route,
// while a real account owned by someone else answers 403. Probing for
// valid account ids with someone else's credential yields nothing.
func OwnershipGate(table *RouteTable, users UserChecker, contextKey string) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if table.IsPublic(ctx.Method(), ctx.Path()) {
				return ctx.Next()
			}

			segments := splitPath(ctx.Path())
			if len(segments) < 2 || segments[0] != "users" {
				return ctx.Next()
			}
			resourceID := segments[1]

			claims, ok := GetRouterClaims(ctx, contextKey)
			if !ok || claims.Subject() == "" {
				return ctx.JSON(router.StatusNotFound, map[string]string{
					"error": "User not found",
				})
			}

			exists, err := users.Exists(ctx.Context(), resourceID)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check resource owner")
			}

			if !exists {
				return ctx.JSON(router.StatusNotFound, map[string]string{
					"error": "User not found",
				})
			}

			if claims.UserID() != resourceID {
				return ctx.JSON(router.StatusForbidden, map[string]string{
					"error": "Access denied",
				})
			}

			return ctx.Next()
		}
	}
}
