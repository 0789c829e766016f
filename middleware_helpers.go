package identity

import (
	"context"

	"github.com/quipu-labs/go-identity/middleware/authgate"
)

// SubjectResolver aliases the authgate hook so consumers can use
// identity helpers directly.
type SubjectResolver = authgate.SubjectResolver

// ContextEnricherAdapter adapts authgate.AuthClaims to identity.AuthClaims
// and stores the claims in the standard context for downstream usage.
func ContextEnricherAdapter(c context.Context, claims authgate.AuthClaims) context.Context {
	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return c
	}

	return WithClaimsContext(c, authClaims)
}
