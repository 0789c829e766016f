package identity

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/quipu-labs/go-identity/middleware/authgate"
)

// HTTPAuthenticator is the surface the controller needs from the
// authentication layer.
type HTTPAuthenticator interface {
	Login(ctx context.Context, identifier, password string) (string, error)
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

// RouteAuthenticator wires the credential gate into the router. It owns
// the token validator and the public route filter; handlers only ever
// see requests the gate let through.
type RouteAuthenticator struct {
	auth         Authenticator
	cfg          Config
	table        *RouteTable
	validator    TokenValidator
	Logger       Logger
	ErrorHandler func(c router.Context, err error) error
}

func NewHTTPAuthenticator(auther Authenticator, cfg Config) (*RouteAuthenticator, error) {
	a := &RouteAuthenticator{
		cfg:    cfg,
		auth:   auther,
		Logger: defLogger{},
		validator: NewTokenService(
			[]byte(cfg.GetSigningKey()),
			cfg.GetTokenExpiration(),
			cfg.GetIssuer(),
			cfg.GetAudience(),
			defLogger{},
		),
	}

	a.ErrorHandler = a.defaultErrHandler

	return a, nil
}

// WithRouteTable installs the static route table used to skip the gate
// on public routes.
func (a *RouteAuthenticator) WithRouteTable(table *RouteTable) *RouteAuthenticator {
	a.table = table
	return a
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (a *RouteAuthenticator) WithTokenValidator(validator TokenValidator) *RouteAuthenticator {
	if validator != nil {
		a.validator = validator
	}
	return a
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a *RouteAuthenticator) Login(ctx context.Context, identifier, password string) (string, error) {
	token, err := a.auth.Login(ctx, identifier, password)
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return "", err
	}

	return token, nil
}

// ProtectedRoute returns the gate middleware for every route the table
// does not mark public.
func (a *RouteAuthenticator) ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc {
	return authgate.New(authgate.Config{
		Filter:       a.publicRouteFilter(),
		ErrorHandler: errorHandler,
		SigningKey: authgate.SigningKey{
			Key:    []byte(cfg.GetSigningKey()),
			JWTAlg: cfg.GetSigningMethod(),
		},
		AuthScheme:      cfg.GetAuthScheme(),
		ContextKey:      cfg.GetContextKey(),
		TokenLookup:     cfg.GetTokenLookup(),
		TokenValidator:  gateValidator{validator: a.validator},
		SubjectResolver: a.resolveSubject,
		ContextEnricher: ContextEnricherAdapter,
	})
}

func (a *RouteAuthenticator) publicRouteFilter() func(router.Context) bool {
	if a.table == nil {
		return nil
	}
	return func(ctx router.Context) bool {
		return a.table.IsPublic(ctx.Method(), ctx.Path())
	}
}

// resolveSubject rejects credentials whose subject no longer maps to a
// live account, and attaches the account it resolved to the request
// context for downstream handlers. A deleted user keeps a valid
// signature until expiry; this is what turns that signature into a 401.
func (a *RouteAuthenticator) resolveSubject(ctx router.Context, claims authgate.AuthClaims) error {
	subject := claims.Subject()
	if subject == "" {
		return errors.New("token has no subject", errors.CategoryAuth).
			WithCode(errors.CodeUnauthorized)
	}

	resolved, err := a.auth.IdentityFromSubject(ctx.Context(), subject)
	if err != nil {
		return errors.Wrap(err, errors.CategoryAuth, "token subject has no live account").
			WithCode(errors.CodeUnauthorized)
	}

	reqCtx := WithIdentityContext(ctx.Context(), resolved)
	if ui, ok := resolved.(UserIdentity); ok {
		reqCtx = WithContext(reqCtx, ui.User())
	}
	ctx.SetContext(reqCtx)

	return nil
}

// MakeAPIAuthErrorHandler normalizes gate failures into rich errors and
// answers JSON. With optional set, failed authentication lets the
// request continue anonymously.
func (a *RouteAuthenticator) MakeAPIAuthErrorHandler(optional bool) func(router.Context, error) error {
	return func(ctx router.Context, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return ctx.Next()
		}

		return a.ErrorHandler(ctx, richErr)
	}
}

func (a *RouteAuthenticator) defaultErrHandler(c router.Context, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	code := richErr.Code
	if code == 0 {
		switch richErr.Category {
		case errors.CategoryAuth:
			code = router.StatusUnauthorized
		case errors.CategoryAuthz:
			code = router.StatusForbidden
		default:
			code = router.StatusInternalServerError
		}
	}

	return c.JSON(code, map[string]string{
		"error": richErr.Message,
	})
}

type gateValidator struct {
	validator TokenValidator
}

func (g gateValidator) Validate(tokenString string) (authgate.AuthClaims, error) {
	claims, err := g.validator.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
