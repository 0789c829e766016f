package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	identity "github.com/quipu-labs/go-identity"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// AppConfig is loaded from the environment and satisfies
// identity.Config for the token and gate wiring.
type AppConfig struct {
	Address         string        `env:"HTTP_ADDR" envDefault:":8572"`
	DSN             string        `env:"DB_DSN" envDefault:"file:identity.db?cache=shared"`
	SigningKey      string        `env:"JWT_SIGNING_KEY,required"`
	SigningMethod   string        `env:"JWT_SIGNING_METHOD" envDefault:"HS256"`
	ContextKey      string        `env:"JWT_CONTEXT_KEY" envDefault:"user"`
	TokenExpiration int           `env:"JWT_TOKEN_EXPIRATION" envDefault:"5"`
	TokenLookup     string        `env:"JWT_TOKEN_LOOKUP" envDefault:"header:Authorization"`
	AuthScheme      string        `env:"JWT_AUTH_SCHEME" envDefault:"Bearer"`
	Issuer          string        `env:"JWT_ISSUER" envDefault:"go-identity"`
	Audience        []string      `env:"JWT_AUDIENCE" envSeparator:","`
	TokenTTL        time.Duration `env:"VALIDATION_TOKEN_TTL" envDefault:"1h"`
	SweepInterval   time.Duration `env:"TOKEN_SWEEP_INTERVAL" envDefault:"720h"`
	Debug           bool          `env:"DEBUG"`
}

func (c AppConfig) GetSigningKey() string    { return c.SigningKey }
func (c AppConfig) GetSigningMethod() string { return c.SigningMethod }
func (c AppConfig) GetContextKey() string    { return c.ContextKey }
func (c AppConfig) GetTokenExpiration() int  { return c.TokenExpiration }
func (c AppConfig) GetTokenLookup() string   { return c.TokenLookup }
func (c AppConfig) GetAuthScheme() string    { return c.AuthScheme }
func (c AppConfig) GetIssuer() string        { return c.Issuer }
func (c AppConfig) GetAudience() []string    { return c.Audience }

func main() {
	cfg := AppConfig{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
	if err != nil {
		log.Fatal(err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	defer db.Close()

	if err := identity.ApplySchema(ctx, db); err != nil {
		log.Fatal(err)
	}

	repo := identity.NewRepositoryManager(db)
	repo.MustValidate()

	userProvider := identity.NewUserProvider(repo.Users())
	authenticator := identity.NewAuthenticator(userProvider, cfg)

	httpAuth, err := identity.NewHTTPAuthenticator(authenticator, cfg)
	if err != nil {
		log.Fatal(err)
	}

	routes := &identity.AuthControllerRoutes{
		Login:           "/users/login",
		Register:        "/users/register",
		EmailValidation: "/users/email-validation",
		User:            "/users/:id",
		PasswordReset:   "/account/password-reset",
	}

	table := identity.DefaultRouteTable(routes)
	httpAuth.WithRouteTable(table)

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})

	r := srv.Router()

	// interceptor order is the contract: existence, then credential,
	// then ownership
	r.Use(identity.NotFoundGate(table))
	r.Use(httpAuth.ProtectedRoute(cfg, httpAuth.MakeAPIAuthErrorHandler(false)))
	r.Use(identity.OwnershipGate(table, repo.Users(), cfg.GetContextKey()))

	identity.RegisterAuthRoutes(r.Group("/"),
		func(ac *identity.AuthController) *identity.AuthController {
			ac.Debug = cfg.Debug
			ac.Auther = httpAuth
			ac.Repo = repo
			ac.Routes = routes
			ac.TokenTTL = cfg.TokenTTL
			return ac
		})

	sweeper := identity.NewSweeper(repo.ValidationTokens()).
		WithInterval(cfg.SweepInterval)
	go sweeper.Run(ctx)

	go func() {
		if err := srv.Serve(cfg.Address); err != nil {
			log.Printf("server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
