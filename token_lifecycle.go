package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenStore is the slice of the validation token repository the
// lifecycle manager needs.
type TokenStore interface {
	Create(ctx context.Context, record *IdentityValidationToken, criteria ...repository.InsertCriteria) (*IdentityValidationToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *IdentityValidationToken, criteria ...repository.InsertCriteria) (*IdentityValidationToken, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*IdentityValidationToken, error)
	GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (*IdentityValidationToken, error)
	MarkVerified(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserDirectory resolves token owners.
type UserDirectory interface {
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error)
}

// TokenManager issues and consumes identity validation tokens, binding
// each token to a resolved owner at issuance time.
type TokenManager struct {
	store  TokenStore
	users  UserDirectory
	clock  Clock
	logger Logger
}

// NewTokenManager will create a new TokenManager
func NewTokenManager(store TokenStore, users UserDirectory) *TokenManager {
	return &TokenManager{
		store:  store,
		users:  users,
		clock:  systemClock{},
		logger: defLogger{},
	}
}

func (m *TokenManager) WithLogger(logger Logger) *TokenManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

func (m *TokenManager) WithClock(clock Clock) *TokenManager {
	if clock != nil {
		m.clock = clock
	}
	return m
}

// IssueVerificationToken re-resolves the owner and persists a fresh
// token expiring ttl from now. Unresolvable owners fail with
// ErrIdentityNotFound; a non positive ttl fails with
// ErrInvalidExpiration before touching the store.
func (m *TokenManager) IssueVerificationToken(ctx context.Context, owner string, ttl time.Duration) (*IdentityValidationToken, error) {
	if ttl <= 0 {
		return nil, ErrInvalidExpiration
	}

	user, err := m.users.GetByIdentifier(ctx, owner)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve token owner")
	}

	token := &IdentityValidationToken{
		UserID:     user.ID,
		Expiration: m.clock.Now().Add(ttl),
	}

	created, err := m.store.Create(ctx, token)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("issued validation token", "token_id", created.ID.String(), "user_id", user.ID.String())

	return created, nil
}

// IssueFor persists a fresh token for an already resolved owner inside
// the caller's transaction. Command handlers use this so the token row
// commits or rolls back with the rest of their writes.
func (m *TokenManager) IssueFor(ctx context.Context, tx bun.IDB, owner *User, ttl time.Duration) (*IdentityValidationToken, error) {
	if owner == nil {
		return nil, ErrIdentityNotFound
	}
	if ttl <= 0 {
		return nil, ErrInvalidExpiration
	}

	token := &IdentityValidationToken{
		UserID:     owner.ID,
		Expiration: m.clock.Now().Add(ttl),
	}

	created, err := m.store.CreateTx(ctx, tx, token)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("issued validation token", "token_id", created.ID.String(), "user_id", owner.ID.String())

	return created, nil
}

// Consume attempts the single verified flip for the given identifier.
// Nonexistent, expired, and already consumed tokens all report plain
// false: callers cannot tell which it was, so probing arbitrary ids
// reveals nothing. The error return covers storage failures only.
func (m *TokenManager) Consume(ctx context.Context, id string) (bool, error) {
	tokenID, err := uuid.Parse(id)
	if err != nil {
		return false, nil
	}

	ok, err := m.store.MarkVerified(ctx, tokenID, m.clock.Now())
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume validation token")
	}

	return ok, nil
}

// ConsumeTx is Consume inside the caller's transaction. On a
// successful flip it also returns the consumed token row so callers
// can reach the owner without a second round trip.
func (m *TokenManager) ConsumeTx(ctx context.Context, tx bun.IDB, id string) (*IdentityValidationToken, bool, error) {
	tokenID, err := uuid.Parse(id)
	if err != nil {
		return nil, false, nil
	}

	ok, err := m.store.MarkVerifiedTx(ctx, tx, tokenID, m.clock.Now())
	if err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume validation token")
	}

	if !ok {
		return nil, false, nil
	}

	token, err := m.store.GetByIDTx(ctx, tx, tokenID.String())
	if err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve consumed token")
	}

	return token, true, nil
}

// ResolveOwner returns the subject bound to a still existing, not yet
// expired token. Never existed and expired both come back as
// ErrIdentityNotFound; the two cases are indistinguishable on purpose.
func (m *TokenManager) ResolveOwner(ctx context.Context, id string) (*User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrIdentityNotFound
	}

	token, err := m.store.GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve validation token")
	}

	if token.IsExpired(m.clock.Now()) {
		return nil, ErrIdentityNotFound
	}

	user, err := m.users.GetByID(ctx, token.UserID.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve token owner")
	}

	return user, nil
}
