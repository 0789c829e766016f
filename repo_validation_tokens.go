package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ValidationTokens persists single use identity validation tokens. The
// store owns the token's whole lifecycle: creation with a future
// expiration, the one and only verified flip, and the periodic removal
// of expired rows.
type ValidationTokens interface {
	repository.Repository[*IdentityValidationToken]

	Create(ctx context.Context, record *IdentityValidationToken, criteria ...repository.InsertCriteria) (*IdentityValidationToken, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *IdentityValidationToken, criteria ...repository.InsertCriteria) (*IdentityValidationToken, error)

	// MarkVerified transitions verified false to true only if the token
	// exists, is not already verified, and expires after now. It reports
	// false for any of those violations without raising an error.
	MarkVerified(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error)

	// DeleteExpired bulk removes every token whose expiration has
	// passed, regardless of verified state. Idempotent.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredTx(ctx context.Context, tx bun.IDB, now time.Time) (int64, error)
}

type validationTokens struct {
	repository.Repository[*IdentityValidationToken]
	db    *bun.DB
	clock Clock
}

var (
	_ ValidationTokens                                = (*validationTokens)(nil)
	_ repository.Repository[*IdentityValidationToken] = (*validationTokens)(nil)
)

type ValidationTokensOption func(*validationTokens)

// WithValidationTokensClock overrides the clock used for the creation
// time expiration guard.
func WithValidationTokensClock(clock Clock) ValidationTokensOption {
	return func(v *validationTokens) {
		if clock != nil {
			v.clock = clock
		}
	}
}

func NewValidationTokensRepository(db *bun.DB, opts ...ValidationTokensOption) ValidationTokens {
	repo := repository.NewRepository[*IdentityValidationToken](db, repository.ModelHandlers[*IdentityValidationToken]{
		NewRecord: func() *IdentityValidationToken { return &IdentityValidationToken{} },
		GetID: func(t *IdentityValidationToken) uuid.UUID {
			if t == nil {
				return uuid.Nil
			}
			return t.ID
		},
		SetID: func(t *IdentityValidationToken, id uuid.UUID) {
			if t != nil {
				t.ID = id
			}
		},
	})

	tokens := &validationTokens{
		Repository: repo,
		db:         db,
		clock:      systemClock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(tokens)
		}
	}

	return tokens
}

func (a *validationTokens) Create(ctx context.Context, record *IdentityValidationToken, criteria ...repository.InsertCriteria) (*IdentityValidationToken, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *validationTokens) CreateTx(ctx context.Context, tx bun.IDB, record *IdentityValidationToken, criteria ...repository.InsertCriteria) (*IdentityValidationToken, error) {
	if record == nil {
		return nil, ErrInvalidExpiration
	}

	if !record.Expiration.After(a.clock.Now()) {
		return nil, ErrInvalidExpiration
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.Verified = false

	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *validationTokens) MarkVerified(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return a.MarkVerifiedTx(ctx, a.db, id, now)
}

// MarkVerifiedTx is a single conditional update so two concurrent
// consumers can never both observe success for the same token.
func (a *validationTokens) MarkVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID, now time.Time) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*IdentityValidationToken)(nil)).
		Set("verified = TRUE").
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.verified = FALSE").
		Where("?TableAlias.expiration > ?", now).
		Exec(ctx)
	if err != nil {
		return false, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

func (a *validationTokens) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return a.DeleteExpiredTx(ctx, a.db, now)
}

func (a *validationTokens) DeleteExpiredTx(ctx context.Context, tx bun.IDB, now time.Time) (int64, error) {
	res, err := tx.NewDelete().
		Model((*IdentityValidationToken)(nil)).
		Where("?TableAlias.expiration < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	return rows, nil
}
