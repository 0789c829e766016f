package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	ValidationTokens() ValidationTokens
}

type mngr struct {
	db               *bun.DB
	users            Users
	validationTokens ValidationTokens
}

func NewRepositoryManager(db *bun.DB, opts ...ValidationTokensOption) RepositoryManager {
	return &mngr{
		db:               db,
		users:            NewUsersRepository(db),
		validationTokens: NewValidationTokensRepository(db, opts...),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.validationTokens == nil {
		return errors.New("repository validationTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) ValidationTokens() ValidationTokens {
	return m.validationTokens
}
