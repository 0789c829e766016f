package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type ValidateEmailMessage struct {
	Token      string `json:"token"`
	OnResponse func(resp *ValidateEmailResponse)
}

func (e ValidateEmailMessage) Type() string { return "user.email_validation" }

type ValidateEmailResponse struct {
	Verified bool
	User     *User
}

// ValidateEmailHandler consumes a validation token and flags the owning
// account's email as verified. Both writes share one transaction: the
// token flip and the account flag either land together or not at all.
type ValidateEmailHandler struct {
	repo  RepositoryManager
	clock Clock
}

func NewValidateEmailHandler(repo RepositoryManager) *ValidateEmailHandler {
	return &ValidateEmailHandler{
		repo:  repo,
		clock: systemClock{},
	}
}

func (h *ValidateEmailHandler) WithClock(clock Clock) *ValidateEmailHandler {
	if clock != nil {
		h.clock = clock
	}
	return h
}

func (h *ValidateEmailHandler) Execute(ctx context.Context, event ValidateEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during email validation")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ValidateEmailHandler) execute(ctx context.Context, event ValidateEmailMessage) error {
	resp := &ValidateEmailResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	tokens := NewTokenManager(h.repo.ValidationTokens(), h.repo.Users()).
		WithClock(h.clock)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// unparseable identifiers behave exactly like unknown ones
		token, ok, err := tokens.ConsumeTx(ctx, tx, event.Token)
		if err != nil {
			return err
		}

		if !ok {
			return nil
		}

		user, err := h.repo.Users().GetByIDTx(ctx, tx, token.UserID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("validation token is not associated with a user", goerrors.CategoryInternal)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve token owner")
		}

		if err := h.repo.Users().MarkEmailValidatedTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to flag email as verified")
		}

		resp.Verified = true
		resp.User = user
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to execute email validation")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
