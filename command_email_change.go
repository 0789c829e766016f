package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ChangeEmailMessage struct {
	UserID     string `json:"user_id"`
	Email      string `json:"email"`
	OnResponse func(resp *ChangeEmailResponse)
}

func (e ChangeEmailMessage) Type() string { return "user.email_change" }

type ChangeEmailResponse struct {
	User  *User
	Token *IdentityValidationToken
}

// ChangeEmailHandler moves an account to a new email address. The new
// address is unproven, so the account drops back to unvalidated and a
// fresh validation token is issued, all in one transaction with the
// address write. Requesting the address already on file is a no-op.
type ChangeEmailHandler struct {
	repo     RepositoryManager
	notifier Notifier
	ttl      time.Duration
	clock    Clock
	logger   Logger
}

func NewChangeEmailHandler(repo RepositoryManager) *ChangeEmailHandler {
	return &ChangeEmailHandler{
		repo:     repo,
		notifier: LogNotifier{},
		ttl:      DefaultValidationTokenTTL,
		clock:    systemClock{},
		logger:   defLogger{},
	}
}

func (h *ChangeEmailHandler) WithNotifier(notifier Notifier) *ChangeEmailHandler {
	if notifier != nil {
		h.notifier = notifier
	}
	return h
}

func (h *ChangeEmailHandler) WithTokenTTL(ttl time.Duration) *ChangeEmailHandler {
	if ttl > 0 {
		h.ttl = ttl
	}
	return h
}

func (h *ChangeEmailHandler) WithClock(clock Clock) *ChangeEmailHandler {
	if clock != nil {
		h.clock = clock
	}
	return h
}

func (h *ChangeEmailHandler) WithLogger(logger Logger) *ChangeEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ChangeEmailHandler) Execute(ctx context.Context, event ChangeEmailMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email change",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ChangeEmailHandler) execute(ctx context.Context, event ChangeEmailMessage) error {
	resp := &ChangeEmailResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := ValidateEmail(event.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email provided").
			WithTextCode("INVALID_EMAIL")
	}

	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return goerrors.New("user not found", goerrors.CategoryNotFound).
			WithTextCode("USER_NOT_FOUND")
	}

	tokens := NewTokenManager(h.repo.ValidationTokens(), h.repo.Users()).
		WithClock(h.clock).
		WithLogger(h.logger)

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByIDTx(ctx, tx, userID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.New("user not found", goerrors.CategoryNotFound).
					WithTextCode("USER_NOT_FOUND")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for email change")
		}

		if user.Email == event.Email {
			resp.User = user
			return nil
		}

		user.Email = event.Email
		if user, err = h.repo.Users().UpdateTx(ctx, tx, user, repository.UpdateByID(user.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not update email address")
		}

		if err := h.repo.Users().InvalidateEmailTx(ctx, tx, user.ID); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not invalidate account email")
		}
		user.EmailValidated = false

		if resp.Token, err = tokens.IssueFor(ctx, tx, user, h.ttl); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create validation token")
		}

		resp.User = user
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "email change transaction failed")
	}

	if resp.Token != nil {
		h.notify(ctx, resp.User, resp.Token)
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// notify delivers the validation link to the new address on a best
// effort basis. The change is already committed; a failed email only
// means the user has to request a fresh token.
func (h *ChangeEmailHandler) notify(ctx context.Context, user *User, token *IdentityValidationToken) {
	body := "Validate your account: /users/email-validation?token=" + token.ID.String()
	if err := h.notifier.Send(ctx, user.Email, "Account verification", body); err != nil {
		h.logger.Warn("failed to send validation email: %v", err)
	}
}
