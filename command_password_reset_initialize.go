package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

type InitializePasswordResetResponse struct {
	Token *IdentityValidationToken
	Found bool
}

// InitializePasswordResetHandler issues a reset token for a known
// email. Unknown emails complete without error and without a token so
// the HTTP surface can answer identically either way; the response
// body never discloses whether an address is registered.
type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier Notifier
	ttl      time.Duration
	clock    Clock
	logger   Logger
}

func NewInitializePasswordResetHandler(repo RepositoryManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		notifier: LogNotifier{},
		ttl:      DefaultValidationTokenTTL,
		clock:    systemClock{},
		logger:   defLogger{},
	}
}

func (h *InitializePasswordResetHandler) WithNotifier(notifier Notifier) *InitializePasswordResetHandler {
	if notifier != nil {
		h.notifier = notifier
	}
	return h
}

func (h *InitializePasswordResetHandler) WithTokenTTL(ttl time.Duration) *InitializePasswordResetHandler {
	if ttl > 0 {
		h.ttl = ttl
	}
	return h
}

func (h *InitializePasswordResetHandler) WithClock(clock Clock) *InitializePasswordResetHandler {
	if clock != nil {
		h.clock = clock
	}
	return h
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := ValidateEmail(event.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email provided").
			WithTextCode("INVALID_EMAIL")
	}

	var user *User
	tokens := NewTokenManager(h.repo.ValidationTokens(), h.repo.Users()).
		WithClock(h.clock).
		WithLogger(h.logger)

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().GetByIdentifierTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for password reset")
		}

		resp.Found = true

		if resp.Token, err = tokens.IssueFor(ctx, tx, user, h.ttl); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if resp.Found {
		if err := h.notify(ctx, user, resp.Token); err != nil {
			return err
		}
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}

// notify delivers the reset link. Unlike registration there is no
// degraded mode here: the caller asked for this email, so a failed
// delivery must surface instead of answering as if it went out.
func (h *InitializePasswordResetHandler) notify(ctx context.Context, user *User, token *IdentityValidationToken) error {
	body := "Reset your password: /account/password-reset?token=" + token.ID.String()
	if err := h.notifier.Send(ctx, user.Email, "Password reset", body); err != nil {
		h.logger.Error("failed to send password reset email: %v", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to deliver password reset email").
			WithTextCode("NOTIFICATION_FAILED")
	}
	return nil
}
