package identity

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// DefaultValidationTokenTTL bounds how long a freshly issued identity
// validation token stays usable.
const DefaultValidationTokenTTL = time.Hour

type RegisterUserMessage struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	UseHashid  bool
	OnResponse func(resp *RegisterUserResponse)
}

func (e RegisterUserMessage) Type() string { return "user.register" }

type RegisterUserResponse struct {
	User  *User
	Token *IdentityValidationToken
}

// RegisterUserHandler creates the account and its first validation
// token in one transaction: an account never exists without a pending
// way to prove its email. Notification delivery happens after commit
// and never rolls the registration back.
type RegisterUserHandler struct {
	repo     RepositoryManager
	notifier Notifier
	ttl      time.Duration
	clock    Clock
	logger   Logger
}

func NewRegisterUserHandler(repo RepositoryManager) *RegisterUserHandler {
	return &RegisterUserHandler{
		repo:     repo,
		notifier: LogNotifier{},
		ttl:      DefaultValidationTokenTTL,
		clock:    systemClock{},
		logger:   defLogger{},
	}
}

func (h *RegisterUserHandler) WithNotifier(notifier Notifier) *RegisterUserHandler {
	if notifier != nil {
		h.notifier = notifier
	}
	return h
}

func (h *RegisterUserHandler) WithTokenTTL(ttl time.Duration) *RegisterUserHandler {
	if ttl > 0 {
		h.ttl = ttl
	}
	return h
}

func (h *RegisterUserHandler) WithClock(clock Clock) *RegisterUserHandler {
	if clock != nil {
		h.clock = clock
	}
	return h
}

func (h *RegisterUserHandler) WithLogger(logger Logger) *RegisterUserHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) error {
	user := &User{}
	token := &IdentityValidationToken{}
	tokens := NewTokenManager(h.repo.ValidationTokens(), h.repo.Users()).
		WithClock(h.clock).
		WithLogger(h.logger)

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := ValidateEmail(event.Email); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid email provided").
			WithTextCode("INVALID_EMAIL")
	}

	if err := ValidatePassword(event.Password); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided").
			WithTextCode("INVALID_PASSWORD")
	}

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.PasswordHash = hash
		user.Email = event.Email
		user.FirstName = event.FirstName
		user.LastName = event.LastName
		user.Username = getUsername(event.Username, event.Email)
		if event.UseHashid {
			if id, err := hashid.NewUUID(event.Email); err == nil {
				user.ID = id
			}
		}

		if user, err = h.repo.Users().CreateTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		if token, err = tokens.IssueFor(ctx, tx, user, h.ttl); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create validation token")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	h.notify(ctx, user, token)

	if event.OnResponse != nil {
		event.OnResponse(&RegisterUserResponse{User: user, Token: token})
	}

	return nil
}

// notify delivers the validation link on a best effort basis. The
// account already exists at this point; a failed email only means the
// user has to request a fresh token.
func (h *RegisterUserHandler) notify(ctx context.Context, user *User, token *IdentityValidationToken) {
	body := "Validate your account: /users/email-validation?token=" + token.ID.String()
	if err := h.notifier.Send(ctx, user.Email, "Account verification", body); err != nil {
		h.logger.Warn("failed to send validation email: %v", err)
	}
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}

	if strings.Contains(email, "@") {
		username = strings.Split(email, "@")[0]
	}

	return username
}
