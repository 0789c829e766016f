package identity

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// RegisterAuthRoutes mounts the identity HTTP surface. The literal
// email-validation path registers before the :id routes so the param
// pattern never swallows it.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Login, controller.LoginPost).
		SetName("users.login")

	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("users.register")

	app.Patch(controller.Routes.EmailValidation, controller.EmailValidation).
		SetName("users.email-validation")

	app.Get(controller.Routes.User, controller.UserShow).
		SetName("users.show")
	app.Patch(controller.Routes.User, controller.UserUpdate).
		SetName("users.update")
	app.Delete(controller.Routes.User, controller.UserDelete).
		SetName("users.delete")

	app.Put(controller.Routes.PasswordReset, controller.PasswordResetRequest).
		SetName("pwd-reset.request")
	app.Patch(controller.Routes.PasswordReset, controller.PasswordResetExecute).
		SetName("pwd-reset.execute")
}

type AuthControllerRoutes struct {
	Login           string
	Register        string
	EmailValidation string
	User            string
	PasswordReset   string
}

// DefaultRouteTable declares every served route and its exposure. This
// is the single source the not-found gate and the credential gate
// classify against.
func DefaultRouteTable(routes *AuthControllerRoutes) *RouteTable {
	return NewRouteTable().
		RegisterPublic("POST", routes.Login).
		RegisterPublic("POST", routes.Register).
		RegisterPublic("PATCH", routes.EmailValidation).
		RegisterPublic("PUT", routes.PasswordReset).
		RegisterPublic("PATCH", routes.PasswordReset).
		Register("GET", routes.User).
		Register("PATCH", routes.User).
		Register("DELETE", routes.User)
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Auther       HTTPAuthenticator
	Notifier     Notifier
	TokenTTL     time.Duration
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   defLogger{},
		Notifier: LogNotifier{},
		TokenTTL: DefaultValidationTokenTTL,
		Routes: &AuthControllerRoutes{
			Login:           "/users/login",
			Register:        "/users/register",
			EmailValidation: "/users/email-validation",
			User:            "/users/:id",
			PasswordReset:   "/account/password-reset",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.defaultErrHandler
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in auth controller...")
	}

	return c
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"login" json:"login"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

// LoginPost exchanges credentials for a bearer token. Wrong password,
// unknown email, and not yet validated account all answer the same 403
// so the response never confirms an address.
func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "Invalid request payload",
		})
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	token, err := a.Auther.Login(ctx.Context(), payload.Identifier, payload.Password)
	if err != nil {
		if isCredentialRejection(err) {
			return ctx.JSON(router.StatusForbidden, map[string]string{
				"error": "Invalid credentials or account not validated",
			})
		}
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]string{
		"token": token,
	})
}

// RegistrationCreatePayload is the registration payload
type RegistrationCreatePayload struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Username  string `form:"username" json:"username"`
	Email     string `form:"email" json:"email"`
	Password  string `form:"password" json:"password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("register user parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "Invalid request payload",
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("register user validate payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	var res *RegisterUserResponse

	req := RegisterUserMessage{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Username:  payload.Username,
		Email:     payload.Email,
		Password:  payload.Password,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithTokenTTL(a.TokenTTL).
		WithLogger(a.Logger)

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error", "error", err)

		var richErr *errors.Error
		if errors.As(err, &richErr) {
			switch richErr.Category {
			case errors.CategoryValidation, errors.CategoryBadInput:
				return ctx.JSON(router.StatusBadRequest, map[string]string{
					"error": richErr.Message,
				})
			case errors.CategoryConflict:
				return ctx.JSON(router.StatusConflict, map[string]string{
					"error": "An account with that email already exists",
				})
			}
		}

		return a.ErrorHandler(ctx, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(res.User))
		fmt.Println("============================")
	}

	return ctx.JSON(router.StatusCreated, res.User)
}

// EmailValidation consumes a single use token handed out at
// registration. Any token that cannot flip answers 403 regardless of
// whether it is unknown, expired, or already spent.
func (a *AuthController) EmailValidation(ctx router.Context) error {
	token := ctx.Query("token", "")

	var res *ValidateEmailResponse

	req := ValidateEmailMessage{
		Token: token,
		OnResponse: func(resp *ValidateEmailResponse) {
			res = resp
		},
	}

	validateEmail := NewValidateEmailHandler(a.Repo)

	if err := validateEmail.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("email validation error", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if res == nil || !res.Verified {
		return ctx.JSON(router.StatusForbidden, map[string]string{
			"error": "Invalid or expired validation token",
		})
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"validated": true,
	})
}

func (a *AuthController) UserShow(ctx router.Context) error {
	id := ctx.Param("id")

	user, err := a.Repo.Users().GetByID(ctx.Context(), id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ctx.JSON(router.StatusNotFound, map[string]string{
				"error": "User not found",
			})
		}
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

// UpdateUserPayload carries profile and credential fields; empty fields
// stay untouched. A new email address drops the account back to
// unvalidated and triggers a fresh validation token.
type UpdateUserPayload struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Username  string `form:"username" json:"username"`
	Email     string `form:"email" json:"email"`
	Password  string `form:"password" json:"password"`
}

func (a *AuthController) UserUpdate(ctx router.Context) error {
	id := ctx.Param("id")

	payload := new(UpdateUserPayload)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("update user parse payload", "error", err)
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "Invalid request payload",
		})
	}

	user, err := a.Repo.Users().GetByID(ctx.Context(), id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return ctx.JSON(router.StatusNotFound, map[string]string{
				"error": "User not found",
			})
		}
		return a.ErrorHandler(ctx, err)
	}

	if payload.FirstName != "" {
		user.FirstName = payload.FirstName
	}
	if payload.LastName != "" {
		user.LastName = payload.LastName
	}
	if payload.Username != "" {
		user.Username = payload.Username
	}
	if payload.Password != "" {
		if err := ValidatePassword(payload.Password); err != nil {
			return ctx.JSON(router.StatusBadRequest, map[string]string{
				"error": "Invalid password provided",
			})
		}
		hash, err := HashPassword(payload.Password)
		if err != nil {
			return a.ErrorHandler(ctx, err)
		}
		user.PasswordHash = hash
	}

	updated, err := a.Repo.Users().Update(ctx.Context(), user, repository.UpdateByID(id))
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if payload.Email != "" && payload.Email != updated.Email {
		changeEmail := NewChangeEmailHandler(a.Repo).
			WithNotifier(a.Notifier).
			WithTokenTTL(a.TokenTTL).
			WithLogger(a.Logger)

		err := changeEmail.Execute(ctx.Context(), ChangeEmailMessage{
			UserID: id,
			Email:  payload.Email,
			OnResponse: func(resp *ChangeEmailResponse) {
				updated = resp.User
			},
		})
		if err != nil {
			var richErr *errors.Error
			if errors.As(err, &richErr) {
				switch richErr.Category {
				case errors.CategoryValidation, errors.CategoryBadInput:
					return ctx.JSON(router.StatusBadRequest, map[string]string{
						"error": richErr.Message,
					})
				case errors.CategoryConflict:
					return ctx.JSON(router.StatusConflict, map[string]string{
						"error": richErr.Message,
					})
				}
			}
			return a.ErrorHandler(ctx, err)
		}
	}

	return ctx.JSON(router.StatusOK, updated)
}

func (a *AuthController) UserDelete(ctx router.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return ctx.JSON(router.StatusNotFound, map[string]string{
			"error": "User not found",
		})
	}

	if err := a.Repo.Users().Remove(ctx.Context(), id); err != nil {
		if repository.IsRecordNotFound(err) {
			return ctx.JSON(router.StatusNotFound, map[string]string{
				"error": "User not found",
			})
		}
		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"deleted": true,
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

// PasswordResetRequest always answers 202 for well formed emails. The
// response is identical whether the address is registered or not.
func (a *AuthController) PasswordResetRequest(ctx router.Context) error {
	payload := &PasswordResetRequestPayload{
		Email: ctx.Query("email", ""),
	}

	if payload.Email == "" {
		if err := ctx.Bind(payload); err != nil {
			a.Logger.Error("password reset parse payload", "error", err)
			return ctx.JSON(router.StatusBadRequest, map[string]string{
				"error": "Invalid request payload",
			})
		}
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
	}

	req := InitializePasswordResetMessage{
		Email: payload.Email,
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Repo).
		WithNotifier(a.Notifier).
		WithTokenTTL(a.TokenTTL).
		WithLogger(a.Logger)

	if err := initPwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password reset init error", "error", err)

		var richErr *errors.Error
		if errors.As(err, &richErr) {
			switch richErr.Category {
			case errors.CategoryValidation, errors.CategoryBadInput:
				return ctx.JSON(router.StatusBadRequest, map[string]string{
					"error": richErr.Message,
				})
			}
		}

		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusAccepted, map[string]string{
		"message": "If the account exists, a reset token has been sent",
	})
}

// PasswordResetExecutePayload holds values to finalize a reset
type PasswordResetExecutePayload struct {
	Token    string `form:"token" json:"token"`
	Password string `form:"password" json:"password"`
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	payload := &PasswordResetExecutePayload{
		Token:    ctx.Query("token", ""),
		Password: ctx.Query("password", ""),
	}

	if payload.Token == "" && payload.Password == "" {
		if err := ctx.Bind(payload); err != nil {
			a.Logger.Error("password reset parse payload", "error", err)
			return ctx.JSON(router.StatusBadRequest, map[string]string{
				"error": "Invalid request payload",
			})
		}
	}

	req := FinalizePasswordResetMessage{
		Token:    payload.Token,
		Password: payload.Password,
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Repo).
		WithLogger(a.Logger)

	if err := finalizePwdReset.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password reset finalize error", "error", err)

		var richErr *errors.Error
		if errors.As(err, &richErr) {
			switch richErr.Category {
			case errors.CategoryValidation, errors.CategoryBadInput, errors.CategoryAuth:
				return ctx.JSON(router.StatusBadRequest, map[string]string{
					"error": richErr.Message,
				})
			}
		}

		return a.ErrorHandler(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"reset": true,
	})
}

func (a *AuthController) defaultErrHandler(c router.Context, err error) error {
	a.Logger.Error("controller error", "error", err)
	return c.JSON(router.StatusInternalServerError, map[string]string{
		"error": "Internal server error",
	})
}
