package identity

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found")

// ErrNoEmptyString guards against hashing empty passwords
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrTokenExpired is returned for credentials with a valid signature
// whose expiration has passed.
var ErrTokenExpired = goerrors.New("authentication token is expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned when the credential cannot be parsed or
// its signature does not verify.
var ErrTokenMalformed = goerrors.New("authentication token is malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword covers both unknown identifiers and wrong
// passwords so login failures never reveal which one it was.
var ErrMismatchedHashAndPassword = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode("INVALID_CREDENTIALS").
	WithCode(goerrors.CodeForbidden)

// ErrIdentityNotValidated blocks login until the account's email has
// been verified.
var ErrIdentityNotValidated = goerrors.New("account has not been validated", goerrors.CategoryAuth).
	WithTextCode("ACCOUNT_NOT_VALIDATED").
	WithCode(goerrors.CodeForbidden)

// ErrInvalidExpiration rejects validation tokens created with an
// expiration at or before the current time.
var ErrInvalidExpiration = goerrors.New("expiration time must be after now", goerrors.CategoryBadInput).
	WithTextCode("INVALID_EXPIRATION")

// isCredentialRejection reports whether a login failure should surface
// as a flat 403. Unknown identifier, wrong password, and unvalidated
// account all qualify; anything else is a server fault.
func isCredentialRejection(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrIdentityNotFound) {
		return true
	}

	if goerrors.Is(err, ErrMismatchedHashAndPassword) || goerrors.Is(err, ErrIdentityNotValidated) {
		return true
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == goerrors.CategoryAuth && richErr.Code == goerrors.CodeForbidden
	}

	return false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
