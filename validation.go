package identity

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

var (
	passwordDigit   = regexp.MustCompile(`[0-9]`)
	passwordUpper   = regexp.MustCompile(`[A-Z]`)
	passwordLower   = regexp.MustCompile(`[a-z]`)
	passwordSpecial = regexp.MustCompile(`[!@#$%^&*_]`)
)

// ValidateEmail checks the address format. Deliverability is the
// notifier's problem, not ours.
func ValidateEmail(email string) error {
	return validation.Validate(email,
		validation.Required,
		is.Email,
	)
}

// ValidatePassword enforces the account password policy: 8 to 16
// characters with at least one digit, one upper, one lower, and one
// special character.
func ValidatePassword(password string) error {
	return validation.Validate(password,
		validation.Required,
		validation.Length(8, 16),
		validation.Match(passwordDigit).Error("must contain a digit"),
		validation.Match(passwordUpper).Error("must contain an uppercase letter"),
		validation.Match(passwordLower).Error("must contain a lowercase letter"),
		validation.Match(passwordSpecial).Error("must contain a special character"),
	)
}
