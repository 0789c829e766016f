package identity

import (
	"errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt work factor used when none is
// configured. Raising it slows every login; lowering it weakens
// stored hashes.
const DefaultHashCost = 14

// PasswordHasher hashes and verifies account passwords at a fixed
// bcrypt work factor.
type PasswordHasher struct {
	cost int
}

type PasswordHasherOption func(*PasswordHasher) *PasswordHasher

func NewPasswordHasher(opts ...PasswordHasherOption) *PasswordHasher {
	h := &PasswordHasher{cost: DefaultHashCost}
	for _, opt := range opts {
		if opt != nil {
			h = opt(h)
		}
	}
	return h
}

// WithHashCost overrides the work factor. Values outside bcrypt's
// supported range are ignored.
func WithHashCost(cost int) PasswordHasherOption {
	return func(h *PasswordHasher) *PasswordHasher {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			h.cost = cost
		}
		return h
	}
}

// HashPassword generates a hash for the given cleartext password.
func (h *PasswordHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// ComparePasswordAndHash validates the given cleartext password
// against a stored hash. A mismatch reports the uniform credential
// sentinel so callers never leak which part failed.
func (h *PasswordHasher) ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPasswordHash returns the hash of a throwaway password no one
// knows. Used to keep password columns non-empty for accounts that
// cannot log in with a password yet.
func (h *PasswordHasher) RandomPasswordHash() string {
	hash, err := h.HashPassword(uuid.NewString())
	if err != nil {
		return h.RandomPasswordHash()
	}
	return hash
}

var defaultHasher = NewPasswordHasher()

// HashPassword hashes with the default work factor.
func HashPassword(password string) (string, error) {
	return defaultHasher.HashPassword(password)
}

// ComparePasswordAndHash verifies against the default hasher.
func ComparePasswordAndHash(password, hash string) error {
	return defaultHasher.ComparePasswordAndHash(password, hash)
}

func RandomPasswordHash() string {
	return defaultHasher.RandomPasswordHash()
}
