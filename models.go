package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName      string     `bun:"first_name" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name" json:"last_name,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	EmailValidated bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IdentityValidationToken is a single use token proving possession of an
// out of band channel. It references its owner by foreign key; the owner
// is resolved through the Users repository when the token is presented.
//
// Invariants: Expiration is immutable after creation, Verified flips
// false to true exactly once, and an expired or consumed token never
// satisfies another verification request.
type IdentityValidationToken struct {
	bun.BaseModel `bun:"table:identity_validation_tokens,alias:ivt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Expiration    time.Time  `bun:"expiration,notnull" json:"expiration,omitempty"`
	Verified      bool       `bun:"verified,notnull,default:false" json:"verified,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// IsExpired reports whether the token's expiration has passed.
func (t *IdentityValidationToken) IsExpired(now time.Time) bool {
	return !t.Expiration.After(now)
}

// Usable reports whether the token can still satisfy a verification
// request: it exists, was never consumed, and has not expired.
func (t *IdentityValidationToken) Usable(now time.Time) bool {
	return t != nil && !t.Verified && !t.IsExpired(now)
}
