package types

import (
	"time"

	"github.com/google/uuid"
)

// User statuses as stored in the users table.
const (
	UserStatusActive   = "Active"
	UserStatusDisabled = "Disabled"
)

// User represents an account in the system.
// It contains identity, profile, and audit metadata.
type User struct {
	// ID is the unique identifier of the user, assigned by the database
	// at creation time.
	ID uuid.UUID `json:"id" db:"user_id"`

	// Username is the unique login name chosen by the user.
	Username string `json:"username" db:"username"`

	// Email is the user's email address. Unique when present.
	Email string `json:"email" db:"email"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Status is the account status (e.g. "Active", "Disabled").
	Status string `json:"status" db:"status"`

	// Credit is the user's credit score on the trading platform.
	Credit int `json:"credit" db:"credit"`

	// IsStaff marks platform staff accounts.
	IsStaff bool `json:"is_staff" db:"is_staff"`

	// IsSuperAdmin marks the designated super-administrator account.
	IsSuperAdmin bool `json:"is_super_admin" db:"is_super_admin"`

	// IsVerified reports whether the user's email has been verified.
	IsVerified bool `json:"is_verified" db:"is_verified"`

	// Major is the user's declared major, if any.
	Major string `json:"major,omitempty" db:"major"`

	// Phone is the user's phone number, if any.
	Phone string `json:"phone,omitempty" db:"phone_number"`

	// AvatarURL points at the user's avatar object, if uploaded.
	AvatarURL string `json:"avatar_url,omitempty" db:"avatar_url"`

	// JoinedAt is the timestamp when the account was created,
	// assigned by the database.
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
