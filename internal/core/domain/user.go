package domain

import "time"

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusPending  UserStatus = "pending"
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// Brute-force lockout policy applied to password authentication.
const (
	MaxFailedLoginAttempts = 3
	AccountLockDuration    = 30 * time.Minute
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID                  string
	Username            string
	Email               string
	Phone               *string
	PasswordHash        string
	PasswordAlgo        string
	Status              UserStatus
	IsActive            bool
	EmailVerified       bool
	PhoneVerified       bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginIP         *string
	RegisteredAt        time.Time
	LastLogin           *time.Time
	LastPasswordChange  time.Time
}

// IsLocked reports whether the account lockout window is still open at now.
// An expired LockedUntil no longer counts as locked even before the row is
// cleaned up.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}
