package domain

import "time"

// Token lifetimes for out-of-band verification flows.
const (
	EmailVerificationTokenLifetime = 24 * time.Hour
)

// PasswordResetToken represents a single-use password reset token hash.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	IP        *string
	UserAgent *string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	RevokedAt *time.Time
}

// IsUsable reports whether the token can still redeem a reset at now.
func (t *PasswordResetToken) IsUsable(now time.Time) bool {
	return t.UsedAt == nil && t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// EmailVerificationToken captures a pending email ownership proof. The token
// column stores the raw value so the verification link can be re-sent.
type EmailVerificationToken struct {
	ID        string
	UserID    string
	Token     string
	NewEmail  *string
	IP        *string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// IsUsable reports whether the token can still verify an address at now.
func (t *EmailVerificationToken) IsUsable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}
