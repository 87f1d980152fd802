package domain

import "time"

// UserSession tracks one authenticated device. The session key is the
// identifier embedded in the refresh token, so a user re-authenticating from
// the same device upserts the existing row instead of accumulating new ones.
type UserSession struct {
	ID           string
	UserID       string
	SessionKey   string
	IP           *string
	UserAgent    *string
	DeviceInfo   *string
	Location     *string
	IsActive     bool
	CreatedAt    time.Time
	LastActivity time.Time
}
