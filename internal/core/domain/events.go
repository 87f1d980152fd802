package domain

import "time"

// UserRegisteredEvent represents the payload for auth.user.registered messages.
type UserRegisteredEvent struct {
	EventID       string
	UserID        string
	Username      string
	Email         *string
	Phone         *string
	PhoneVerified bool
	RegisteredAt  time.Time
	Metadata      map[string]any
}

// SecurityEventRecorded represents the payload for auth.security.event messages.
// Every audit row written to the security log is fanned out on this topic.
type SecurityEventRecorded struct {
	EventID    string
	UserID     *string
	EventType  SecurityEventType
	Severity   SecuritySeverity
	IPAddress  *string
	UserAgent  *string
	Details    map[string]any
	RecordedAt time.Time
}

// AccountLockedEvent represents the payload for auth.account.locked messages.
type AccountLockedEvent struct {
	EventID        string
	UserID         string
	Username       string
	FailedAttempts int
	LockedAt       time.Time
	LockedUntil    time.Time
	IPAddress      *string
	Metadata       map[string]any
}

// PasswordChangedEvent represents the payload for auth.user.password.changed messages.
type PasswordChangedEvent struct {
	EventID         string
	UserID          string
	ChangedAt       time.Time
	ChangedBy       string
	SessionsRevoked int
	Metadata        map[string]any
}
