package domain

import "time"

// SecurityEventType enumerates the auditable events the platform records.
type SecurityEventType string

const (
	EventUserRegistered       SecurityEventType = "user_registered"
	EventLoginSuccess         SecurityEventType = "login_success"
	EventLoginFailed          SecurityEventType = "login_failed"
	EventLoginLocked          SecurityEventType = "login_locked"
	EventAccountUnlocked      SecurityEventType = "account_unlocked"
	EventLogout               SecurityEventType = "logout"
	EventLogoutAll            SecurityEventType = "logout_all"
	EventRateLimitExceeded    SecurityEventType = "rate_limit_exceeded"
	EventOTPSent              SecurityEventType = "otp_sent"
	EventOTPVerified          SecurityEventType = "otp_verified"
	EventOTPFailed            SecurityEventType = "otp_failed"
	EventPasswordResetRequest SecurityEventType = "password_reset_request"
	EventPasswordResetSuccess SecurityEventType = "password_reset_success"
	EventPasswordChanged      SecurityEventType = "password_changed"
	EventEmailVerified        SecurityEventType = "email_verified"
	EventPhoneVerified        SecurityEventType = "phone_verified"
	EventSessionTerminated    SecurityEventType = "session_terminated"
	EventIPBlocked            SecurityEventType = "ip_blocked"
	EventSuspiciousActivity   SecurityEventType = "suspicious_activity"
)

// SecuritySeverity ranks events for alerting and summary reporting.
type SecuritySeverity string

const (
	SeverityLow      SecuritySeverity = "low"
	SeverityMedium   SecuritySeverity = "medium"
	SeverityHigh     SecuritySeverity = "high"
	SeverityCritical SecuritySeverity = "critical"
)

// SecurityLog is one append-only audit record. Rows are never updated after
// insertion; retention cleanup is the only deletion path.
type SecurityLog struct {
	ID        string
	UserID    *string
	EventType SecurityEventType
	Severity  SecuritySeverity
	IP        *string
	UserAgent *string
	Details   map[string]any
	CreatedAt time.Time
}

// SecuritySummary aggregates recent audit activity for one user.
type SecuritySummary struct {
	PeriodDays         int
	TotalEvents        int
	FailedLogins       int
	SuccessfulLogins   int
	OTPFailures        int
	AccountLocks       int
	UniqueIPs          int
	HighSeverityEvents int
	RecentEvents       []SecurityLog
}
