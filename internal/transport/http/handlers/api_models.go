package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/transport/http/middleware"
	"github.com/bazarhub/auth-service/internal/usecase"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with the request's trace ID.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID            string            `json:"id"`
	Username      string            `json:"username"`
	Email         string            `json:"email"`
	Phone         *string           `json:"phone,omitempty"`
	Status        domain.UserStatus `json:"status"`
	EmailVerified bool              `json:"email_verified"`
	PhoneVerified bool              `json:"phone_verified"`
	RegisteredAt  time.Time         `json:"registered_at"`
	LastLogin     *time.Time        `json:"last_login,omitempty"`
}

func newUserSummary(u *domain.User) UserSummary {
	return UserSummary{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Phone:         u.Phone,
		Status:        u.Status,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		RegisteredAt:  u.RegisteredAt,
		LastLogin:     u.LastLogin,
	}
}

// SessionSummary provides a compact view of the device session bound to a
// token pair.
type SessionSummary struct {
	ID           string    `json:"id"`
	IP           *string   `json:"ip,omitempty"`
	UserAgent    *string   `json:"user_agent,omitempty"`
	DeviceInfo   *string   `json:"device_info,omitempty"`
	Location     *string   `json:"location,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func newSessionSummary(s *domain.UserSession) SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		IP:           s.IP,
		UserAgent:    s.UserAgent,
		DeviceInfo:   s.DeviceInfo,
		Location:     s.Location,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
}

// TokenPairResponse carries a freshly issued access and refresh token.
type TokenPairResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

func newTokenPairResponse(result *usecase.LoginResult, now time.Time) TokenPairResponse {
	expiresIn := int(result.Tokens.AccessExpiresAt.Sub(now).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}

	return TokenPairResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
	}
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
	OTPCode    string `json:"otp_code"`
	DeviceInfo string `json:"device_info"`
}

// LoginResponse describes the response returned for a successful login.
type LoginResponse struct {
	TokenPairResponse
	User    UserSummary    `json:"user"`
	Session SessionSummary `json:"session"`
}

// VerificationRequiredResponse is returned when a login was halted pending an
// additional ownership proof.
type VerificationRequiredResponse struct {
	Message string   `json:"message"`
	Reason  string   `json:"reason"`
	Methods []string `json:"methods"`
}

// AccountLockedResponse reports a temporarily locked account.
type AccountLockedResponse struct {
	Error       string    `json:"error"`
	LockedUntil time.Time `json:"locked_until"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// RefreshRequest represents the payload to refresh an access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// ChangePasswordRequest carries an in-session password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// RegisterRequest defines the payload for account creation.
type RegisterRequest struct {
	Username   string `json:"username" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Phone      string `json:"phone"`
	Password   string `json:"password" binding:"required"`
	OTPCode    string `json:"otp_code"`
	DeviceInfo string `json:"device_info"`
}

// RegisterResponse reports the created account and its signed-in session.
type RegisterResponse struct {
	TokenPairResponse
	User                  UserSummary    `json:"user"`
	Session               SessionSummary `json:"session"`
	PhoneVerified         bool           `json:"phone_verified"`
	EmailVerificationSent bool           `json:"email_verification_sent"`
}

// SendOTPRequest asks for a one-time code to be dispatched.
type SendOTPRequest struct {
	Contact string `json:"contact" binding:"required"`
	Channel string `json:"channel" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`
}

// SendOTPResponse confirms a dispatched code.
type SendOTPResponse struct {
	MaskedContact string `json:"masked_contact"`
	ExpiresIn     int    `json:"expires_in"`
}

// VerifyOTPRequest redeems a one-time code.
type VerifyOTPRequest struct {
	Contact string `json:"contact" binding:"required"`
	Code    string `json:"code" binding:"required"`
	Purpose string `json:"purpose" binding:"required"`
}

// InvalidCodeResponse reports a rejected code and the attempts left.
type InvalidCodeResponse struct {
	Error             string `json:"error"`
	AttemptsRemaining int    `json:"attempts_remaining"`
	TraceID           string `json:"trace_id,omitempty"`
}

// ResetRequestRequest starts a password reset for the given contact.
type ResetRequestRequest struct {
	Contact string `json:"contact" binding:"required"`
}

// ResetRequestResponse confirms the reset code dispatch.
type ResetRequestResponse struct {
	MaskedContact string `json:"masked_contact"`
	Channel       string `json:"channel"`
	ExpiresIn     int    `json:"expires_in"`
}

// ResetVerifyRequest proves possession of the reset code.
type ResetVerifyRequest struct {
	Contact string `json:"contact" binding:"required"`
	Code    string `json:"code" binding:"required"`
}

// ResetVerifyResponse returns the short-lived reset token.
type ResetVerifyResponse struct {
	ResetToken string `json:"reset_token"`
	ExpiresIn  int    `json:"expires_in"`
}

// ResetConfirmRequest applies the new password using the token issued by
// the verify step.
type ResetConfirmRequest struct {
	Contact     string `json:"contact" binding:"required"`
	ResetToken  string `json:"reset_token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// AdminLockRequest applies an explicit lock to an account.
type AdminLockRequest struct {
	UserID          string `json:"user_id" binding:"required"`
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason" binding:"required"`
}

// AdminLockResponse reports the applied lock expiry.
type AdminLockResponse struct {
	Message     string `json:"message"`
	LockedUntil string `json:"locked_until"`
}

// AdminUnlockRequest clears an account's lock.
type AdminUnlockRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// AdminBlockIPRequest flags an address.
type AdminBlockIPRequest struct {
	IP              string `json:"ip" binding:"required"`
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason" binding:"required"`
}

// AdminIPStatusResponse reports an address's recent failures and block state.
type AdminIPStatusResponse struct {
	IP             string `json:"ip"`
	RecentFailures int    `json:"recent_failures"`
	Blocked        bool   `json:"blocked"`
}

// SendPhoneVerificationResponse confirms the dispatched phone code.
type SendPhoneVerificationResponse struct {
	MaskedContact string `json:"masked_contact"`
	ExpiresIn     int    `json:"expires_in"`
}

// ConfirmPhoneRequest redeems a phone verification code.
type ConfirmPhoneRequest struct {
	Code string `json:"code" binding:"required"`
}

// SendEmailVerificationRequest optionally targets a new address.
type SendEmailVerificationRequest struct {
	NewEmail string `json:"new_email"`
}

// SessionEntry is one device in the session list.
type SessionEntry struct {
	SessionSummary
	IsCurrent bool `json:"is_current"`
}

// SessionListResponse lists the caller's device sessions.
type SessionListResponse struct {
	Sessions []SessionEntry `json:"sessions"`
}

// LogoutAllResponse reports how many sessions were closed.
type LogoutAllResponse struct {
	SessionsClosed int `json:"sessions_closed"`
}

// SecurityEventView is one audit entry in the activity summary.
type SecurityEventView struct {
	ID        string         `json:"id"`
	EventType string         `json:"event_type"`
	Severity  string         `json:"severity"`
	IP        *string        `json:"ip,omitempty"`
	UserAgent *string        `json:"user_agent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SecuritySummaryResponse aggregates recent audit activity for the caller.
type SecuritySummaryResponse struct {
	PeriodDays         int                 `json:"period_days"`
	TotalEvents        int                 `json:"total_events"`
	FailedLogins       int                 `json:"failed_logins"`
	SuccessfulLogins   int                 `json:"successful_logins"`
	OTPFailures        int                 `json:"otp_failures"`
	AccountLocks       int                 `json:"account_locks"`
	UniqueIPs          int                 `json:"unique_ips"`
	HighSeverityEvents int                 `json:"high_severity_events"`
	RecentEvents       []SecurityEventView `json:"recent_events"`
}

func newSecuritySummaryResponse(s *domain.SecuritySummary) SecuritySummaryResponse {
	events := make([]SecurityEventView, 0, len(s.RecentEvents))
	for _, e := range s.RecentEvents {
		events = append(events, SecurityEventView{
			ID:        e.ID,
			EventType: string(e.EventType),
			Severity:  string(e.Severity),
			IP:        e.IP,
			UserAgent: e.UserAgent,
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		})
	}

	return SecuritySummaryResponse{
		PeriodDays:         s.PeriodDays,
		TotalEvents:        s.TotalEvents,
		FailedLogins:       s.FailedLogins,
		SuccessfulLogins:   s.SuccessfulLogins,
		OTPFailures:        s.OTPFailures,
		AccountLocks:       s.AccountLocks,
		UniqueIPs:          s.UniqueIPs,
		HighSeverityEvents: s.HighSeverityEvents,
		RecentEvents:       events,
	}
}
