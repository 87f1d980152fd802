package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/core/port"
	"github.com/bazarhub/auth-service/internal/infra/logger"
	"github.com/bazarhub/auth-service/internal/infra/security"
	"github.com/bazarhub/auth-service/internal/repository"
)

var (
	// ErrInvalidCredentials is returned for both unknown identifiers and wrong
	// passwords, so responses do not leak which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled indicates the account is administratively disabled.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrSessionRevoked indicates the refresh token's session was terminated.
	ErrSessionRevoked = errors.New("session revoked")
)

// AccountLockedError reports a lockout together with its expiry, so callers
// can tell the client when to retry. Lock state takes precedence over
// credential correctness.
type AccountLockedError struct {
	LockedUntil time.Time
}

// Error implements error for AccountLockedError.
func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.LockedUntil.Format(time.RFC3339))
}

// VerificationRequiredError asks the caller to complete an extra ownership
// proof before tokens are issued, listing the channels available to do so.
type VerificationRequiredError struct {
	Reason  string
	Methods []string
}

// Error implements error for VerificationRequiredError.
func (e *VerificationRequiredError) Error() string {
	return fmt.Sprintf("additional verification required: %s", e.Reason)
}

// LoginInput carries one credential-check request.
type LoginInput struct {
	Identifier string
	Password   string
	OTPCode    string
	IP         string
	UserAgent  string
	DeviceInfo string
}

// LoginResult bundles the authenticated user, the token pair, and the device
// session the pair is bound to.
type LoginResult struct {
	User    *domain.User
	Tokens  *security.TokenPair
	Session *domain.UserSession
}

// AuthService implements password authentication, token refresh, logout, and
// in-session password change.
type AuthService struct {
	users     port.UserRepository
	sessions  port.SessionRepository
	tokens    port.TokenRepository
	hasher    port.PasswordHasher
	strength  port.PasswordStrengthValidator
	jwt       *security.TokenManager
	geo       port.GeoResolver
	otp       *OTPService
	suspicion *SuspicionService
	audit     *SecurityService
	events    port.EventPublisher
	email     port.EmailSender
	logger    *zap.Logger
	now       func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	users port.UserRepository,
	sessions port.SessionRepository,
	tokens port.TokenRepository,
	hasher port.PasswordHasher,
	strength port.PasswordStrengthValidator,
	jwtManager *security.TokenManager,
	geo port.GeoResolver,
	otp *OTPService,
	suspicion *SuspicionService,
	audit *SecurityService,
	events port.EventPublisher,
	email port.EmailSender,
	log *zap.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		sessions:  sessions,
		tokens:    tokens,
		hasher:    hasher,
		strength:  strength,
		jwt:       jwtManager,
		geo:       geo,
		otp:       otp,
		suspicion: suspicion,
		audit:     audit,
		events:    events,
		email:     email,
		logger:    log,
		now:       time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AuthService) WithClock(clock func() time.Time) {
	s.now = clock
}

// Login runs the credential check pipeline: identifier lookup, lock check,
// password verification, suspicion scoring, then token and session issuance.
// A locked account is rejected before the password is even compared.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	user, err := s.users.GetByIdentifier(ctx, strings.TrimSpace(input.Identifier))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.audit.LogEvent(ctx, SecurityEventInput{
				EventType: domain.EventLoginFailed,
				Severity:  domain.SeverityLow,
				IP:        input.IP,
				UserAgent: input.UserAgent,
				Details:   map[string]any{"reason": "unknown identifier"},
			})
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if !user.IsActive || user.Status == domain.UserStatusDisabled {
		return nil, ErrAccountDisabled
	}

	now := s.now().UTC()
	if user.IsLocked(now) {
		s.audit.LogEvent(ctx, SecurityEventInput{
			UserID:    &user.ID,
			EventType: domain.EventLoginFailed,
			Severity:  domain.SeverityMedium,
			IP:        input.IP,
			UserAgent: input.UserAgent,
			Details:   map[string]any{"reason": "account locked"},
		})
		return nil, &AccountLockedError{LockedUntil: *user.LockedUntil}
	}

	ok, err := s.hasher.Verify(input.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		locked, err := s.audit.HandleFailedLogin(ctx, user, input.IP, input.UserAgent)
		if err != nil {
			s.logger.Error("failed login bookkeeping failed", zap.Error(err))
		}
		if locked {
			return nil, &AccountLockedError{LockedUntil: now.Add(s.audit.cfg.AccountLockTime)}
		}
		return nil, ErrInvalidCredentials
	}

	verdict := s.suspicion.Evaluate(ctx, user, input.IP, input.UserAgent, "login")
	if verdict.Suspicious {
		s.audit.LogEvent(ctx, SecurityEventInput{
			UserID:    &user.ID,
			EventType: domain.EventSuspiciousActivity,
			Severity:  domain.SeverityHigh,
			IP:        input.IP,
			UserAgent: input.UserAgent,
			Details: map[string]any{
				"reason": verdict.Reason,
				"action": verdict.Action,
			},
		})

		// Only a geo mismatch escalates to a verification challenge; the
		// remaining signals are recorded and the login proceeds.
		if strings.Contains(verdict.Reason, "different country") {
			if input.OTPCode == "" {
				return nil, &VerificationRequiredError{
					Reason:  verdict.Reason,
					Methods: s.verificationMethods(user),
				}
			}
			if err := s.verifyLoginChallenge(ctx, user, input.OTPCode, input.IP); err != nil {
				return nil, err
			}
		}
	}

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now, optionalString(input.IP)); err != nil {
		return nil, fmt.Errorf("record login success: %w", err)
	}
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	user.LastLogin = &now

	pair, err := s.jwt.IssuePair(user.ID, "")
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	session, err := s.upsertSession(ctx, user.ID, pair.SessionKey, input.IP, input.UserAgent, input.DeviceInfo, now)
	if err != nil {
		return nil, err
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    &user.ID,
		EventType: domain.EventLoginSuccess,
		Severity:  domain.SeverityLow,
		IP:        input.IP,
		UserAgent: input.UserAgent,
	})

	return &LoginResult{User: user, Tokens: pair, Session: session}, nil
}

// verifyLoginChallenge redeems a login-purpose OTP sent to either of the
// user's contact channels. A missing code on one channel is retried on the
// other, since lookup misses do not burn attempts.
func (s *AuthService) verifyLoginChallenge(ctx context.Context, user *domain.User, code, ip string) error {
	var lastErr error = ErrOTPNotFound

	if user.Email != "" {
		_, err := s.otp.Verify(ctx, user.Email, code, domain.OTPPurposeLogin, ip)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrOTPNotFound) {
			return err
		}
		lastErr = err
	}

	if user.Phone != nil && *user.Phone != "" {
		_, err := s.otp.Verify(ctx, *user.Phone, code, domain.OTPPurposeLogin, ip)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	return lastErr
}

func (s *AuthService) verificationMethods(user *domain.User) []string {
	var methods []string
	if user.Email != "" && user.EmailVerified {
		methods = append(methods, string(domain.DeliveryChannelEmail))
	}
	if user.Phone != nil && *user.Phone != "" && user.PhoneVerified {
		methods = append(methods, string(domain.DeliveryChannelSMS))
	}
	if len(methods) == 0 && user.Email != "" {
		methods = append(methods, string(domain.DeliveryChannelEmail))
	}
	return methods
}

func (s *AuthService) upsertSession(ctx context.Context, userID, sessionKey, ip, userAgent, deviceInfo string, now time.Time) (*domain.UserSession, error) {
	var location *string
	if s.geo != nil && ip != "" {
		if label, err := s.geo.Locate(ctx, ip); err == nil && label != "" {
			location = &label
		}
	}

	session, err := s.sessions.Upsert(ctx, domain.UserSession{
		ID:         uuid.NewString(),
		UserID:     userID,
		SessionKey: sessionKey,
		IP:         optionalString(ip),
		UserAgent:  optionalString(userAgent),
		DeviceInfo: optionalString(deviceInfo),
		Location:   location,
		CreatedAt:  now,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}

	return session, nil
}

// Refresh exchanges a refresh token for a fresh pair bound to the same
// session. A terminated session cannot be refreshed even with a valid token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*LoginResult, error) {
	claims, err := s.jwt.ParseRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, security.ErrInvalidToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !user.IsActive || user.Status == domain.UserStatusDisabled {
		return nil, ErrAccountDisabled
	}

	now := s.now().UTC()
	if user.IsLocked(now) {
		return nil, &AccountLockedError{LockedUntil: *user.LockedUntil}
	}

	session, err := s.sessions.GetByKey(ctx, user.ID, claims.SessionKey)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionRevoked
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !session.IsActive {
		return nil, ErrSessionRevoked
	}

	pair, err := s.jwt.IssuePair(user.ID, claims.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	if err := s.sessions.Touch(ctx, claims.SessionKey, now); err != nil {
		s.logger.Warn("session touch failed", zap.Error(err))
	}

	return &LoginResult{User: user, Tokens: pair, Session: session}, nil
}

// Logout terminates the caller's current session.
func (s *AuthService) Logout(ctx context.Context, userID, sessionKey, ip string) error {
	if err := s.sessions.TerminateByKey(ctx, userID, sessionKey); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("terminate session: %w", err)
		}
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    &userID,
		EventType: domain.EventLogout,
		Severity:  domain.SeverityLow,
		IP:        ip,
	})

	return nil
}

// LogoutAll terminates every session except the caller's current one and
// reports how many were closed.
func (s *AuthService) LogoutAll(ctx context.Context, userID, currentSessionKey, ip string) (int, error) {
	closed, err := s.sessions.TerminateAllExcept(ctx, userID, currentSessionKey)
	if err != nil {
		return 0, fmt.Errorf("terminate sessions: %w", err)
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    &userID,
		EventType: domain.EventLogoutAll,
		Severity:  domain.SeverityLow,
		IP:        ip,
		Details:   map[string]any{"sessions_closed": closed},
	})

	return closed, nil
}

// ChangePassword verifies the current password, strength-checks and applies
// the new one, and signs out every other session.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, sessionKey, ip, userAgent string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}

	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	inputs := []string{user.Username, user.Email}
	if user.Phone != nil {
		inputs = append(inputs, *user.Phone)
	}
	if err := s.strength.Validate(newPassword, inputs...); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, hash, security.PasswordAlgo, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if _, err := s.tokens.RevokeActivePasswordResets(ctx, user.ID); err != nil {
		s.logger.Warn("reset token revocation failed", zap.Error(err))
	}

	revoked, err := s.sessions.TerminateAllExcept(ctx, user.ID, sessionKey)
	if err != nil {
		s.logger.Warn("session termination after password change failed", zap.Error(err))
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    &user.ID,
		EventType: domain.EventPasswordChanged,
		Severity:  domain.SeverityHigh,
		IP:        ip,
		UserAgent: userAgent,
		Details:   map[string]any{"sessions_revoked": revoked},
	})

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:         uuid.NewString(),
			UserID:          user.ID,
			ChangedAt:       now,
			ChangedBy:       "user",
			SessionsRevoked: revoked,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("password changed publish failed", zap.Error(err))
		}
	}

	if user.Email != "" {
		body := "Your password was just changed. Other sessions were signed out. If this was not you, reset your password immediately."
		if err := s.email.SendSecurityAlert(ctx, user.Email, "Password changed", body); err != nil {
			s.logger.Warn("password change alert email failed",
				zap.String("email", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		}
	}

	return nil
}
