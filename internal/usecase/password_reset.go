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

const passwordResetTokenLifetime = 15 * time.Minute

// ErrResetTokenInvalid covers unknown, expired, revoked, and already-used
// reset tokens.
var ErrResetTokenInvalid = errors.New("invalid or expired reset token")

// ResetRequestResult reports where the reset code was dispatched.
type ResetRequestResult struct {
	MaskedContact string
	Channel       domain.DeliveryChannel
	ExpiresIn     time.Duration
}

// PasswordResetService drives the three-step contact → code → new-password
// reset flow. Step two proves code possession without consuming the code and
// issues a short-lived reset token; step three redeems the code and applies
// the new password.
type PasswordResetService struct {
	users    port.UserRepository
	tokens   port.TokenRepository
	sessions port.SessionRepository
	otp      *OTPService
	hasher   port.PasswordHasher
	strength port.PasswordStrengthValidator
	events   port.EventPublisher
	email    port.EmailSender
	audit    *SecurityService
	logger   *zap.Logger
	now      func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(
	users port.UserRepository,
	tokens port.TokenRepository,
	sessions port.SessionRepository,
	otp *OTPService,
	hasher port.PasswordHasher,
	strength port.PasswordStrengthValidator,
	events port.EventPublisher,
	email port.EmailSender,
	audit *SecurityService,
	log *zap.Logger,
) *PasswordResetService {
	return &PasswordResetService{
		users:    users,
		tokens:   tokens,
		sessions: sessions,
		otp:      otp,
		hasher:   hasher,
		strength: strength,
		events:   events,
		email:    email,
		audit:    audit,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	s.now = clock
}

// Request dispatches a reset code to the contact. An unknown contact is
// reported to the caller as ErrUserNotFound.
func (s *PasswordResetService) Request(ctx context.Context, contact, ip, userAgent string) (*ResetRequestResult, error) {
	user, channel, err := s.findByContact(ctx, contact)
	if err != nil {
		return nil, err
	}

	sent, err := s.otp.Send(ctx, SendOTPInput{
		Contact: contact,
		Channel: channel,
		Purpose: domain.OTPPurposePasswordReset,
		UserID:  &user.ID,
		IP:      ip,
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    &user.ID,
		EventType: domain.EventPasswordResetRequest,
		Severity:  domain.SeverityMedium,
		IP:        ip,
		UserAgent: userAgent,
		Details:   map[string]any{"contact": logger.MaskContact(contact)},
	})

	return &ResetRequestResult{
		MaskedContact: sent.MaskedContact,
		Channel:       channel,
		ExpiresIn:     sent.ExpiresIn,
	}, nil
}

// VerifyCode checks the reset code without redeeming it and issues a reset
// token bound to the requesting IP, so the final step can be correlated with
// the verified one. Wrong codes burn OTP attempts as usual.
func (s *PasswordResetService) VerifyCode(ctx context.Context, contact, code, ip, userAgent string) (string, error) {
	user, _, err := s.findByContact(ctx, contact)
	if err != nil {
		return "", err
	}

	if _, err := s.otp.Check(ctx, contact, code, domain.OTPPurposePasswordReset, ip); err != nil {
		return "", err
	}

	token, err := security.GenerateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	if _, err := s.tokens.RevokeActivePasswordResets(ctx, user.ID); err != nil {
		return "", fmt.Errorf("revoke prior reset tokens: %w", err)
	}

	now := s.now().UTC()
	record := domain.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: security.HashToken(token),
		IP:        optionalString(ip),
		UserAgent: optionalString(userAgent),
		CreatedAt: now,
		ExpiresAt: now.Add(passwordResetTokenLifetime),
	}

	if err := s.tokens.CreatePasswordReset(ctx, record); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	return token, nil
}

// Confirm redeems the reset token issued by VerifyCode and applies the new
// password. The new password is strength-checked against the user's own
// identifiers, every other session is terminated, and a security alert goes
// out.
func (s *PasswordResetService) Confirm(ctx context.Context, contact, resetToken, newPassword, ip, userAgent string) error {
	user, _, err := s.findByContact(ctx, contact)
	if err != nil {
		return err
	}

	// Strength is checked before the token is redeemed so a rejected password
	// does not burn the single-use token.
	if err := s.strength.Validate(newPassword, s.userInputs(user)...); err != nil {
		return err
	}

	record, err := s.tokens.GetPasswordResetByHash(ctx, security.HashToken(resetToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("load reset token: %w", err)
	}

	now := s.now().UTC()
	if record.UserID != user.ID || !record.IsUsable(now) {
		return ErrResetTokenInvalid
	}

	// Conditional consume: a concurrent confirm that won the race leaves no
	// row to update, and the loser sees the token as spent.
	if err := s.tokens.ConsumePasswordReset(ctx, record.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, hash, security.PasswordAlgo, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	// The verified code stays active after the peek in VerifyCode; retire it
	// so it cannot mint another token for the old password's account state.
	if err := s.otp.Invalidate(ctx, contact, domain.OTPPurposePasswordReset); err != nil {
		s.logger.Warn("reset code invalidation failed", zap.Error(err))
	}

	// The reset proves control of the contact channel, so the failure
	// counter restarts without touching any active lock.
	if err := s.users.ResetFailedAttempts(ctx, user.ID); err != nil {
		s.logger.Warn("reset failed attempts failed", zap.Error(err))
	}

	if _, err := s.tokens.RevokeActivePasswordResets(ctx, user.ID); err != nil {
		s.logger.Warn("reset token revocation failed", zap.Error(err))
	}

	revoked, err := s.sessions.TerminateAllExcept(ctx, user.ID, "")
	if err != nil {
		s.logger.Warn("session termination after reset failed", zap.Error(err))
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    &user.ID,
		EventType: domain.EventPasswordResetSuccess,
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
			ChangedBy:       "password_reset",
			SessionsRevoked: revoked,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("password changed publish failed", zap.Error(err))
		}
	}

	if user.Email != "" {
		body := "Your password was just reset. All other sessions were signed out. If this was not you, contact support immediately."
		if err := s.email.SendSecurityAlert(ctx, user.Email, "Password reset", body); err != nil {
			s.logger.Warn("reset alert email failed",
				zap.String("email", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		}
	}

	return nil
}

// findByContact resolves the contact to a user and the matching delivery
// channel. Email addresses are recognized by the presence of "@".
func (s *PasswordResetService) findByContact(ctx context.Context, contact string) (*domain.User, domain.DeliveryChannel, error) {
	var (
		user *domain.User
		err  error
	)

	channel := domain.DeliveryChannelSMS
	if strings.Contains(contact, "@") {
		channel = domain.DeliveryChannelEmail
		user, err = s.users.GetByEmail(ctx, contact)
	} else {
		user, err = s.users.GetByPhone(ctx, contact)
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, channel, ErrUserNotFound
		}
		return nil, channel, fmt.Errorf("find user by contact: %w", err)
	}

	return user, channel, nil
}

func (s *PasswordResetService) userInputs(user *domain.User) []string {
	inputs := []string{user.Username, user.Email}
	if user.Phone != nil {
		inputs = append(inputs, *user.Phone)
	}
	return inputs
}
