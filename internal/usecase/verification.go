package usecase

import (
	"context"
	"errors"
	"fmt"
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
	// ErrVerificationTokenInvalid covers unknown, expired, and already-used
	// email verification tokens. Callers cannot distinguish the three.
	ErrVerificationTokenInvalid = errors.New("invalid or expired verification token")
	// ErrAlreadyVerified indicates the contact is verified already.
	ErrAlreadyVerified = errors.New("already verified")
	// ErrNoPhoneOnFile indicates phone verification was requested for an
	// account without a phone number.
	ErrNoPhoneOnFile = errors.New("no phone number on file")
)

const emailVerificationTokenBytes = 32

// VerificationService coordinates the email and phone ownership-proof flows.
// Phone verification rides on the OTP engine; email verification issues a
// URL-embeddable token because the proof arrives as a clicked link.
type VerificationService struct {
	users  port.UserRepository
	tokens port.TokenRepository
	otp    *OTPService
	email  port.EmailSender
	audit  *SecurityService
	logger *zap.Logger
	now    func() time.Time
}

// NewVerificationService constructs a VerificationService.
func NewVerificationService(
	users port.UserRepository,
	tokens port.TokenRepository,
	otp *OTPService,
	email port.EmailSender,
	audit *SecurityService,
	log *zap.Logger,
) *VerificationService {
	return &VerificationService{
		users:  users,
		tokens: tokens,
		otp:    otp,
		email:  email,
		audit:  audit,
		logger: log,
		now:    time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *VerificationService) WithClock(clock func() time.Time) {
	s.now = clock
}

// SendEmailVerification issues a fresh verification token for the address
// and mails the link. Prior pending tokens for the user are invalidated so
// only the newest link works. When newEmail is non-empty the token carries
// an address change to apply on confirmation.
func (s *VerificationService) SendEmailVerification(ctx context.Context, userID, newEmail, ip string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}

	target := user.Email
	if newEmail != "" {
		target = newEmail
	}
	if target == "" {
		return fmt.Errorf("no email address to verify")
	}
	if newEmail == "" && user.EmailVerified {
		return ErrAlreadyVerified
	}

	token, err := security.GenerateSecureToken(emailVerificationTokenBytes)
	if err != nil {
		return fmt.Errorf("generate verification token: %w", err)
	}

	if _, err := s.tokens.InvalidateEmailVerifications(ctx, user.ID); err != nil {
		return fmt.Errorf("invalidate verification tokens: %w", err)
	}

	now := s.now().UTC()
	record := domain.EmailVerificationToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     token,
		NewEmail:  optionalString(newEmail),
		IP:        optionalString(ip),
		CreatedAt: now,
		ExpiresAt: now.Add(domain.EmailVerificationTokenLifetime),
	}

	if err := s.tokens.CreateEmailVerification(ctx, record); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}

	if err := s.email.SendVerificationLink(ctx, target, token); err != nil {
		if delErr := s.tokens.DeleteEmailVerification(ctx, record.ID); delErr != nil {
			s.logger.Error("undeliverable verification token cleanup failed", zap.Error(delErr))
		}
		s.logger.Error("verification mail failed",
			zap.String("email", logger.MaskEmail(target)),
			zap.Error(err),
		)
		return ErrOTPDeliveryFailed
	}

	return nil
}

// ConfirmEmail redeems a verification token, marking the address verified
// and applying a pending address change when the token carries one. A token
// redeems exactly once; replays fail the same way as expired tokens.
func (s *VerificationService) ConfirmEmail(ctx context.Context, token, ip string) (*domain.User, error) {
	record, err := s.tokens.GetEmailVerification(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVerificationTokenInvalid
		}
		return nil, fmt.Errorf("load verification token: %w", err)
	}

	now := s.now().UTC()
	if !record.IsUsable(now) {
		return nil, ErrVerificationTokenInvalid
	}

	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrVerificationTokenInvalid
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if err := s.tokens.ConsumeEmailVerification(ctx, record.ID, now); err != nil {
		return nil, fmt.Errorf("consume verification token: %w", err)
	}

	email := user.Email
	if record.NewEmail != nil && *record.NewEmail != "" {
		email = *record.NewEmail
	}

	if err := s.users.SetEmailVerified(ctx, user.ID, email); err != nil {
		return nil, fmt.Errorf("mark email verified: %w", err)
	}
	user.Email = email
	user.EmailVerified = true

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    &user.ID,
		EventType: domain.EventEmailVerified,
		Severity:  domain.SeverityLow,
		IP:        ip,
		Details:   map[string]any{"email": logger.MaskEmail(email)},
	})

	return user, nil
}

// SendPhoneVerification dispatches an OTP to the account's phone number.
func (s *VerificationService) SendPhoneVerification(ctx context.Context, userID, ip string) (*SendOTPResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user.Phone == nil || *user.Phone == "" {
		return nil, ErrNoPhoneOnFile
	}
	if user.PhoneVerified {
		return nil, ErrAlreadyVerified
	}

	return s.otp.Send(ctx, SendOTPInput{
		Contact: *user.Phone,
		Channel: domain.DeliveryChannelSMS,
		Purpose: domain.OTPPurposePhoneVerify,
		UserID:  &user.ID,
		IP:      ip,
	})
}

// ConfirmPhone redeems the phone verification OTP and flips the flag.
func (s *VerificationService) ConfirmPhone(ctx context.Context, userID, code, ip string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}

	if user.Phone == nil || *user.Phone == "" {
		return ErrNoPhoneOnFile
	}

	if _, err := s.otp.Verify(ctx, *user.Phone, code, domain.OTPPurposePhoneVerify, ip); err != nil {
		return err
	}

	if err := s.users.SetPhoneVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("mark phone verified: %w", err)
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    &user.ID,
		EventType: domain.EventPhoneVerified,
		Severity:  domain.SeverityLow,
		IP:        ip,
		Details:   map[string]any{"phone": logger.MaskPhone(*user.Phone)},
	})

	return nil
}

// CleanupExpiredTokens purges verification and reset tokens past expiry.
func (s *VerificationService) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	removed, err := s.tokens.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired tokens: %w", err)
	}
	return removed, nil
}
