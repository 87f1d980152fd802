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
	"github.com/bazarhub/auth-service/internal/infra/security"
	"github.com/bazarhub/auth-service/internal/repository"
)

var (
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrEmailTaken indicates the email is already registered.
	ErrEmailTaken = errors.New("email already registered")
	// ErrPhoneTaken indicates the phone number is already registered.
	ErrPhoneTaken = errors.New("phone already registered")
)

// RegisterInput carries one account creation request. OTPCode optionally
// proves phone ownership up front when the client ran the send-otp flow
// with the register purpose before submitting.
type RegisterInput struct {
	Username   string
	Email      string
	Phone      string
	Password   string
	OTPCode    string
	IP         string
	UserAgent  string
	DeviceInfo string
}

// RegisterResult reports the created account, its first token pair and
// session, and which verification steps were completed or dispatched.
type RegisterResult struct {
	User                  *domain.User
	Tokens                *security.TokenPair
	Session               *domain.UserSession
	PhoneVerified         bool
	EmailVerificationSent bool
}

// RegistrationService creates accounts and hands the new user a signed-in
// session, mirroring what a follow-up login would produce.
type RegistrationService struct {
	users        port.UserRepository
	hasher       port.PasswordHasher
	strength     port.PasswordStrengthValidator
	otp          *OTPService
	verification *VerificationService
	auth         *AuthService
	audit        *SecurityService
	events       port.EventPublisher
	logger       *zap.Logger
	now          func() time.Time
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(
	users port.UserRepository,
	hasher port.PasswordHasher,
	strength port.PasswordStrengthValidator,
	otp *OTPService,
	verification *VerificationService,
	auth *AuthService,
	audit *SecurityService,
	events port.EventPublisher,
	log *zap.Logger,
) *RegistrationService {
	return &RegistrationService{
		users:        users,
		hasher:       hasher,
		strength:     strength,
		otp:          otp,
		verification: verification,
		auth:         auth,
		audit:        audit,
		events:       events,
		logger:       log,
		now:          time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *RegistrationService) WithClock(clock func() time.Time) {
	s.now = clock
}

// Register validates and creates the account, optionally consuming a phone
// pre-verification code, then issues the first token pair and dispatches
// email verification best-effort.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	phone := strings.TrimSpace(input.Phone)

	if err := s.strength.Validate(input.Password, username, email, phone); err != nil {
		return nil, err
	}

	if err := s.checkAvailability(ctx, username, email, phone); err != nil {
		return nil, err
	}

	phoneVerified := false
	if phone != "" && input.OTPCode != "" {
		if _, err := s.otp.Verify(ctx, phone, input.OTPCode, domain.OTPPurposeRegister, input.IP); err != nil {
			return nil, err
		}
		phoneVerified = true
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := domain.User{
		ID:                 uuid.NewString(),
		Username:           username,
		Email:              email,
		Phone:              optionalString(phone),
		PasswordHash:       hash,
		PasswordAlgo:       security.PasswordAlgo,
		Status:             domain.UserStatusActive,
		IsActive:           true,
		PhoneVerified:      phoneVerified,
		RegisteredAt:       now,
		LastPasswordChange: now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    &user.ID,
		EventType: domain.EventUserRegistered,
		Severity:  domain.SeverityLow,
		IP:        input.IP,
		UserAgent: input.UserAgent,
		Details:   map[string]any{"phone_verified": phoneVerified},
	})

	if s.events != nil {
		event := domain.UserRegisteredEvent{
			EventID:       uuid.NewString(),
			UserID:        user.ID,
			Username:      user.Username,
			Email:         optionalString(email),
			Phone:         optionalString(phone),
			PhoneVerified: phoneVerified,
			RegisteredAt:  now,
		}
		if err := s.events.PublishUserRegistered(ctx, event); err != nil {
			s.logger.Warn("user registered publish failed", zap.Error(err))
		}
	}

	emailVerificationSent := false
	if email != "" {
		if err := s.verification.SendEmailVerification(ctx, user.ID, "", input.IP); err != nil {
			s.logger.Warn("registration email verification dispatch failed", zap.Error(err))
		} else {
			emailVerificationSent = true
		}
	}

	pair, err := s.auth.jwt.IssuePair(user.ID, "")
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	session, err := s.auth.upsertSession(ctx, user.ID, pair.SessionKey, input.IP, input.UserAgent, input.DeviceInfo, now)
	if err != nil {
		return nil, err
	}

	return &RegisterResult{
		User:                  &user,
		Tokens:                pair,
		Session:               session,
		PhoneVerified:         phoneVerified,
		EmailVerificationSent: emailVerificationSent,
	}, nil
}

func (s *RegistrationService) checkAvailability(ctx context.Context, username, email, phone string) error {
	if _, err := s.users.GetByIdentifier(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("check username: %w", err)
	}

	if email != "" {
		if _, err := s.users.GetByEmail(ctx, email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("check email: %w", err)
		}
	}

	if phone != "" {
		if _, err := s.users.GetByPhone(ctx, phone); err == nil {
			return ErrPhoneTaken
		} else if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("check phone: %w", err)
		}
	}

	return nil
}
