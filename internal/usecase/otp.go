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
	// ErrOTPNotFound indicates no active code exists for the contact and purpose.
	ErrOTPNotFound = errors.New("no active verification code")
	// ErrOTPExpired indicates the code's lifetime has elapsed.
	ErrOTPExpired = errors.New("verification code expired")
	// ErrOTPTooManyAttempts indicates the attempt budget is exhausted. The code
	// stays invalid until a new one is requested, even if unexpired.
	ErrOTPTooManyAttempts = errors.New("too many verification attempts")
	// ErrOTPDeliveryFailed indicates the code could not be dispatched.
	ErrOTPDeliveryFailed = errors.New("could not deliver verification code")
	// ErrUnsupportedChannel indicates an unknown delivery channel.
	ErrUnsupportedChannel = errors.New("unsupported delivery channel")
)

// OTPInvalidCodeError reports a wrong code together with the attempts
// remaining before the record becomes permanently invalid.
type OTPInvalidCodeError struct {
	Remaining int
}

// Error implements error for OTPInvalidCodeError.
func (e *OTPInvalidCodeError) Error() string {
	return fmt.Sprintf("invalid verification code, %d attempts remaining", e.Remaining)
}

// SendOTPInput describes one code issuance request.
type SendOTPInput struct {
	Contact string
	Channel domain.DeliveryChannel
	Purpose domain.OTPPurpose
	UserID  *string
	IP      string
}

// SendOTPResult is returned to callers on successful dispatch. The contact
// is masked so responses never echo the full address back.
type SendOTPResult struct {
	MaskedContact string
	ExpiresIn     time.Duration
}

// OTPService issues, dispatches, and verifies one-time codes. Issuance is
// throttled per contact and per requesting IP with counters separate from
// the request-level rate limiter.
type OTPService struct {
	otps     port.OTPRepository
	counters port.CounterCache
	sms      port.SMSSender
	email    port.EmailSender
	audit    *SecurityService
	logger   *zap.Logger
	now      func() time.Time
}

// NewOTPService constructs an OTPService.
func NewOTPService(
	otps port.OTPRepository,
	counters port.CounterCache,
	sms port.SMSSender,
	email port.EmailSender,
	audit *SecurityService,
	log *zap.Logger,
) *OTPService {
	return &OTPService{
		otps:     otps,
		counters: counters,
		sms:      sms,
		email:    email,
		audit:    audit,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *OTPService) WithClock(clock func() time.Time) {
	s.now = clock
}

func otpContactKey(contact string) string {
	return fmt.Sprintf("otp:contact:%s", contact)
}

func otpIPKey(ip string) string {
	return fmt.Sprintf("otp:ip:%s", ip)
}

// Send generates a fresh code, invalidates any prior active code for the
// same contact and purpose, persists the hash, and dispatches over the
// requested channel. A dispatch failure removes the record so the contact
// is not left holding an undeliverable code.
func (s *OTPService) Send(ctx context.Context, input SendOTPInput) (*SendOTPResult, error) {
	if err := s.checkIssueLimit(ctx, input, otpContactKey(input.Contact), domain.OTPContactLimit, domain.OTPContactWindow, "otp:contact"); err != nil {
		return nil, err
	}
	if input.IP != "" {
		if err := s.checkIssueLimit(ctx, input, otpIPKey(input.IP), domain.OTPPerIPLimit, domain.OTPPerIPWindow, "otp:ip"); err != nil {
			return nil, err
		}
	}

	code, err := security.GenerateOTPCode(domain.OTPCodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}

	if _, err := s.otps.InvalidateActive(ctx, input.Contact, input.Purpose); err != nil {
		return nil, fmt.Errorf("invalidate previous codes: %w", err)
	}

	now := s.now().UTC()
	record := domain.OTPCode{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		Contact:   input.Contact,
		Channel:   input.Channel,
		Purpose:   input.Purpose,
		CodeHash:  security.HashToken(code),
		IP:        optionalString(input.IP),
		CreatedAt: now,
		ExpiresAt: now.Add(domain.OTPLifetime),
	}

	if err := s.otps.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store otp: %w", err)
	}

	if err := s.dispatch(ctx, input.Channel, input.Contact, code); err != nil {
		if delErr := s.otps.Delete(ctx, record.ID); delErr != nil {
			s.logger.Error("undeliverable otp cleanup failed", zap.Error(delErr))
		}
		s.logger.Error("otp dispatch failed",
			zap.String("contact", logger.MaskContact(input.Contact)),
			zap.String("channel", string(input.Channel)),
			zap.Error(err),
		)
		return nil, ErrOTPDeliveryFailed
	}

	s.bumpIssueCounter(ctx, otpContactKey(input.Contact), domain.OTPContactWindow)
	if input.IP != "" {
		s.bumpIssueCounter(ctx, otpIPKey(input.IP), domain.OTPPerIPWindow)
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    input.UserID,
		EventType: domain.EventOTPSent,
		Severity:  domain.SeverityLow,
		IP:        input.IP,
		Details: map[string]any{
			"contact": logger.MaskContact(input.Contact),
			"channel": string(input.Channel),
			"purpose": string(input.Purpose),
		},
	})

	return &SendOTPResult{
		MaskedContact: logger.MaskContact(input.Contact),
		ExpiresIn:     domain.OTPLifetime,
	}, nil
}

// Verify consumes the active code for the contact and purpose. A correct
// code can be redeemed exactly once; each wrong code burns one attempt
// from a budget of OTPMaxAttempts.
func (s *OTPService) Verify(ctx context.Context, contact, code string, purpose domain.OTPPurpose, ip string) (*domain.OTPCode, error) {
	record, err := s.match(ctx, contact, code, purpose, ip)
	if err != nil {
		return nil, err
	}

	if err := s.otps.MarkUsed(ctx, record.ID, s.now().UTC()); err != nil {
		// A concurrent verification won the race and consumed the code.
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("mark otp used: %w", err)
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    record.UserID,
		EventType: domain.EventOTPVerified,
		Severity:  domain.SeverityLow,
		IP:        ip,
		Details: map[string]any{
			"contact": logger.MaskContact(contact),
			"purpose": string(purpose),
		},
	})

	return record, nil
}

// Check validates the code without consuming it, so a multi-step flow can
// confirm the code mid-way and redeem it at the final step. Wrong codes
// still burn attempts; only redemption is deferred.
func (s *OTPService) Check(ctx context.Context, contact, code string, purpose domain.OTPPurpose, ip string) (*domain.OTPCode, error) {
	return s.match(ctx, contact, code, purpose, ip)
}

func (s *OTPService) match(ctx context.Context, contact, code string, purpose domain.OTPPurpose, ip string) (*domain.OTPCode, error) {
	record, err := s.otps.LatestActive(ctx, contact, purpose)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("load otp: %w", err)
	}

	now := s.now().UTC()
	if record.IsExpired(now) {
		return nil, ErrOTPExpired
	}
	if record.Attempts >= domain.OTPMaxAttempts {
		return nil, ErrOTPTooManyAttempts
	}

	if security.HashToken(code) != record.CodeHash {
		attempts, err := s.otps.IncrementAttempts(ctx, record.ID)
		if err != nil {
			return nil, fmt.Errorf("increment otp attempts: %w", err)
		}

		s.audit.LogEvent(ctx, SecurityEventInput{
			UserID:    record.UserID,
			EventType: domain.EventOTPFailed,
			Severity:  domain.SeverityMedium,
			IP:        ip,
			Details: map[string]any{
				"contact":  logger.MaskContact(contact),
				"purpose":  string(purpose),
				"attempts": attempts,
			},
		})

		remaining := domain.OTPMaxAttempts - attempts
		if remaining <= 0 {
			return nil, ErrOTPTooManyAttempts
		}
		return nil, &OTPInvalidCodeError{Remaining: remaining}
	}

	return record, nil
}

// Invalidate retires any active code for the contact and purpose without
// redeeming it.
func (s *OTPService) Invalidate(ctx context.Context, contact string, purpose domain.OTPPurpose) error {
	if _, err := s.otps.InvalidateActive(ctx, contact, purpose); err != nil {
		return fmt.Errorf("invalidate otps: %w", err)
	}
	return nil
}

// CleanupExpired purges codes whose lifetime elapsed before the grace cutoff.
func (s *OTPService) CleanupExpired(ctx context.Context) (int64, error) {
	removed, err := s.otps.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup expired otps: %w", err)
	}
	return removed, nil
}

func (s *OTPService) checkIssueLimit(ctx context.Context, input SendOTPInput, key string, limit int, window time.Duration, scope string) error {
	count, err := s.counters.GetCount(ctx, key)
	if err != nil {
		s.logger.Warn("otp issue limit check failed open", zap.String("scope", scope), zap.Error(err))
		return nil
	}

	if count >= limit {
		s.audit.LogEvent(ctx, SecurityEventInput{
			UserID:    input.UserID,
			EventType: domain.EventRateLimitExceeded,
			Severity:  domain.SeverityMedium,
			IP:        input.IP,
			Details: map[string]any{
				"scope":   scope,
				"contact": logger.MaskContact(input.Contact),
				"limit":   limit,
			},
		})
		return &RateLimitExceededError{Scope: scope, RetryAfter: window}
	}

	return nil
}

func (s *OTPService) bumpIssueCounter(ctx context.Context, key string, window time.Duration) {
	count, err := s.counters.GetCount(ctx, key)
	if err == nil {
		err = s.counters.SetCount(ctx, key, count+1, window)
	}
	if err != nil {
		s.logger.Warn("otp issue counter update failed", zap.Error(err))
	}
}

func (s *OTPService) dispatch(ctx context.Context, channel domain.DeliveryChannel, contact, code string) error {
	switch channel {
	case domain.DeliveryChannelSMS:
		return s.sms.SendOTP(ctx, contact, code)
	case domain.DeliveryChannelEmail:
		return s.email.SendOTP(ctx, contact, code)
	default:
		return ErrUnsupportedChannel
	}
}
