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
	"github.com/bazarhub/auth-service/internal/infra/config"
	"github.com/bazarhub/auth-service/internal/infra/logger"
	"github.com/bazarhub/auth-service/internal/repository"
)

// ErrUserNotFound indicates no account matches the supplied identifier.
var ErrUserNotFound = errors.New("no user found")

// Cache keys shared between the lockout path and the suspicion heuristic.
const (
	failedLoginIPWindow = time.Hour
	recentLockWindow    = time.Hour
)

func failedLoginIPKey(ip string) string {
	return fmt.Sprintf("failed_login:ip:%s", ip)
}

func recentLockKey(userID string) string {
	return fmt.Sprintf("recent_lock:%s", userID)
}

// SecurityEventInput captures one auditable occurrence.
type SecurityEventInput struct {
	UserID    *string
	EventType domain.SecurityEventType
	Severity  domain.SecuritySeverity
	IP        string
	UserAgent string
	Details   map[string]any
}

// SecurityService owns the audit trail, account lockout, and IP blocking.
type SecurityService struct {
	cfg          config.SecuritySettings
	users        port.UserRepository
	securityLogs port.SecurityLogRepository
	counters     port.CounterCache
	events       port.EventPublisher
	email        port.EmailSender
	logger       *zap.Logger
	now          func() time.Time
}

// NewSecurityService constructs a SecurityService.
func NewSecurityService(
	cfg config.SecuritySettings,
	users port.UserRepository,
	securityLogs port.SecurityLogRepository,
	counters port.CounterCache,
	events port.EventPublisher,
	email port.EmailSender,
	log *zap.Logger,
) *SecurityService {
	if cfg.MaxFailedLogins <= 0 {
		cfg.MaxFailedLogins = domain.MaxFailedLoginAttempts
	}
	if cfg.AccountLockTime <= 0 {
		cfg.AccountLockTime = domain.AccountLockDuration
	}
	if cfg.IPBlockTime <= 0 {
		cfg.IPBlockTime = time.Hour
	}
	if cfg.LogRetention <= 0 {
		cfg.LogRetention = 90 * 24 * time.Hour
	}
	if cfg.SummaryPeriodDays <= 0 {
		cfg.SummaryPeriodDays = 30
	}

	return &SecurityService{
		cfg:          cfg,
		users:        users,
		securityLogs: securityLogs,
		counters:     counters,
		events:       events,
		email:        email,
		logger:       log,
		now:          time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *SecurityService) WithClock(clock func() time.Time) {
	s.now = clock
}

// LogEvent appends one audit record and fans it out on the event bus.
// Failures are recorded in the process log and swallowed: the audit trail
// must never abort the business operation it documents.
func (s *SecurityService) LogEvent(ctx context.Context, input SecurityEventInput) {
	severity := input.Severity
	if severity == "" {
		severity = domain.SeverityLow
	}

	now := s.now().UTC()
	entry := domain.SecurityLog{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		EventType: input.EventType,
		Severity:  severity,
		IP:        optionalString(input.IP),
		UserAgent: optionalString(input.UserAgent),
		Details:   input.Details,
		CreatedAt: now,
	}

	if err := s.securityLogs.Insert(ctx, entry); err != nil {
		s.logger.Error("security log write failed",
			zap.String("event_type", string(input.EventType)),
			zap.Error(err),
		)
		return
	}

	if s.events != nil {
		event := domain.SecurityEventRecorded{
			EventID:    entry.ID,
			UserID:     entry.UserID,
			EventType:  entry.EventType,
			Severity:   entry.Severity,
			IPAddress:  entry.IP,
			UserAgent:  entry.UserAgent,
			Details:    entry.Details,
			RecordedAt: entry.CreatedAt,
		}
		if err := s.events.PublishSecurityEvent(ctx, event); err != nil {
			s.logger.Warn("security event publish failed",
				zap.String("event_type", string(input.EventType)),
				zap.Error(err),
			)
		}
	}
}

// HandleFailedLogin records a failed credential check against the account
// and trips the lockout once the threshold is reached. It reports whether
// the account is now locked.
func (s *SecurityService) HandleFailedLogin(ctx context.Context, user *domain.User, ip, userAgent string) (bool, error) {
	now := s.now().UTC()
	lockUntil := now.Add(s.cfg.AccountLockTime)

	attempts, locked, err := s.users.RecordLoginFailure(ctx, user.ID, s.cfg.MaxFailedLogins, lockUntil)
	if err != nil {
		return false, fmt.Errorf("record login failure: %w", err)
	}

	if ip != "" {
		key := failedLoginIPKey(ip)
		count, cerr := s.counters.GetCount(ctx, key)
		if cerr == nil {
			cerr = s.counters.SetCount(ctx, key, count+1, failedLoginIPWindow)
		}
		if cerr != nil {
			s.logger.Warn("failed login ip counter update failed",
				zap.String("ip", logger.MaskIP(ip)),
				zap.Error(cerr),
			)
		}
	}

	s.LogEvent(ctx, SecurityEventInput{
		UserID:    &user.ID,
		EventType: domain.EventLoginFailed,
		Severity:  domain.SeverityMedium,
		IP:        ip,
		UserAgent: userAgent,
		Details:   map[string]any{"failed_attempts": attempts},
	})

	// This path is only reachable while the account is unlocked, so a locked
	// result is always the transition into the locked state. That includes a
	// re-lock past the threshold after an earlier lock expired on its own.
	if locked {
		s.onAccountLocked(ctx, user, attempts, now, lockUntil, ip, userAgent)
	}

	return locked, nil
}

func (s *SecurityService) onAccountLocked(ctx context.Context, user *domain.User, attempts int, lockedAt, lockedUntil time.Time, ip, userAgent string) {
	s.LogEvent(ctx, SecurityEventInput{
		UserID:    &user.ID,
		EventType: domain.EventLoginLocked,
		Severity:  domain.SeverityHigh,
		IP:        ip,
		UserAgent: userAgent,
		Details: map[string]any{
			"failed_attempts": attempts,
			"locked_until":    lockedUntil.Format(time.RFC3339),
		},
	})

	if s.events != nil {
		event := domain.AccountLockedEvent{
			EventID:        uuid.NewString(),
			UserID:         user.ID,
			Username:       user.Username,
			FailedAttempts: attempts,
			LockedAt:       lockedAt,
			LockedUntil:    lockedUntil,
			IPAddress:      optionalString(ip),
		}
		if err := s.events.PublishAccountLocked(ctx, event); err != nil {
			s.logger.Warn("account locked publish failed", zap.Error(err))
		}
	}

	if s.email != nil && user.Email != "" {
		body := fmt.Sprintf(
			"Your account was locked after %d failed sign-in attempts. It will unlock automatically at %s. If this was not you, reset your password.",
			attempts, lockedUntil.Format(time.RFC1123),
		)
		if err := s.email.SendSecurityAlert(ctx, user.Email, "Account temporarily locked", body); err != nil {
			s.logger.Warn("lock alert email failed",
				zap.String("email", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		}
	}
}

// LockAccount applies an explicit lock for the given duration, independent
// of the failure counter. It returns the lock expiry.
func (s *SecurityService) LockAccount(ctx context.Context, userID string, duration time.Duration, reason, ip string) (*time.Time, error) {
	if duration <= 0 {
		duration = s.cfg.AccountLockTime
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	now := s.now().UTC()
	lockUntil := now.Add(duration)
	if err := s.users.Lock(ctx, userID, lockUntil); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lock account: %w", err)
	}

	s.LogEvent(ctx, SecurityEventInput{
		UserID:    &userID,
		EventType: domain.EventLoginLocked,
		Severity:  domain.SeverityHigh,
		IP:        ip,
		Details: map[string]any{
			"reason":       reason,
			"locked_until": lockUntil.Format(time.RFC3339),
		},
	})

	if s.events != nil {
		event := domain.AccountLockedEvent{
			EventID:        uuid.NewString(),
			UserID:         user.ID,
			Username:       user.Username,
			FailedAttempts: user.FailedLoginAttempts,
			LockedAt:       now,
			LockedUntil:    lockUntil,
			IPAddress:      optionalString(ip),
		}
		if err := s.events.PublishAccountLocked(ctx, event); err != nil {
			s.logger.Warn("account locked publish failed", zap.Error(err))
		}
	}

	if s.email != nil && user.Email != "" {
		body := fmt.Sprintf(
			"Your account was locked until %s. If you believe this is a mistake, contact support.",
			lockUntil.Format(time.RFC1123),
		)
		if err := s.email.SendSecurityAlert(ctx, user.Email, "Account locked", body); err != nil {
			s.logger.Warn("lock alert email failed",
				zap.String("email", logger.MaskEmail(user.Email)),
				zap.Error(err),
			)
		}
	}

	return &lockUntil, nil
}

// UnlockAccount clears the lock and failure counter. Unlocking an account
// that is not locked is a no-op rather than an error.
func (s *SecurityService) UnlockAccount(ctx context.Context, userID, ip, reason string) error {
	if err := s.users.Unlock(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("unlock account: %w", err)
	}

	// The suspicion heuristic treats a lock cleared within the last hour as a
	// signal, and the cleared locked_until leaves no trace on the row.
	if err := s.counters.SetFlag(ctx, recentLockKey(userID), recentLockWindow); err != nil {
		s.logger.Warn("recent lock flag set failed", zap.Error(err))
	}

	s.LogEvent(ctx, SecurityEventInput{
		UserID:    &userID,
		EventType: domain.EventAccountUnlocked,
		Severity:  domain.SeverityMedium,
		IP:        ip,
		Details:   map[string]any{"reason": reason},
	})

	return nil
}

// BlockIP flags the address for the configured duration. Requests from a
// blocked address are refused before any rate-limit accounting.
func (s *SecurityService) BlockIP(ctx context.Context, ip, reason string, duration time.Duration) error {
	if duration <= 0 {
		duration = s.cfg.IPBlockTime
	}

	if err := s.counters.SetFlag(ctx, fmt.Sprintf("blocked_ip:%s", ip), duration); err != nil {
		return fmt.Errorf("block ip: %w", err)
	}

	s.LogEvent(ctx, SecurityEventInput{
		EventType: domain.EventIPBlocked,
		Severity:  domain.SeverityHigh,
		IP:        ip,
		Details: map[string]any{
			"reason":           reason,
			"duration_seconds": int(duration.Seconds()),
		},
	})

	return nil
}

// IsIPBlocked reports whether the address is currently flagged. The check
// fails open when the flag store is unavailable.
func (s *SecurityService) IsIPBlocked(ctx context.Context, ip string) bool {
	blocked, err := s.counters.HasFlag(ctx, fmt.Sprintf("blocked_ip:%s", ip))
	if err != nil {
		s.logger.Warn("ip block check failed open", zap.String("ip", logger.MaskIP(ip)), zap.Error(err))
		return false
	}
	return blocked
}

// IPStatus reports the address's authentication failures over the last hour
// together with its current block state, for operator inspection.
func (s *SecurityService) IPStatus(ctx context.Context, ip string) (int, bool, error) {
	since := s.now().UTC().Add(-failedLoginIPWindow)
	failures, err := s.securityLogs.CountFailuresByIP(ctx, ip, since)
	if err != nil {
		return 0, false, fmt.Errorf("count ip failures: %w", err)
	}
	return failures, s.IsIPBlocked(ctx, ip), nil
}

// Summary aggregates the user's recent audit activity.
func (s *SecurityService) Summary(ctx context.Context, userID string, days int) (*domain.SecuritySummary, error) {
	if days <= 0 {
		days = s.cfg.SummaryPeriodDays
	}

	since := s.now().UTC().AddDate(0, 0, -days)
	summary, err := s.securityLogs.Summarize(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("summarize security logs: %w", err)
	}

	summary.PeriodDays = days
	return summary, nil
}

// CleanupLogs purges audit records past the retention horizon.
func (s *SecurityService) CleanupLogs(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.cfg.LogRetention)

	removed, err := s.securityLogs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup security logs: %w", err)
	}

	if removed > 0 {
		s.logger.Info("security logs purged",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff),
		)
	}

	return removed, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
