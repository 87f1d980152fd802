package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/core/port"
	"github.com/bazarhub/auth-service/internal/infra/logger"
)

const (
	failedLoginIPThreshold = 10
	rapidRequestThreshold  = 50
	rapidRequestWindow     = 5 * time.Minute
)

var suspiciousAgentFragments = []string{"bot", "crawler", "spider", "scraper"}

// SuspicionVerdict is the combined result of all heuristic signals. Reason
// concatenates every fired signal so the audit trail records the full
// picture; Action carries the operation that was being scored.
type SuspicionVerdict struct {
	Suspicious bool
	Reason     string
	Action     string
}

// SuspicionService scores an auth request against a fixed set of heuristics.
// It never blocks anything itself: callers decide how to react to a verdict.
type SuspicionService struct {
	counters port.CounterCache
	geo      port.GeoResolver
	logger   *zap.Logger
	now      func() time.Time
}

// NewSuspicionService constructs a SuspicionService.
func NewSuspicionService(counters port.CounterCache, geo port.GeoResolver, log *zap.Logger) *SuspicionService {
	return &SuspicionService{
		counters: counters,
		geo:      geo,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *SuspicionService) WithClock(clock func() time.Time) {
	s.now = clock
}

// Evaluate combines all signals into a single verdict. Reading the request
// velocity signal also bumps its per-IP counter, so every call to Evaluate
// counts toward the next one. All other signals are pure reads; cache and
// geo failures are treated as "no signal".
func (s *SuspicionService) Evaluate(ctx context.Context, user *domain.User, ip, userAgent, action string) SuspicionVerdict {
	var reasons []string

	if s.failedAttemptsSignal(ctx, ip) {
		reasons = append(reasons, "multiple failed login attempts from IP")
	}
	if s.requestVelocitySignal(ctx, ip) {
		reasons = append(reasons, "rapid requests from IP")
	}
	if s.geoMismatchSignal(ctx, user, ip) {
		reasons = append(reasons, "login from different country")
	}
	if matchesSuspiciousAgent(userAgent) {
		reasons = append(reasons, "suspicious user agent")
	}
	if s.recentLockSignal(ctx, user) {
		reasons = append(reasons, "recent account lock")
	}

	if len(reasons) == 0 {
		return SuspicionVerdict{Action: action}
	}

	return SuspicionVerdict{
		Suspicious: true,
		Reason:     strings.Join(reasons, "; "),
		Action:     action,
	}
}

func (s *SuspicionService) failedAttemptsSignal(ctx context.Context, ip string) bool {
	if ip == "" {
		return false
	}

	count, err := s.counters.GetCount(ctx, failedLoginIPKey(ip))
	if err != nil {
		s.logger.Warn("failed attempt signal read failed", zap.String("ip", logger.MaskIP(ip)), zap.Error(err))
		return false
	}

	return count >= failedLoginIPThreshold
}

// requestVelocitySignal compares the pre-increment count against the
// threshold, then records this call. A burst therefore fires on the request
// after the fiftieth, not the fiftieth itself.
func (s *SuspicionService) requestVelocitySignal(ctx context.Context, ip string) bool {
	if ip == "" {
		return false
	}

	key := fmt.Sprintf("rapid:%s", ip)
	count, err := s.counters.GetCount(ctx, key)
	if err != nil {
		s.logger.Warn("request velocity signal read failed", zap.String("ip", logger.MaskIP(ip)), zap.Error(err))
		return false
	}

	if err := s.counters.SetCount(ctx, key, count+1, rapidRequestWindow); err != nil {
		s.logger.Warn("request velocity counter update failed", zap.String("ip", logger.MaskIP(ip)), zap.Error(err))
	}

	return count >= rapidRequestThreshold
}

func (s *SuspicionService) geoMismatchSignal(ctx context.Context, user *domain.User, ip string) bool {
	if s.geo == nil || user == nil || user.LastLoginIP == nil || ip == "" || *user.LastLoginIP == ip {
		return false
	}

	previous, err := s.geo.Locate(ctx, *user.LastLoginIP)
	if err != nil || previous == "" {
		return false
	}

	current, err := s.geo.Locate(ctx, ip)
	if err != nil || current == "" {
		return false
	}

	return countryOf(previous) != countryOf(current)
}

func (s *SuspicionService) recentLockSignal(ctx context.Context, user *domain.User) bool {
	if user == nil {
		return false
	}

	now := s.now().UTC()
	if user.LockedUntil != nil && !user.IsLocked(now) && now.Sub(*user.LockedUntil) < recentLockWindow {
		return true
	}

	// An explicit unlock clears locked_until, leaving only the cache flag.
	flagged, err := s.counters.HasFlag(ctx, recentLockKey(user.ID))
	if err != nil {
		s.logger.Warn("recent lock flag read failed", zap.Error(err))
		return false
	}

	return flagged
}

func matchesSuspiciousAgent(userAgent string) bool {
	lowered := strings.ToLower(userAgent)
	for _, fragment := range suspiciousAgentFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}
	return false
}

// countryOf extracts the trailing country code from a "City, CC" label.
func countryOf(label string) string {
	if idx := strings.LastIndex(label, ","); idx >= 0 {
		return strings.TrimSpace(label[idx+1:])
	}
	return label
}
