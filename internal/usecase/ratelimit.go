package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bazarhub/auth-service/internal/core/port"
)

// RateLimitAction names a throttled operation. Counters for different
// actions are tracked independently even for the same identifier.
type RateLimitAction string

const (
	ActionLogin             RateLimitAction = "login_attempts"
	ActionOTPRequest        RateLimitAction = "otp_requests"
	ActionPasswordReset     RateLimitAction = "password_reset"
	ActionRegistration      RateLimitAction = "registration"
	ActionAPIRequest        RateLimitAction = "api_requests"
	ActionEmailVerification RateLimitAction = "email_verification"
	ActionPhoneVerification RateLimitAction = "phone_verification"
)

// RateLimitRule bounds an action to Limit occurrences per Window.
type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

func defaultRateLimits() map[RateLimitAction]RateLimitRule {
	return map[RateLimitAction]RateLimitRule{
		ActionLogin:             {Limit: 5, Window: 15 * time.Minute},
		ActionOTPRequest:        {Limit: 5, Window: time.Hour},
		ActionPasswordReset:     {Limit: 3, Window: time.Hour},
		ActionRegistration:      {Limit: 3, Window: time.Hour},
		ActionAPIRequest:        {Limit: 100, Window: time.Hour},
		ActionEmailVerification: {Limit: 5, Window: time.Hour},
		ActionPhoneVerification: {Limit: 5, Window: time.Hour},
	}
}

// RateLimitInfo reports counter state for one (action, identifier) pair.
type RateLimitInfo struct {
	Action       RateLimitAction
	Identifier   string
	CurrentCount int
	Limit        int
	Remaining    int
	Window       time.Duration
}

// RateLimitExceededError reports a denied request together with the window
// the caller should wait out.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

// Error implements error for RateLimitExceededError.
func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
}

// RateLimitService enforces per-identifier counters with renewing windows.
// Check and Increment are deliberately split so callers can skip counting
// requests that were short-circuited earlier in the pipeline.
type RateLimitService struct {
	counters port.CounterCache
	rules    map[RateLimitAction]RateLimitRule
	logger   *zap.Logger
}

// NewRateLimitService constructs a rate limiter with the default rules.
func NewRateLimitService(counters port.CounterCache, logger *zap.Logger) *RateLimitService {
	return &RateLimitService{
		counters: counters,
		rules:    defaultRateLimits(),
		logger:   logger,
	}
}

// Rule returns the active rule for the action.
func (s *RateLimitService) Rule(action RateLimitAction) RateLimitRule {
	if rule, ok := s.rules[action]; ok {
		return rule
	}
	return RateLimitRule{Limit: 100, Window: time.Hour}
}

// SetRule overrides the rule for an action.
func (s *RateLimitService) SetRule(action RateLimitAction, rule RateLimitRule) {
	s.rules[action] = rule
}

func (s *RateLimitService) key(action RateLimitAction, identifier string) string {
	return fmt.Sprintf("rate_limit:%s:%s", action, identifier)
}

// Check reads the counter and reports whether another request is allowed.
// It never mutates state. When the counter store is unavailable the check
// fails open: throttling must not take down all auth traffic.
func (s *RateLimitService) Check(ctx context.Context, action RateLimitAction, identifier string) (bool, *RateLimitInfo, error) {
	rule := s.Rule(action)

	count, err := s.counters.GetCount(ctx, s.key(action, identifier))
	if err != nil {
		s.logger.Warn("rate limit check failed open",
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return true, &RateLimitInfo{
			Action:     action,
			Identifier: identifier,
			Limit:      rule.Limit,
			Remaining:  rule.Limit,
			Window:     rule.Window,
		}, nil
	}

	remaining := rule.Limit - count
	if remaining < 0 {
		remaining = 0
	}

	info := &RateLimitInfo{
		Action:       action,
		Identifier:   identifier,
		CurrentCount: count,
		Limit:        rule.Limit,
		Remaining:    remaining,
		Window:       rule.Window,
	}

	return count < rule.Limit, info, nil
}

// Increment bumps the counter and restarts the window TTL: the limit reads
// as "N actions within W of the most recent action", not a fixed window.
func (s *RateLimitService) Increment(ctx context.Context, action RateLimitAction, identifier string) (int, error) {
	rule := s.Rule(action)
	key := s.key(action, identifier)

	count, err := s.counters.GetCount(ctx, key)
	if err != nil {
		s.logger.Warn("rate limit increment skipped",
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return 0, nil
	}

	count++
	if err := s.counters.SetCount(ctx, key, count, rule.Window); err != nil {
		s.logger.Warn("rate limit counter write failed",
			zap.String("action", string(action)),
			zap.Error(err),
		)
		return 0, nil
	}

	return count, nil
}

// Reset clears the counter for an (action, identifier) pair.
func (s *RateLimitService) Reset(ctx context.Context, action RateLimitAction, identifier string) error {
	if err := s.counters.Delete(ctx, s.key(action, identifier)); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}
