package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs auth.user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":        event.UserID,
		"username":       event.Username,
		"email":          event.Email,
		"phone":          event.Phone,
		"phone_verified": event.PhoneVerified,
		"registered_at":  event.RegisteredAt,
		"metadata":       event.Metadata,
	}
	p.logEvent("user.registered", event.UserID, event.RegisteredAt, payload)
	return nil
}

// PublishSecurityEvent logs auth.security.event messages.
func (p *StubPublisher) PublishSecurityEvent(_ context.Context, event domain.SecurityEventRecorded) error {
	payload := map[string]any{
		"event_type":  event.EventType,
		"severity":    event.Severity,
		"ip_address":  event.IPAddress,
		"user_agent":  event.UserAgent,
		"details":     event.Details,
		"recorded_at": event.RecordedAt,
	}

	userID := ""
	if event.UserID != nil {
		userID = *event.UserID
	}

	p.logEvent("security.event", userID, event.RecordedAt, payload)
	return nil
}

// PublishAccountLocked logs auth.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"user_id":         event.UserID,
		"username":        event.Username,
		"failed_attempts": event.FailedAttempts,
		"locked_at":       event.LockedAt,
		"locked_until":    event.LockedUntil,
		"ip_address":      event.IPAddress,
		"metadata":        event.Metadata,
	}
	p.logEvent("account.locked", event.UserID, event.LockedAt, payload)
	return nil
}

// PublishPasswordChanged logs auth.user.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"user_id":          event.UserID,
		"changed_at":       event.ChangedAt,
		"changed_by":       event.ChangedBy,
		"sessions_revoked": event.SessionsRevoked,
		"metadata":         event.Metadata,
	}
	p.logEvent("user.password.changed", event.UserID, event.ChangedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
