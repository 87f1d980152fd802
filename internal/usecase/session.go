package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/core/port"
	"github.com/bazarhub/auth-service/internal/repository"
)

// ErrSessionNotFound indicates the session does not exist or belongs to
// another user. Both cases look identical to the caller.
var ErrSessionNotFound = errors.New("session not found")

const sessionRetention = 30 * 24 * time.Hour

// SessionView is one entry in a user's device list. IsCurrent marks the
// session the request itself was authenticated with.
type SessionView struct {
	Session   domain.UserSession
	IsCurrent bool
}

// SessionService lists and terminates device sessions.
type SessionService struct {
	sessions port.SessionRepository
	audit    *SecurityService
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions port.SessionRepository, audit *SecurityService, log *zap.Logger) *SessionService {
	return &SessionService{
		sessions: sessions,
		audit:    audit,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *SessionService) WithClock(clock func() time.Time) {
	s.now = clock
}

// List returns the user's active sessions, most recent first, with the
// caller's own session flagged.
func (s *SessionService) List(ctx context.Context, userID, currentSessionKey string) ([]SessionView, error) {
	sessions, err := s.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	views := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, SessionView{
			Session:   session,
			IsCurrent: session.SessionKey == currentSessionKey,
		})
	}

	return views, nil
}

// Terminate deactivates one session by id, scoped to the owning user.
func (s *SessionService) Terminate(ctx context.Context, userID, sessionID, ip string) error {
	if err := s.sessions.Terminate(ctx, userID, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("terminate session: %w", err)
	}

	s.audit.LogEvent(ctx, SecurityEventInput{
		UserID:    &userID,
		EventType: domain.EventSessionTerminated,
		Severity:  domain.SeverityLow,
		IP:        ip,
		Details:   map[string]any{"session_id": sessionID},
	})

	return nil
}

// Touch advances last_activity for the session behind an authenticated
// request. Failures are swallowed: activity tracking is best-effort.
func (s *SessionService) Touch(ctx context.Context, sessionKey string) {
	if err := s.sessions.Touch(ctx, sessionKey, s.now().UTC()); err != nil {
		s.logger.Warn("session touch failed", zap.Error(err))
	}
}

// CleanupInactive purges terminated sessions idle past the retention window.
func (s *SessionService) CleanupInactive(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-sessionRetention)

	removed, err := s.sessions.DeleteInactiveBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}

	return removed, nil
}
