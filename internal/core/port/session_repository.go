package port

import (
	"context"
	"time"

	"github.com/bazarhub/auth-service/internal/core/domain"
)

// SessionRepository deals with device session storage.
type SessionRepository interface {
	// Upsert inserts the session or, when a row with the same (user, session
	// key) already exists, refreshes its metadata and reactivates it.
	Upsert(ctx context.Context, session domain.UserSession) (*domain.UserSession, error)
	GetByID(ctx context.Context, userID string, sessionID string) (*domain.UserSession, error)
	GetByKey(ctx context.Context, userID string, sessionKey string) (*domain.UserSession, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.UserSession, error)
	Touch(ctx context.Context, sessionKey string, at time.Time) error
	// Terminate deactivates one session owned by userID. Sessions belonging to
	// other users are reported as repository.ErrNotFound.
	Terminate(ctx context.Context, userID string, sessionID string) error
	TerminateByKey(ctx context.Context, userID string, sessionKey string) error
	// TerminateAllExcept deactivates every active session for the user except
	// the one identified by keepSessionKey, returning the number closed.
	TerminateAllExcept(ctx context.Context, userID string, keepSessionKey string) (int, error)
	DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
