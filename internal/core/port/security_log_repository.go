package port

import (
	"context"
	"time"

	"github.com/bazarhub/auth-service/internal/core/domain"
)

// SecurityLogRepository persists the append-only audit trail.
type SecurityLogRepository interface {
	Insert(ctx context.Context, entry domain.SecurityLog) error
	ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]domain.SecurityLog, error)
	Summarize(ctx context.Context, userID string, since time.Time) (*domain.SecuritySummary, error)
	// CountFailuresByIP counts failed login and OTP events from an IP since
	// the given time, across all users.
	CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error)
	CountLocksByUser(ctx context.Context, userID string, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
