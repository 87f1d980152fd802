package port

import (
	"context"
	"time"

	"github.com/bazarhub/auth-service/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error
	// RecordLoginSuccess resets the failed-attempt counter, clears any expired
	// lock, and stamps last_login and last_login_ip in a single statement.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time, ip *string) error
	// RecordLoginFailure atomically increments failed_login_attempts and, when
	// the new count reaches threshold, sets locked_until. It reports the new
	// count and whether this call tripped the lock.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (attempts int, locked bool, err error)
	// ResetFailedAttempts zeroes the counter without touching locked_until,
	// used after a verified identity event such as a completed password reset.
	ResetFailedAttempts(ctx context.Context, id string) error
	// Lock sets locked_until regardless of the failure counter, for locks
	// applied outside the brute-force path.
	Lock(ctx context.Context, id string, until time.Time) error
	Unlock(ctx context.Context, id string) error
	SetEmailVerified(ctx context.Context, id string, email string) error
	SetPhoneVerified(ctx context.Context, id string) error
}
