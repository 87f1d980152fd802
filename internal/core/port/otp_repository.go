package port

import (
	"context"
	"time"

	"github.com/bazarhub/auth-service/internal/core/domain"
)

// OTPRepository persists issued one-time codes.
type OTPRepository interface {
	Create(ctx context.Context, code domain.OTPCode) error
	// LatestActive returns the newest unused code for the contact and purpose,
	// or repository.ErrNotFound when none exists.
	LatestActive(ctx context.Context, contact string, purpose domain.OTPPurpose) (*domain.OTPCode, error)
	// InvalidateActive marks every unused code for the contact and purpose as
	// used, so at most one redeemable code exists per (contact, purpose).
	InvalidateActive(ctx context.Context, contact string, purpose domain.OTPPurpose) (int, error)
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error
	// IncrementAttempts bumps the failed-verification counter and returns the
	// new value.
	IncrementAttempts(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
