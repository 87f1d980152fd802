package port

import (
	"context"
	"time"

	"github.com/bazarhub/auth-service/internal/core/domain"
)

// TokenRepository manages password reset and email verification token records.
type TokenRepository interface {
	CreatePasswordReset(ctx context.Context, token domain.PasswordResetToken) error
	GetPasswordResetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error)
	ConsumePasswordReset(ctx context.Context, id string, usedAt time.Time) error
	RevokeActivePasswordResets(ctx context.Context, userID string) (int, error)

	CreateEmailVerification(ctx context.Context, token domain.EmailVerificationToken) error
	GetEmailVerification(ctx context.Context, token string) (*domain.EmailVerificationToken, error)
	ConsumeEmailVerification(ctx context.Context, id string, usedAt time.Time) error
	InvalidateEmailVerifications(ctx context.Context, userID string) (int, error)
	DeleteEmailVerification(ctx context.Context, id string) error

	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
