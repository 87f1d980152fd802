package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/core/port"
	"github.com/bazarhub/auth-service/internal/repository"
)

// TokenRepository implements port.TokenRepository using PostgreSQL.
type TokenRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a new token repository.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	repo := &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *TokenRepository) WithTx(tx pgx.Tx) *TokenRepository {
	if tx == nil {
		return r
	}
	return &TokenRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// CreatePasswordReset inserts a password reset token row.
func (r *TokenRepository) CreatePasswordReset(ctx context.Context, token domain.PasswordResetToken) error {
	stmt, args, err := r.builder.Insert("auth.password_reset_tokens").
		Columns("id", "user_id", "token_hash", "ip", "user_agent", "created_at", "expires_at", "used_at", "revoked_at").
		Values(token.ID, token.UserID, token.TokenHash, token.IP, token.UserAgent, token.CreatedAt, token.ExpiresAt, token.UsedAt, token.RevokedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert reset token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	return nil
}

// GetPasswordResetByHash retrieves a reset token by its hash.
func (r *TokenRepository) GetPasswordResetByHash(ctx context.Context, hash string) (*domain.PasswordResetToken, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "token_hash", "ip", "user_agent", "created_at", "expires_at", "used_at", "revoked_at").
		From("auth.password_reset_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select reset token sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		token     domain.PasswordResetToken
		ip        sql.NullString
		userAgent sql.NullString
		usedAt    *time.Time
		revokedAt *time.Time
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&ip,
		&userAgent,
		&token.CreatedAt,
		&token.ExpiresAt,
		&usedAt,
		&revokedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan reset token: %w", err)
	}

	token.UsedAt = usedAt
	token.RevokedAt = revokedAt
	if ip.Valid {
		val := ip.String
		token.IP = &val
	}
	if userAgent.Valid {
		val := userAgent.String
		token.UserAgent = &val
	}

	return &token, nil
}

// ConsumePasswordReset marks a reset token as redeemed.
func (r *TokenRepository) ConsumePasswordReset(ctx context.Context, id string, usedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.password_reset_tokens").
		Set("used_at", usedAt).
		Where(squirrel.Eq{"id": id}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume reset token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RevokeActivePasswordResets revokes every outstanding reset token for the user.
func (r *TokenRepository) RevokeActivePasswordResets(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Update("auth.password_reset_tokens").
		Set("revoked_at", time.Now().UTC()).
		Where(squirrel.Eq{"user_id": userID}).
		Where("used_at IS NULL").
		Where("revoked_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build revoke reset tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("revoke reset tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// CreateEmailVerification inserts an email verification token row.
func (r *TokenRepository) CreateEmailVerification(ctx context.Context, token domain.EmailVerificationToken) error {
	stmt, args, err := r.builder.Insert("auth.email_verification_tokens").
		Columns("id", "user_id", "token", "new_email", "ip", "created_at", "expires_at", "used_at").
		Values(token.ID, token.UserID, token.Token, token.NewEmail, token.IP, token.CreatedAt, token.ExpiresAt, token.UsedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert verification token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert verification token: %w", err)
	}

	return nil
}

// GetEmailVerification retrieves a verification token by its raw value.
func (r *TokenRepository) GetEmailVerification(ctx context.Context, tokenValue string) (*domain.EmailVerificationToken, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "token", "new_email", "ip", "created_at", "expires_at", "used_at").
		From("auth.email_verification_tokens").
		Where(squirrel.Eq{"token": tokenValue}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select verification token sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		token    domain.EmailVerificationToken
		newEmail sql.NullString
		ip       sql.NullString
		usedAt   *time.Time
	)

	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Token,
		&newEmail,
		&ip,
		&token.CreatedAt,
		&token.ExpiresAt,
		&usedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan verification token: %w", err)
	}

	token.UsedAt = usedAt
	if newEmail.Valid {
		val := newEmail.String
		token.NewEmail = &val
	}
	if ip.Valid {
		val := ip.String
		token.IP = &val
	}

	return &token, nil
}

// ConsumeEmailVerification marks a verification token as redeemed.
func (r *TokenRepository) ConsumeEmailVerification(ctx context.Context, id string, usedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.email_verification_tokens").
		Set("used_at", usedAt).
		Where(squirrel.Eq{"id": id}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume verification token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume verification token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// InvalidateEmailVerifications removes every outstanding verification token
// for the user, so only the most recently issued link can succeed.
func (r *TokenRepository) InvalidateEmailVerifications(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Delete("auth.email_verification_tokens").
		Where(squirrel.Eq{"user_id": userID}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate verification tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate verification tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// DeleteEmailVerification removes a single verification token row.
func (r *TokenRepository) DeleteEmailVerification(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("auth.email_verification_tokens").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete verification token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete verification token: %w", err)
	}

	return nil
}

// DeleteExpired removes reset and verification tokens past their lifetime.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var total int64

	for _, table := range []string{"auth.password_reset_tokens", "auth.email_verification_tokens"} {
		stmt, args, err := r.builder.Delete(table).
			Where(squirrel.Lt{"expires_at": before}).
			ToSql()
		if err != nil {
			return total, fmt.Errorf("build delete expired tokens sql: %w", err)
		}

		ct, err := r.exec.Exec(ctx, stmt, args...)
		if err != nil {
			return total, fmt.Errorf("delete expired tokens: %w", err)
		}

		total += ct.RowsAffected()
	}

	return total, nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
