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

var otpColumns = []string{
	"id",
	"user_id",
	"contact",
	"channel",
	"purpose",
	"code_hash",
	"attempts",
	"used",
	"ip",
	"created_at",
	"expires_at",
	"used_at",
}

// OTPRepository implements port.OTPRepository using PostgreSQL.
type OTPRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewOTPRepository wires a PostgreSQL-backed OTP repository.
func NewOTPRepository(exec pgExecutor) *OTPRepository {
	repo := &OTPRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *OTPRepository) WithTx(tx pgx.Tx) *OTPRepository {
	if tx == nil {
		return r
	}
	return &OTPRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new OTP row.
func (r *OTPRepository) Create(ctx context.Context, code domain.OTPCode) error {
	stmt, args, err := r.builder.Insert("auth.otp_codes").
		Columns(otpColumns...).
		Values(
			code.ID,
			code.UserID,
			code.Contact,
			code.Channel,
			code.Purpose,
			code.CodeHash,
			code.Attempts,
			code.Used,
			code.IP,
			code.CreatedAt,
			code.ExpiresAt,
			code.UsedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert otp sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}

	return nil
}

// LatestActive returns the newest unused code for the contact and purpose.
func (r *OTPRepository) LatestActive(ctx context.Context, contact string, purpose domain.OTPPurpose) (*domain.OTPCode, error) {
	stmt, args, err := r.builder.
		Select(otpColumns...).
		From("auth.otp_codes").
		Where(squirrel.Eq{"contact": contact, "purpose": purpose, "used": false}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select otp sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		code   domain.OTPCode
		userID sql.NullString
		ip     sql.NullString
		usedAt *time.Time
	)

	if err := row.Scan(
		&code.ID,
		&userID,
		&code.Contact,
		&code.Channel,
		&code.Purpose,
		&code.CodeHash,
		&code.Attempts,
		&code.Used,
		&ip,
		&code.CreatedAt,
		&code.ExpiresAt,
		&usedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan otp: %w", err)
	}

	code.UsedAt = usedAt
	if userID.Valid {
		val := userID.String
		code.UserID = &val
	}
	if ip.Valid {
		val := ip.String
		code.IP = &val
	}

	return &code, nil
}

// InvalidateActive marks every unused code for the contact and purpose as used.
func (r *OTPRepository) InvalidateActive(ctx context.Context, contact string, purpose domain.OTPPurpose) (int, error) {
	stmt, args, err := r.builder.Update("auth.otp_codes").
		Set("used", true).
		Where(squirrel.Eq{"contact": contact, "purpose": purpose, "used": false}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate otps sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate otps: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// MarkUsed flags a single code as redeemed. The used predicate makes
// redemption single-winner under concurrent verification.
func (r *OTPRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.otp_codes").
		Set("used", true).
		Set("used_at", usedAt).
		Where(squirrel.Eq{"id": id, "used": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark otp used sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark otp used: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// IncrementAttempts bumps the failed-verification counter and returns the new value.
func (r *OTPRepository) IncrementAttempts(ctx context.Context, id string) (int, error) {
	stmt := `
		UPDATE auth.otp_codes
		   SET attempts = attempts + 1
		 WHERE id = $1
		RETURNING attempts
	`

	var attempts int
	if err := r.exec.QueryRow(ctx, stmt, id).Scan(&attempts); err != nil {
		if err == pgx.ErrNoRows {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}

	return attempts, nil
}

// Delete removes an OTP row, used when delivery fails after issuance.
func (r *OTPRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("auth.otp_codes").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete otp sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}

	return nil
}

// DeleteExpired removes codes whose lifetime elapsed before the cutoff.
func (r *OTPRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("auth.otp_codes").
		Where(squirrel.Lt{"expires_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired otps sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired otps: %w", err)
	}

	return ct.RowsAffected(), nil
}

var _ port.OTPRepository = (*OTPRepository)(nil)
