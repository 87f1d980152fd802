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

var userColumns = []string{
	"id",
	"username",
	"email",
	"phone",
	"password_hash",
	"password_algo",
	"status",
	"is_active",
	"email_verified",
	"phone_verified",
	"failed_login_attempts",
	"locked_until",
	"last_login_ip",
	"registered_at",
	"last_login",
	"last_password_change",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	repo := &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *UserRepository) WithTx(tx pgx.Tx) *UserRepository {
	if tx == nil {
		return r
	}
	return &UserRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new user row.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	var emailValue any
	if user.Email != "" {
		emailValue = user.Email
	}

	var phoneValue any
	if user.Phone != nil && *user.Phone != "" {
		phoneValue = *user.Phone
	}

	query := r.builder.Insert("auth.users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Username,
			emailValue,
			phoneValue,
			user.PasswordHash,
			user.PasswordAlgo,
			user.Status,
			user.IsActive,
			user.EmailVerified,
			user.PhoneVerified,
			user.FailedLoginAttempts,
			user.LockedUntil,
			user.LastLoginIP,
			user.RegisteredAt,
			user.LastLogin,
			user.LastPasswordChange,
		)

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *UserRepository) getBy(ctx context.Context, pred any) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("auth.users").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		user        domain.User
		email       sql.NullString
		phone       sql.NullString
		lastLoginIP sql.NullString
		lockedUntil *time.Time
		lastLogin   *time.Time
	)

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&email,
		&phone,
		&user.PasswordHash,
		&user.PasswordAlgo,
		&user.Status,
		&user.IsActive,
		&user.EmailVerified,
		&user.PhoneVerified,
		&user.FailedLoginAttempts,
		&lockedUntil,
		&lastLoginIP,
		&user.RegisteredAt,
		&lastLogin,
		&user.LastPasswordChange,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	user.LockedUntil = lockedUntil
	user.LastLogin = lastLogin
	if email.Valid {
		user.Email = email.String
	}
	if phone.Valid {
		val := phone.String
		user.Phone = &val
	}
	if lastLoginIP.Valid {
		val := lastLoginIP.String
		user.LastLoginIP = &val
	}

	return &user, nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByIdentifier retrieves a user by username, email, or phone identifier.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Or{
		squirrel.Eq{"username": identifier},
		squirrel.Eq{"email": identifier},
		squirrel.Eq{"phone": identifier},
	})
}

// GetByEmail retrieves a user by email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"email": email})
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getBy(ctx, squirrel.Eq{"phone": phone})
}

// UpdatePassword updates a user's password hash, algorithm, and last change timestamp.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("password_hash", passwordHash).
		Set("password_algo", passwordAlgo).
		Set("last_password_change", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RecordLoginSuccess clears the failure counter and lock, and stamps the login.
func (r *UserRepository) RecordLoginSuccess(ctx context.Context, id string, at time.Time, ip *string) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("failed_login_attempts", 0).
		Set("locked_until", nil).
		Set("last_login", at).
		Set("last_login_ip", ip).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login success sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record login success: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RecordLoginFailure bumps the failure counter and trips the lock once the
// threshold is reached, in a single statement so concurrent failures cannot
// lose increments.
func (r *UserRepository) RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, bool, error) {
	stmt := `
		UPDATE auth.users
		   SET failed_login_attempts = failed_login_attempts + 1,
		       locked_until = CASE
		           WHEN failed_login_attempts + 1 >= $2 THEN $3
		           ELSE locked_until
		       END
		 WHERE id = $1
		RETURNING failed_login_attempts, locked_until IS NOT NULL AND locked_until = $3
	`

	var (
		attempts int
		locked   bool
	)
	if err := r.exec.QueryRow(ctx, stmt, id, threshold, lockUntil).Scan(&attempts, &locked); err != nil {
		if err == pgx.ErrNoRows {
			return 0, false, repository.ErrNotFound
		}
		return 0, false, fmt.Errorf("record login failure: %w", err)
	}

	return attempts, locked, nil
}

// ResetFailedAttempts zeroes the failure counter without touching lock state.
func (r *UserRepository) ResetFailedAttempts(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("failed_login_attempts", 0).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset failed attempts sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reset failed attempts: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Lock sets locked_until without touching the failure counter.
func (r *UserRepository) Lock(ctx context.Context, id string, until time.Time) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("locked_until", until).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build lock user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Unlock clears the lock and failure counter regardless of current state.
func (r *UserRepository) Unlock(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("failed_login_attempts", 0).
		Set("locked_until", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build unlock user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("unlock user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetEmailVerified marks the address as verified and stores it as the
// account's current email.
func (r *UserRepository) SetEmailVerified(ctx context.Context, id string, email string) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("email", email).
		Set("email_verified", true).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set email verified sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set email verified: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetPhoneVerified marks the account's phone number as verified.
func (r *UserRepository) SetPhoneVerified(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("phone_verified", true).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set phone verified sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set phone verified: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
