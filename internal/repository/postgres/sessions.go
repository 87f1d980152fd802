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

var sessionColumns = []string{
	"id",
	"user_id",
	"session_key",
	"ip",
	"user_agent",
	"device_info",
	"location",
	"is_active",
	"created_at",
	"last_activity",
}

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository wires a PostgreSQL-backed session repository.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	repo := &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Upsert inserts the session or refreshes the existing (user, session key) row.
func (r *SessionRepository) Upsert(ctx context.Context, session domain.UserSession) (*domain.UserSession, error) {
	stmt := `
		INSERT INTO auth.user_sessions
			(id, user_id, session_key, ip, user_agent, device_info, location, is_active, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8, $8)
		ON CONFLICT (user_id, session_key) DO UPDATE SET
			ip = EXCLUDED.ip,
			user_agent = EXCLUDED.user_agent,
			device_info = EXCLUDED.device_info,
			location = EXCLUDED.location,
			is_active = TRUE,
			last_activity = EXCLUDED.last_activity
		RETURNING id, created_at
	`

	row := r.exec.QueryRow(ctx, stmt,
		session.ID,
		session.UserID,
		session.SessionKey,
		session.IP,
		session.UserAgent,
		session.DeviceInfo,
		session.Location,
		session.CreatedAt,
	)

	stored := session
	stored.IsActive = true
	stored.LastActivity = session.CreatedAt
	if err := row.Scan(&stored.ID, &stored.CreatedAt); err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}

	return &stored, nil
}

func scanSession(row pgx.Row) (*domain.UserSession, error) {
	var (
		session    domain.UserSession
		ip         sql.NullString
		userAgent  sql.NullString
		deviceInfo sql.NullString
		location   sql.NullString
	)

	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.SessionKey,
		&ip,
		&userAgent,
		&deviceInfo,
		&location,
		&session.IsActive,
		&session.CreatedAt,
		&session.LastActivity,
	); err != nil {
		return nil, err
	}

	if ip.Valid {
		val := ip.String
		session.IP = &val
	}
	if userAgent.Valid {
		val := userAgent.String
		session.UserAgent = &val
	}
	if deviceInfo.Valid {
		val := deviceInfo.String
		session.DeviceInfo = &val
	}
	if location.Valid {
		val := location.String
		session.Location = &val
	}

	return &session, nil
}

// GetByID retrieves a session owned by the given user.
func (r *SessionRepository) GetByID(ctx context.Context, userID string, sessionID string) (*domain.UserSession, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("auth.user_sessions").
		Where(squirrel.Eq{"id": sessionID, "user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return session, nil
}

// GetByKey retrieves a session by its key, scoped to the owning user.
func (r *SessionRepository) GetByKey(ctx context.Context, userID string, sessionKey string) (*domain.UserSession, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("auth.user_sessions").
		Where(squirrel.Eq{"user_id": userID, "session_key": sessionKey}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	session, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return session, nil
}

// ListActiveByUser returns the user's active sessions, most recent first.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]domain.UserSession, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("auth.user_sessions").
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		OrderBy("last_activity DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.UserSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// Touch advances the session's last activity timestamp.
func (r *SessionRepository) Touch(ctx context.Context, sessionKey string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.user_sessions").
		Set("last_activity", at).
		Where(squirrel.Eq{"session_key": sessionKey, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}

	return nil
}

// Terminate deactivates a single session owned by the user.
func (r *SessionRepository) Terminate(ctx context.Context, userID string, sessionID string) error {
	stmt, args, err := r.builder.Update("auth.user_sessions").
		Set("is_active", false).
		Where(squirrel.Eq{"id": sessionID, "user_id": userID, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build terminate session sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("terminate session: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// TerminateByKey deactivates the session carrying the given key.
func (r *SessionRepository) TerminateByKey(ctx context.Context, userID string, sessionKey string) error {
	stmt, args, err := r.builder.Update("auth.user_sessions").
		Set("is_active", false).
		Where(squirrel.Eq{"user_id": userID, "session_key": sessionKey, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build terminate session by key sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("terminate session by key: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// TerminateAllExcept deactivates every other active session for the user.
func (r *SessionRepository) TerminateAllExcept(ctx context.Context, userID string, keepSessionKey string) (int, error) {
	stmt, args, err := r.builder.Update("auth.user_sessions").
		Set("is_active", false).
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		Where(squirrel.NotEq{"session_key": keepSessionKey}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build terminate sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("terminate sessions: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// DeleteInactiveBefore purges terminated sessions idle since the cutoff.
func (r *SessionRepository) DeleteInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("auth.user_sessions").
		Where(squirrel.Eq{"is_active": false}).
		Where(squirrel.Lt{"last_activity": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}

	return ct.RowsAffected(), nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
