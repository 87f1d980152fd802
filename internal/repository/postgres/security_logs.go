package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/core/port"
)

var securityLogColumns = []string{
	"id",
	"user_id",
	"event_type",
	"severity",
	"ip",
	"user_agent",
	"details",
	"created_at",
}

// SecurityLogRepository implements port.SecurityLogRepository using PostgreSQL.
// The table is append-only: rows are inserted and eventually purged, never
// updated.
type SecurityLogRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSecurityLogRepository wires a PostgreSQL-backed security log repository.
func NewSecurityLogRepository(exec pgExecutor) *SecurityLogRepository {
	repo := &SecurityLogRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Insert appends one audit record.
func (r *SecurityLogRepository) Insert(ctx context.Context, entry domain.SecurityLog) error {
	var detailsValue any
	if len(entry.Details) > 0 {
		payload, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal security log details: %w", err)
		}
		detailsValue = payload
	}

	stmt, args, err := r.builder.Insert("auth.security_logs").
		Columns(securityLogColumns...).
		Values(
			entry.ID,
			entry.UserID,
			entry.EventType,
			entry.Severity,
			entry.IP,
			entry.UserAgent,
			detailsValue,
			entry.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert security log sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert security log: %w", err)
	}

	return nil
}

func scanSecurityLog(row pgx.Row) (*domain.SecurityLog, error) {
	var (
		entry     domain.SecurityLog
		userID    sql.NullString
		ip        sql.NullString
		userAgent sql.NullString
		details   []byte
	)

	if err := row.Scan(
		&entry.ID,
		&userID,
		&entry.EventType,
		&entry.Severity,
		&ip,
		&userAgent,
		&details,
		&entry.CreatedAt,
	); err != nil {
		return nil, err
	}

	if userID.Valid {
		val := userID.String
		entry.UserID = &val
	}
	if ip.Valid {
		val := ip.String
		entry.IP = &val
	}
	if userAgent.Valid {
		val := userAgent.String
		entry.UserAgent = &val
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &entry.Details); err != nil {
			return nil, fmt.Errorf("unmarshal security log details: %w", err)
		}
	}

	return &entry, nil
}

// ListByUser returns the user's audit records since the given time, newest first.
func (r *SecurityLogRepository) ListByUser(ctx context.Context, userID string, since time.Time, limit int) ([]domain.SecurityLog, error) {
	query := r.builder.
		Select(securityLogColumns...).
		From("auth.security_logs").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.GtOrEq{"created_at": since}).
		OrderBy("created_at DESC")

	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list security logs sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query security logs: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.SecurityLog, 0)
	for rows.Next() {
		entry, err := scanSecurityLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scan security log: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate security logs: %w", err)
	}

	return entries, nil
}

// Summarize aggregates the user's audit activity since the given time.
func (r *SecurityLogRepository) Summarize(ctx context.Context, userID string, since time.Time) (*domain.SecuritySummary, error) {
	stmt := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE event_type = 'login_failed'),
			COUNT(*) FILTER (WHERE event_type = 'login_success'),
			COUNT(*) FILTER (WHERE event_type = 'otp_failed'),
			COUNT(*) FILTER (WHERE event_type = 'login_locked'),
			COUNT(DISTINCT ip) FILTER (WHERE ip IS NOT NULL),
			COUNT(*) FILTER (WHERE severity IN ('high', 'critical'))
		  FROM auth.security_logs
		 WHERE user_id = $1
		   AND created_at >= $2
	`

	var summary domain.SecuritySummary
	if err := r.exec.QueryRow(ctx, stmt, userID, since).Scan(
		&summary.TotalEvents,
		&summary.FailedLogins,
		&summary.SuccessfulLogins,
		&summary.OTPFailures,
		&summary.AccountLocks,
		&summary.UniqueIPs,
		&summary.HighSeverityEvents,
	); err != nil {
		return nil, fmt.Errorf("scan security summary: %w", err)
	}

	recent, err := r.ListByUser(ctx, userID, since, 10)
	if err != nil {
		return nil, err
	}
	summary.RecentEvents = recent

	return &summary, nil
}

// CountFailuresByIP counts failed login and OTP events from an IP across all users.
func (r *SecurityLogRepository) CountFailuresByIP(ctx context.Context, ip string, since time.Time) (int, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From("auth.security_logs").
		Where(squirrel.Eq{"ip": ip}).
		Where(squirrel.Eq{"event_type": []string{string(domain.EventLoginFailed), string(domain.EventOTPFailed)}}).
		Where(squirrel.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count failures sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("scan failure count: %w", err)
	}

	return int(count), nil
}

// CountLocksByUser counts lockout events for the user since the given time.
func (r *SecurityLogRepository) CountLocksByUser(ctx context.Context, userID string, since time.Time) (int, error) {
	stmt, args, err := r.builder.
		Select("COUNT(*)").
		From("auth.security_logs").
		Where(squirrel.Eq{"user_id": userID, "event_type": domain.EventLoginLocked}).
		Where(squirrel.GtOrEq{"created_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count locks sql: %w", err)
	}

	var count int64
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("scan lock count: %w", err)
	}

	return int(count), nil
}

// DeleteOlderThan purges audit records past the retention cutoff.
func (r *SecurityLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("auth.security_logs").
		Where(squirrel.Lt{"created_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete security logs sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete security logs: %w", err)
	}

	return ct.RowsAffected(), nil
}

var _ port.SecurityLogRepository = (*SecurityLogRepository)(nil)
