package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Users        *UserRepository
	OTPs         *OTPRepository
	Tokens       *TokenRepository
	Sessions     *SessionRepository
	SecurityLogs *SecurityLogRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Users:        NewUserRepository(pool),
		OTPs:         NewOTPRepository(pool),
		Tokens:       NewTokenRepository(pool),
		Sessions:     NewSessionRepository(pool),
		SecurityLogs: NewSecurityLogRepository(pool),
	}
}
