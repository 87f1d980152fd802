package usecase

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/infra/config"
	"github.com/bazarhub/auth-service/internal/infra/security"
)

// testEnv wires the full service graph over in-memory stubs.
type testEnv struct {
	users        *stubUserRepo
	otps         *stubOTPRepo
	tokens       *stubTokenRepo
	sessions     *stubSessionRepo
	logs         *stubSecurityLogRepo
	counters     *stubCounterCache
	sms          *stubSMS
	email        *stubEmail
	events       *stubPublisher
	geo          *stubGeo
	hasher       *security.Hasher
	jwt          *security.TokenManager
	audit        *SecurityService
	suspicion    *SuspicionService
	otp          *OTPService
	verification *VerificationService
	reset        *PasswordResetService
	auth         *AuthService
	registration *RegistrationService
	session      *SessionService
	now          time.Time
}

func newTestEnv(t *testing.T, users ...domain.User) *testEnv {
	t.Helper()

	log := zaptest.NewLogger(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	env := &testEnv{
		users:    newStubUserRepo(users...),
		otps:     &stubOTPRepo{},
		tokens:   &stubTokenRepo{},
		sessions: &stubSessionRepo{},
		logs:     &stubSecurityLogRepo{},
		counters: newStubCounterCache(),
		sms:      &stubSMS{},
		email:    newStubEmail(),
		events:   &stubPublisher{},
		geo:      &stubGeo{labels: map[string]string{}},
		now:      now,
	}

	env.hasher = security.NewHasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
	})

	jwtManager, err := security.NewTokenManager("test-secret", "auth-service", 15*time.Minute, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	env.jwt = jwtManager.WithClock(clock)

	env.audit = NewSecurityService(config.SecuritySettings{
		MaxFailedLogins:   3,
		AccountLockTime:   30 * time.Minute,
		IPBlockTime:       time.Hour,
		LogRetention:      90 * 24 * time.Hour,
		SummaryPeriodDays: 30,
	}, env.users, env.logs, env.counters, env.events, env.email, log)
	env.audit.WithClock(clock)

	env.suspicion = NewSuspicionService(env.counters, env.geo, log)
	env.suspicion.WithClock(clock)

	env.otp = NewOTPService(env.otps, env.counters, env.sms, env.email, env.audit, log)
	env.otp.WithClock(clock)

	env.verification = NewVerificationService(env.users, env.tokens, env.otp, env.email, env.audit, log)
	env.verification.WithClock(clock)

	env.reset = NewPasswordResetService(env.users, env.tokens, env.sessions, env.otp, env.hasher, stubStrength{}, env.events, env.email, env.audit, log)
	env.reset.WithClock(clock)

	env.auth = NewAuthService(env.users, env.sessions, env.tokens, env.hasher, stubStrength{}, env.jwt, env.geo, env.otp, env.suspicion, env.audit, env.events, env.email, log)
	env.auth.WithClock(clock)

	env.registration = NewRegistrationService(env.users, env.hasher, stubStrength{}, env.otp, env.verification, env.auth, env.audit, env.events, log)
	env.registration.WithClock(clock)

	env.session = NewSessionService(env.sessions, env.audit, log)
	env.session.WithClock(clock)

	return env
}

func (e *testEnv) hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func (e *testEnv) activeUser(t *testing.T, username, email, password string) domain.User {
	t.Helper()
	user := domain.User{
		ID:                 username + "-id",
		Username:           username,
		Email:              email,
		PasswordHash:       e.hashPassword(t, password),
		PasswordAlgo:       security.PasswordAlgo,
		Status:             domain.UserStatusActive,
		IsActive:           true,
		EmailVerified:      true,
		RegisteredAt:       e.now.Add(-24 * time.Hour),
		LastPasswordChange: e.now.Add(-24 * time.Hour),
	}
	e.users.users[user.ID] = user
	return user
}
