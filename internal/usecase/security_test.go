package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bazarhub/auth-service/internal/core/domain"
)

func TestHandleFailedLoginLocksAtThreshold(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	ctx := context.Background()

	for i := 1; i < 3; i++ {
		locked, err := env.audit.HandleFailedLogin(ctx, &user, "10.0.0.1", "test-agent")
		if err != nil {
			t.Fatalf("handle failed login: %v", err)
		}
		if locked {
			t.Fatalf("attempt %d should not lock yet", i)
		}
	}

	locked, err := env.audit.HandleFailedLogin(ctx, &user, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("handle failed login: %v", err)
	}
	if !locked {
		t.Fatal("third failure should lock the account")
	}

	stored, _ := env.users.GetByID(ctx, user.ID)
	if !stored.IsLocked(env.now) {
		t.Fatal("lock should be persisted")
	}
	if !stored.LockedUntil.Equal(env.now.Add(30 * time.Minute)) {
		t.Fatalf("lock expiry wrong: %s", stored.LockedUntil)
	}

	if !env.logs.hasEvent(domain.EventLoginLocked) {
		t.Fatal("lock should produce a login_locked entry")
	}
	if env.events.locked != 1 {
		t.Fatalf("lock should publish once, got %d", env.events.locked)
	}
	if env.email.alertCount() != 1 {
		t.Fatalf("lock should alert by email once, got %d", env.email.alertCount())
	}
}

func TestHandleFailedLoginRelockAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	ctx := context.Background()

	// A previous lock ran out on its own, so the failure counter was never
	// reset. The next failure locks again and must announce it again.
	expired := env.now.Add(-time.Minute)
	user.FailedLoginAttempts = 3
	user.LockedUntil = &expired
	env.users.users[user.ID] = user

	locked, err := env.audit.HandleFailedLogin(ctx, &user, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("handle failed login: %v", err)
	}
	if !locked {
		t.Fatal("failure past the threshold should re-lock")
	}

	if !env.logs.hasEvent(domain.EventLoginLocked) {
		t.Fatal("re-lock should produce a login_locked entry")
	}
	if env.email.alertCount() != 1 {
		t.Fatalf("re-lock should alert by email, got %d alerts", env.email.alertCount())
	}
}

func TestHandleFailedLoginTracksPerIPCounter(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")

	if _, err := env.audit.HandleFailedLogin(context.Background(), &user, "10.0.0.9", ""); err != nil {
		t.Fatalf("handle failed login: %v", err)
	}

	if env.counters.counts[failedLoginIPKey("10.0.0.9")] != 1 {
		t.Fatal("per-IP failure counter should be incremented")
	}
}

func TestLockAccountExplicit(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	ctx := context.Background()

	lockedUntil, err := env.audit.LockAccount(ctx, user.ID, time.Hour, "operator request", "10.0.0.1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !lockedUntil.Equal(env.now.Add(time.Hour)) {
		t.Fatalf("lock expiry wrong: %s", lockedUntil)
	}

	stored, _ := env.users.GetByID(ctx, user.ID)
	if !stored.IsLocked(env.now) {
		t.Fatal("lock should be persisted")
	}
	if !env.logs.hasEvent(domain.EventLoginLocked) {
		t.Fatal("explicit lock should produce a login_locked entry")
	}
	if env.events.locked != 1 {
		t.Fatalf("explicit lock should publish once, got %d", env.events.locked)
	}
	if env.email.alertCount() != 1 {
		t.Fatalf("explicit lock should alert by email, got %d", env.email.alertCount())
	}
}

func TestLockAccountUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.audit.LockAccount(context.Background(), "missing", 0, "operator request", "10.0.0.1")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestIPStatusCountsRecentFailures(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := env.audit.HandleFailedLogin(ctx, &user, "203.0.113.7", ""); err != nil {
			t.Fatalf("handle failed login: %v", err)
		}
	}

	failures, blocked, err := env.audit.IPStatus(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("ip status: %v", err)
	}
	if failures != 2 {
		t.Fatalf("expected 2 recent failures, got %d", failures)
	}
	if blocked {
		t.Fatal("address should not be blocked yet")
	}

	if err := env.audit.BlockIP(ctx, "203.0.113.7", "abuse", 0); err != nil {
		t.Fatalf("block ip: %v", err)
	}
	if _, blocked, _ := env.audit.IPStatus(ctx, "203.0.113.7"); !blocked {
		t.Fatal("block state should be reported")
	}
}

func TestUnlockAccount(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	lockedUntil := env.now.Add(30 * time.Minute)
	env.users.update(user.ID, func(u *domain.User) {
		u.FailedLoginAttempts = 3
		u.LockedUntil = &lockedUntil
	})

	if err := env.audit.UnlockAccount(context.Background(), user.ID, "10.0.0.1", "support request"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	stored, _ := env.users.GetByID(context.Background(), user.ID)
	if stored.LockedUntil != nil || stored.FailedLoginAttempts != 0 {
		t.Fatal("unlock should clear both lock and failure counter")
	}
	if !env.logs.hasEvent(domain.EventAccountUnlocked) {
		t.Fatal("unlock should be audited")
	}
	if !env.counters.flags[recentLockKey(user.ID)] {
		t.Fatal("unlock should flag the account for the recent-lock heuristic")
	}
}

func TestUnlockUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	err := env.audit.UnlockAccount(context.Background(), "missing", "10.0.0.1", "")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestIPBlocking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if env.audit.IsIPBlocked(ctx, "203.0.113.7") {
		t.Fatal("fresh address should not be blocked")
	}

	if err := env.audit.BlockIP(ctx, "203.0.113.7", "abuse", 0); err != nil {
		t.Fatalf("block: %v", err)
	}

	if !env.audit.IsIPBlocked(ctx, "203.0.113.7") {
		t.Fatal("address should be blocked")
	}
	if !env.logs.hasEvent(domain.EventIPBlocked) {
		t.Fatal("block should be audited")
	}
	if env.counters.ttls["blocked_ip:203.0.113.7"] != time.Hour {
		t.Fatal("zero duration should fall back to the configured block time")
	}
}

func TestIsIPBlockedFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.counters.failAll = true

	if env.audit.IsIPBlocked(context.Background(), "203.0.113.7") {
		t.Fatal("block check must fail open when the cache is down")
	}
}

func TestLogEventSwallowsStoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.logs.insertErr = errors.New("store down")

	// Must not panic or error; the business operation goes on.
	env.audit.LogEvent(context.Background(), SecurityEventInput{
		EventType: domain.EventLoginFailed,
		Severity:  domain.SeverityMedium,
		IP:        "10.0.0.1",
	})

	if env.events.security != 0 {
		t.Fatal("nothing should be published when the write failed")
	}
}

func TestSecuritySummary(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	ctx := context.Background()

	for _, event := range []domain.SecurityEventType{
		domain.EventLoginFailed,
		domain.EventLoginFailed,
		domain.EventLoginSuccess,
		domain.EventOTPFailed,
		domain.EventLoginLocked,
	} {
		env.audit.LogEvent(ctx, SecurityEventInput{
			UserID:    &user.ID,
			EventType: event,
			Severity:  domain.SeverityMedium,
			IP:        "10.0.0.1",
		})
	}

	summary, err := env.audit.Summary(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.PeriodDays != 30 {
		t.Fatalf("default period should apply, got %d", summary.PeriodDays)
	}
	if summary.TotalEvents != 5 || summary.FailedLogins != 2 || summary.SuccessfulLogins != 1 || summary.OTPFailures != 1 || summary.AccountLocks != 1 {
		t.Fatalf("summary counts wrong: %+v", summary)
	}
	if summary.UniqueIPs != 1 {
		t.Fatalf("unique ips wrong: %d", summary.UniqueIPs)
	}
}

func TestCleanupLogs(t *testing.T) {
	env := newTestEnv(t)
	old := domain.SecurityLog{
		ID:        "old",
		EventType: domain.EventLoginFailed,
		Severity:  domain.SeverityLow,
		CreatedAt: env.now.Add(-100 * 24 * time.Hour),
	}
	recent := old
	recent.ID = "recent"
	recent.CreatedAt = env.now.Add(-time.Hour)
	env.logs.entries = append(env.logs.entries, old, recent)

	removed, err := env.audit.CleanupLogs(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("should remove exactly the stale row, got %d", removed)
	}
	if len(env.logs.entries) != 1 || env.logs.entries[0].ID != "recent" {
		t.Fatal("recent entries must survive cleanup")
	}
}
