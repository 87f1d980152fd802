package usecase

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestSuspicionCleanRequest(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")

	verdict := env.suspicion.Evaluate(context.Background(), &user, "10.0.0.1", "Mozilla/5.0", "login")
	if verdict.Suspicious {
		t.Fatalf("clean request flagged: %s", verdict.Reason)
	}
	if verdict.Action != "login" {
		t.Fatalf("verdict should carry the scored action, got %q", verdict.Action)
	}
}

func TestSuspicionUserAgentDenylist(t *testing.T) {
	env := newTestEnv(t)

	agents := []string{
		"Googlebot/2.1",
		"my-CRAWLER 1.0",
		"spider",
		"best scraper ever",
	}
	for _, agent := range agents {
		verdict := env.suspicion.Evaluate(context.Background(), nil, "10.0.0.1", agent, "login")
		if !verdict.Suspicious || !strings.Contains(verdict.Reason, "suspicious user agent") {
			t.Fatalf("agent %q should be flagged, got %q", agent, verdict.Reason)
		}
	}
}

func TestSuspicionFailedAttemptVelocity(t *testing.T) {
	env := newTestEnv(t)
	env.counters.counts[failedLoginIPKey("10.0.0.1")] = 10

	verdict := env.suspicion.Evaluate(context.Background(), nil, "10.0.0.1", "Mozilla/5.0", "login")
	if !strings.Contains(verdict.Reason, "multiple failed login attempts from IP") {
		t.Fatalf("failure velocity should be flagged, got %q", verdict.Reason)
	}
}

func TestSuspicionRequestVelocitySideEffect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Each evaluation counts itself; the flag fires once the pre-increment
	// count reaches the threshold.
	for i := 0; i < 50; i++ {
		verdict := env.suspicion.Evaluate(ctx, nil, "10.0.0.1", "Mozilla/5.0", "login")
		if verdict.Suspicious {
			t.Fatalf("call %d flagged too early: %s", i+1, verdict.Reason)
		}
	}

	verdict := env.suspicion.Evaluate(ctx, nil, "10.0.0.1", "Mozilla/5.0", "login")
	if !strings.Contains(verdict.Reason, "rapid requests from IP") {
		t.Fatalf("request velocity should be flagged, got %q", verdict.Reason)
	}

	if env.counters.counts["rapid:10.0.0.1"] != 51 {
		t.Fatalf("evaluation should bump its own counter, got %d", env.counters.counts["rapid:10.0.0.1"])
	}
}

func TestSuspicionGeoMismatch(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	previousIP := "198.51.100.1"
	user.LastLoginIP = &previousIP
	env.geo.labels[previousIP] = "Berlin, DE"
	env.geo.labels["203.0.113.9"] = "Tehran, IR"

	verdict := env.suspicion.Evaluate(context.Background(), &user, "203.0.113.9", "Mozilla/5.0", "login")
	if !strings.Contains(verdict.Reason, "login from different country") {
		t.Fatalf("country change should be flagged, got %q", verdict.Reason)
	}
}

func TestSuspicionSameCountryDifferentIP(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	previousIP := "198.51.100.1"
	user.LastLoginIP = &previousIP
	env.geo.labels[previousIP] = "Berlin, DE"
	env.geo.labels["203.0.113.9"] = "Munich, DE"

	verdict := env.suspicion.Evaluate(context.Background(), &user, "203.0.113.9", "Mozilla/5.0", "login")
	if verdict.Suspicious {
		t.Fatalf("same-country move should pass, got %q", verdict.Reason)
	}
}

func TestSuspicionGeoResolutionFailureIsSilent(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	previousIP := "198.51.100.1"
	user.LastLoginIP = &previousIP
	// No labels configured, so both lookups miss.

	verdict := env.suspicion.Evaluate(context.Background(), &user, "203.0.113.9", "Mozilla/5.0", "login")
	if verdict.Suspicious {
		t.Fatalf("unresolvable addresses must not flag, got %q", verdict.Reason)
	}
}

func TestSuspicionRecentLock(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	recentlyExpired := env.now.Add(-30 * time.Minute)
	user.LockedUntil = &recentlyExpired

	verdict := env.suspicion.Evaluate(context.Background(), &user, "10.0.0.1", "Mozilla/5.0", "login")
	if !strings.Contains(verdict.Reason, "recent account lock") {
		t.Fatalf("fresh lock expiry should be flagged, got %q", verdict.Reason)
	}

	// A lock that expired long ago is no signal.
	staleExpired := env.now.Add(-2 * time.Hour)
	user.LockedUntil = &staleExpired
	verdict = env.suspicion.Evaluate(context.Background(), &user, "10.0.0.1", "Mozilla/5.0", "login")
	if verdict.Suspicious {
		t.Fatalf("stale lock should pass, got %q", verdict.Reason)
	}
}

func TestSuspicionExplicitUnlockFlag(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")

	if err := env.audit.UnlockAccount(context.Background(), user.ID, "10.0.0.1", "support"); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	verdict := env.suspicion.Evaluate(context.Background(), &user, "10.0.0.1", "Mozilla/5.0", "login")
	if !strings.Contains(verdict.Reason, "recent account lock") {
		t.Fatalf("explicit unlock should be flagged, got %q", verdict.Reason)
	}
}

func TestSuspicionReasonsConcatenate(t *testing.T) {
	env := newTestEnv(t)
	env.counters.counts[failedLoginIPKey("10.0.0.1")] = 10

	verdict := env.suspicion.Evaluate(context.Background(), nil, "10.0.0.1", "Googlebot/2.1", "login")
	if !verdict.Suspicious {
		t.Fatal("both signals should flag")
	}
	if !strings.Contains(verdict.Reason, "; ") {
		t.Fatalf("reasons should be joined with a separator, got %q", verdict.Reason)
	}
	if !strings.Contains(verdict.Reason, "multiple failed login attempts from IP") ||
		!strings.Contains(verdict.Reason, "suspicious user agent") {
		t.Fatalf("all fired reasons should appear, got %q", verdict.Reason)
	}
}

func TestSuspicionCacheFailureIsSilent(t *testing.T) {
	env := newTestEnv(t)
	env.counters.failAll = true
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")

	verdict := env.suspicion.Evaluate(context.Background(), &user, "10.0.0.1", "Mozilla/5.0", "login")
	if verdict.Suspicious {
		t.Fatalf("cache outage must read as no signal, got %q", verdict.Reason)
	}
}
