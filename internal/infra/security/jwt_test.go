package security

import (
	"errors"
	"testing"
	"time"
)

func newTestTokenManager(t *testing.T, now time.Time) *TokenManager {
	t.Helper()

	manager, err := NewTokenManager("test-secret", "auth-service", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	return manager.WithClock(func() time.Time { return now })
}

func TestTokenManagerIssueAndParse(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	manager := newTestTokenManager(t, now)

	pair, err := manager.IssuePair("user-1", "")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}
	if pair.SessionKey == "" {
		t.Fatalf("expected a generated session key")
	}

	access, err := manager.ParseAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess returned error: %v", err)
	}
	if access.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", access.UserID)
	}
	if access.SessionKey != pair.SessionKey {
		t.Fatalf("expected session key to round-trip")
	}

	refresh, err := manager.ParseRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("ParseRefresh returned error: %v", err)
	}
	if refresh.SessionKey != pair.SessionKey {
		t.Fatalf("expected refresh token to carry the same session key")
	}
}

func TestTokenManagerRejectsWrongType(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	manager := newTestTokenManager(t, now)

	pair, err := manager.IssuePair("user-1", "session-key")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	if _, err := manager.ParseAccess(pair.RefreshToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
	if _, err := manager.ParseRefresh(pair.AccessToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("expected ErrWrongTokenType, got %v", err)
	}
}

func TestTokenManagerRejectsExpired(t *testing.T) {
	issuedAt := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	manager := newTestTokenManager(t, issuedAt)

	pair, err := manager.IssuePair("user-1", "session-key")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	manager.WithClock(func() time.Time { return issuedAt.Add(16 * time.Minute) })

	if _, err := manager.ParseAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired access token, got %v", err)
	}

	if _, err := manager.ParseRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("expected refresh token to remain valid, got %v", err)
	}
}

func TestTokenManagerRejectsTampering(t *testing.T) {
	now := time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)
	manager := newTestTokenManager(t, now)

	other, err := NewTokenManager("other-secret", "auth-service", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	pair, err := other.WithClock(func() time.Time { return now }).IssuePair("user-1", "session-key")
	if err != nil {
		t.Fatalf("IssuePair returned error: %v", err)
	}

	if _, err := manager.ParseAccess(pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign signature, got %v", err)
	}
}
