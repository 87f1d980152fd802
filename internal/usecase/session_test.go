package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bazarhub/auth-service/internal/core/domain"
)

func TestSessionListMarksCurrent(t *testing.T) {
	env := newTestEnv(t)
	env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	ctx := context.Background()

	first, err := env.auth.Login(ctx, LoginInput{Identifier: "alice", Password: "Str0ngPass!word", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	second, err := env.auth.Login(ctx, LoginInput{Identifier: "alice", Password: "Str0ngPass!word", IP: "10.0.0.2"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	views, err := env.session.List(ctx, first.User.ID, second.Tokens.SessionKey)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(views))
	}

	current := 0
	for _, view := range views {
		if view.IsCurrent {
			current++
			if view.Session.SessionKey != second.Tokens.SessionKey {
				t.Fatal("wrong session flagged as current")
			}
		}
	}
	if current != 1 {
		t.Fatalf("exactly one session should be current, got %d", current)
	}
}

func TestSessionTerminateScopedToOwner(t *testing.T) {
	env := newTestEnv(t)
	env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	env.activeUser(t, "mallory", "mallory@example.com", "Str0ngPass!word")
	ctx := context.Background()

	login, err := env.auth.Login(ctx, LoginInput{Identifier: "alice", Password: "Str0ngPass!word"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	err = env.session.Terminate(ctx, "mallory-id", login.Session.ID, "10.0.0.1")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign session must look nonexistent, got %v", err)
	}

	if err := env.session.Terminate(ctx, login.User.ID, login.Session.ID, "10.0.0.1"); err != nil {
		t.Fatalf("owner terminate: %v", err)
	}
	if !env.logs.hasEvent(domain.EventSessionTerminated) {
		t.Fatal("termination should be audited")
	}

	views, _ := env.session.List(ctx, login.User.ID, "")
	if len(views) != 0 {
		t.Fatal("terminated session must not be listed")
	}
}

func TestSessionCleanupInactive(t *testing.T) {
	env := newTestEnv(t)
	stale := domain.UserSession{
		ID:           "stale",
		UserID:       "alice-id",
		SessionKey:   "stale-key",
		IsActive:     false,
		CreatedAt:    env.now.Add(-90 * 24 * time.Hour),
		LastActivity: env.now.Add(-60 * 24 * time.Hour),
	}
	fresh := stale
	fresh.ID = "fresh"
	fresh.SessionKey = "fresh-key"
	fresh.LastActivity = env.now.Add(-time.Hour)
	env.sessions.sessions = append(env.sessions.sessions, stale, fresh)

	removed, err := env.session.CleanupInactive(context.Background())
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("only the stale session should be purged, got %d", removed)
	}
}
