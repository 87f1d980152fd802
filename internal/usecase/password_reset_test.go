package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/infra/security"
)

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	env.users.update(user.ID, func(u *domain.User) { u.FailedLoginAttempts = 2 })
	ctx := context.Background()

	request, err := env.reset.Request(ctx, "alice@example.com", "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if request.Channel != domain.DeliveryChannelEmail {
		t.Fatalf("email contact should dispatch over email, got %s", request.Channel)
	}
	if !env.logs.hasEvent(domain.EventPasswordResetRequest) {
		t.Fatal("request should be audited")
	}

	code := env.email.otps["alice@example.com"]
	if code == "" {
		t.Fatal("reset code should have been mailed")
	}

	token, err := env.reset.VerifyCode(ctx, "alice@example.com", code, "10.0.0.1", "test-agent")
	if err != nil {
		t.Fatalf("verify code: %v", err)
	}
	if token == "" {
		t.Fatal("verification should issue a reset token")
	}
	stored, err := env.tokens.GetPasswordResetByHash(ctx, security.HashToken(token))
	if err != nil {
		t.Fatalf("reset token should be stored hashed: %v", err)
	}
	if stored.IP == nil || *stored.IP != "10.0.0.1" {
		t.Fatal("reset token should be bound to the requesting IP")
	}

	if err := env.reset.Confirm(ctx, "alice@example.com", token, "N3w!Passw0rd", "10.0.0.1", "test-agent"); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := env.auth.Login(ctx, LoginInput{Identifier: "alice", Password: "N3w!Passw0rd", IP: "10.0.0.1"}); err != nil {
		t.Fatalf("new password should work: %v", err)
	}

	after, _ := env.users.GetByID(ctx, user.ID)
	if after.FailedLoginAttempts != 0 {
		t.Fatal("confirmation should reset the failure counter")
	}
	if !env.logs.hasEvent(domain.EventPasswordResetSuccess) {
		t.Fatal("reset should be audited")
	}
	if env.email.alertCount() == 0 {
		t.Fatal("reset should send a security alert")
	}
	if env.events.password != 1 {
		t.Fatalf("reset should publish a password change, got %d", env.events.password)
	}
}

func TestPasswordResetUnknownContact(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.reset.Request(context.Background(), "nobody@example.com", "10.0.0.1", "")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestPasswordResetPhoneContact(t *testing.T) {
	env := newTestEnv(t)
	user := env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	phone := "+989121234567"
	env.users.update(user.ID, func(u *domain.User) { u.Phone = &phone })

	request, err := env.reset.Request(context.Background(), phone, "10.0.0.1", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if request.Channel != domain.DeliveryChannelSMS {
		t.Fatalf("phone contact should dispatch over sms, got %s", request.Channel)
	}
	if env.sms.lastCode() == "" {
		t.Fatal("reset code should have been texted")
	}
}

func TestPasswordResetTokenCannotBeReplayed(t *testing.T) {
	env := newTestEnv(t)
	env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	ctx := context.Background()

	if _, err := env.reset.Request(ctx, "alice@example.com", "10.0.0.1", ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	code := env.email.otps["alice@example.com"]

	token, err := env.reset.VerifyCode(ctx, "alice@example.com", code, "10.0.0.1", "")
	if err != nil {
		t.Fatalf("verify code: %v", err)
	}

	if err := env.reset.Confirm(ctx, "alice@example.com", token, "N3w!Passw0rd", "10.0.0.1", ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	err = env.reset.Confirm(ctx, "alice@example.com", token, "0ther!Passw0rd", "10.0.0.1", "")
	if !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("consumed token must not reset again, got %v", err)
	}

	// The verified code is retired on confirmation, so it cannot mint a
	// fresh token either.
	if _, err := env.reset.VerifyCode(ctx, "alice@example.com", code, "10.0.0.1", ""); !errors.Is(err, ErrOTPNotFound) {
		t.Fatalf("spent code must not issue another token, got %v", err)
	}
}

func TestPasswordResetRejectsForeignToken(t *testing.T) {
	env := newTestEnv(t)
	env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	env.activeUser(t, "mina", "mina@example.com", "0ther!Passw0rd")
	ctx := context.Background()

	if _, err := env.reset.Request(ctx, "mina@example.com", "10.0.0.1", ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	token, err := env.reset.VerifyCode(ctx, "mina@example.com", env.email.otps["mina@example.com"], "10.0.0.1", "")
	if err != nil {
		t.Fatalf("verify code: %v", err)
	}

	err = env.reset.Confirm(ctx, "alice@example.com", token, "N3w!Passw0rd", "10.0.0.1", "")
	if !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("token must be bound to its own account, got %v", err)
	}
}

func TestPasswordResetWeakPasswordKeepsToken(t *testing.T) {
	env := newTestEnv(t)
	env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	ctx := context.Background()

	if _, err := env.reset.Request(ctx, "alice@example.com", "10.0.0.1", ""); err != nil {
		t.Fatalf("request: %v", err)
	}
	token, err := env.reset.VerifyCode(ctx, "alice@example.com", env.email.otps["alice@example.com"], "10.0.0.1", "")
	if err != nil {
		t.Fatalf("verify code: %v", err)
	}

	if err := env.reset.Confirm(ctx, "alice@example.com", token, "weakpass", "10.0.0.1", ""); err == nil {
		t.Fatal("weak password must be rejected")
	}

	// The rejection happens before the token is redeemed, so a retry with a
	// stronger password still works.
	if err := env.reset.Confirm(ctx, "alice@example.com", token, "N3w!Passw0rd", "10.0.0.1", ""); err != nil {
		t.Fatalf("token should survive a weak-password rejection: %v", err)
	}
}

func TestPasswordResetVerifyWrongCode(t *testing.T) {
	env := newTestEnv(t)
	env.activeUser(t, "alice", "alice@example.com", "Str0ngPass!word")
	ctx := context.Background()

	if _, err := env.reset.Request(ctx, "alice@example.com", "10.0.0.1", ""); err != nil {
		t.Fatalf("request: %v", err)
	}

	_, err := env.reset.VerifyCode(ctx, "alice@example.com", "000000", "10.0.0.1", "")
	var invalid *OTPInvalidCodeError
	if !errors.As(err, &invalid) {
		t.Fatalf("wrong code should burn an attempt, got %v", err)
	}
}
