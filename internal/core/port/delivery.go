package port

import "context"

// SMSSender dispatches one-time codes over SMS.
type SMSSender interface {
	SendOTP(ctx context.Context, phone string, code string) error
}

// EmailSender dispatches transactional mail.
type EmailSender interface {
	SendOTP(ctx context.Context, email string, code string) error
	SendVerificationLink(ctx context.Context, email string, token string) error
	SendSecurityAlert(ctx context.Context, email string, subject string, body string) error
}
