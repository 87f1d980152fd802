package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	mail "gopkg.in/mail.v2"

	"github.com/bazarhub/auth-service/internal/core/port"
	"github.com/bazarhub/auth-service/internal/infra/config"
	"github.com/bazarhub/auth-service/internal/infra/logger"
)

// Mailer sends transactional mail over SMTP.
type Mailer struct {
	dialer  *mail.Dialer
	from    string
	baseURL string
	logger  *zap.Logger
}

// NewMailer constructs an SMTP-backed mailer. baseURL is used to build
// verification links.
func NewMailer(cfg config.SMTPSettings, baseURL string, log *zap.Logger) *Mailer {
	return &Mailer{
		dialer:  mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:    cfg.From,
		baseURL: baseURL,
		logger:  log,
	}
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}

	m.logger.Info("email dispatched",
		zap.String("to", logger.MaskEmail(to)),
		zap.String("subject", subject),
	)

	return nil
}

// SendOTP delivers a one-time code.
func (m *Mailer) SendOTP(ctx context.Context, email string, code string) error {
	body := fmt.Sprintf("Your verification code is %s. It expires in 5 minutes.", code)
	return m.send(ctx, email, "Your verification code", body)
}

// SendVerificationLink delivers an email address ownership proof link.
func (m *Mailer) SendVerificationLink(ctx context.Context, email string, token string) error {
	link := fmt.Sprintf("%s/api/v1/auth/email/verify?token=%s", m.baseURL, token)
	body := fmt.Sprintf("Confirm your email address by opening this link:\n\n%s\n\nThe link expires in 24 hours.", link)
	return m.send(ctx, email, "Verify your email address", body)
}

// SendSecurityAlert delivers an out-of-band security notification.
func (m *Mailer) SendSecurityAlert(ctx context.Context, email string, subject string, body string) error {
	return m.send(ctx, email, subject, body)
}

var _ port.EmailSender = (*Mailer)(nil)
