package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bazarhub/auth-service/internal/core/port"
	"github.com/bazarhub/auth-service/internal/infra/config"
	"github.com/bazarhub/auth-service/internal/infra/logger"
)

// KavenegarSender dispatches SMS through the Kavenegar HTTP API.
type KavenegarSender struct {
	client   *http.Client
	endpoint string
	apiKey   string
	sender   string
	logger   *zap.Logger
}

// NewKavenegarSender constructs an SMS sender for the configured gateway.
func NewKavenegarSender(cfg config.SMSSettings, log *zap.Logger) *KavenegarSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &KavenegarSender{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:   cfg.APIKey,
		sender:   cfg.Sender,
		logger:   log,
	}
}

type kavenegarResponse struct {
	Return struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"return"`
}

// SendOTP delivers a one-time code to the given phone number.
func (s *KavenegarSender) SendOTP(ctx context.Context, phone string, code string) error {
	form := url.Values{}
	form.Set("receptor", phone)
	form.Set("message", fmt.Sprintf("Your verification code is %s", code))
	if s.sender != "" {
		form.Set("sender", s.sender)
	}

	endpoint := fmt.Sprintf("%s/v1/%s/sms/send.json", s.endpoint, s.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	var payload kavenegarResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("decode sms response: %w", err)
	}

	if payload.Return.Status != 200 {
		return fmt.Errorf("sms gateway rejected message: %s", payload.Return.Message)
	}

	s.logger.Info("sms dispatched", zap.String("to", logger.MaskPhone(phone)))

	return nil
}

var _ port.SMSSender = (*KavenegarSender)(nil)
