package domain

import "time"

// OTPPurpose distinguishes the workflow an OTP code was issued for. Codes
// issued for one purpose never validate another.
type OTPPurpose string

const (
	OTPPurposeLogin         OTPPurpose = "login"
	OTPPurposeRegister      OTPPurpose = "register"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
	OTPPurposeEmailVerify   OTPPurpose = "email_verify"
	OTPPurposePhoneVerify   OTPPurpose = "phone_verify"
)

// DeliveryChannel names the transport an OTP is dispatched over.
type DeliveryChannel string

const (
	DeliveryChannelSMS   DeliveryChannel = "sms"
	DeliveryChannelEmail DeliveryChannel = "email"
)

// OTP issuance and verification policy.
const (
	OTPCodeLength    = 6
	OTPLifetime      = 5 * time.Minute
	OTPMaxAttempts   = 3
	OTPContactLimit  = 5
	OTPContactWindow = time.Hour
	OTPPerIPLimit    = 10
	OTPPerIPWindow   = time.Hour
)

// OTPCode mirrors the persisted representation of an issued one-time code.
// Only the SHA-256 hash of the code is stored.
type OTPCode struct {
	ID        string
	UserID    *string
	Contact   string
	Channel   DeliveryChannel
	Purpose   OTPPurpose
	CodeHash  string
	Attempts  int
	Used      bool
	IP        *string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// IsExpired reports whether the code lifetime has elapsed at now.
func (o *OTPCode) IsExpired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// IsValid reports whether the code can still be redeemed at now.
func (o *OTPCode) IsValid(now time.Time) bool {
	return !o.Used && !o.IsExpired(now) && o.Attempts < OTPMaxAttempts
}
