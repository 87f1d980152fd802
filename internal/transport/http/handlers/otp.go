package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/usecase"
)

// OTPHandler exposes one-time code issuance and verification.
type OTPHandler struct {
	otp *usecase.OTPService
}

// NewOTPHandler constructs OTPHandler.
func NewOTPHandler(otp *usecase.OTPService) *OTPHandler {
	return &OTPHandler{otp: otp}
}

func parseChannel(raw string) (domain.DeliveryChannel, bool) {
	switch domain.DeliveryChannel(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.DeliveryChannelSMS:
		return domain.DeliveryChannelSMS, true
	case domain.DeliveryChannelEmail:
		return domain.DeliveryChannelEmail, true
	default:
		return "", false
	}
}

func parsePurpose(raw string) (domain.OTPPurpose, bool) {
	switch domain.OTPPurpose(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.OTPPurposeLogin:
		return domain.OTPPurposeLogin, true
	case domain.OTPPurposeRegister:
		return domain.OTPPurposeRegister, true
	case domain.OTPPurposePasswordReset:
		return domain.OTPPurposePasswordReset, true
	case domain.OTPPurposeEmailVerify:
		return domain.OTPPurposeEmailVerify, true
	case domain.OTPPurposePhoneVerify:
		return domain.OTPPurposePhoneVerify, true
	default:
		return "", false
	}
}

// Send dispatches a one-time code over the requested channel.
func (h *OTPHandler) Send(c *gin.Context) {
	var req SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "contact, channel, and purpose are required"))
		return
	}

	channel, ok := parseChannel(req.Channel)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "channel must be sms or email"))
		return
	}

	purpose, ok := parsePurpose(req.Purpose)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown purpose"))
		return
	}

	result, err := h.otp.Send(c.Request.Context(), usecase.SendOTPInput{
		Contact: strings.TrimSpace(req.Contact),
		Channel: channel,
		Purpose: purpose,
		IP:      c.ClientIP(),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrOTPDeliveryFailed, Status: http.StatusBadGateway, Message: "failed to deliver verification code"},
			{Err: usecase.ErrUnsupportedChannel, Status: http.StatusBadRequest, Message: "unsupported delivery channel"},
		}, http.StatusInternalServerError, "failed to send verification code")
		return
	}

	c.JSON(http.StatusOK, SendOTPResponse{
		MaskedContact: result.MaskedContact,
		ExpiresIn:     int(result.ExpiresIn.Seconds()),
	})
}

// Verify redeems a one-time code, consuming it on success.
func (h *OTPHandler) Verify(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "contact, code, and purpose are required"))
		return
	}

	purpose, ok := parsePurpose(req.Purpose)
	if !ok {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown purpose"))
		return
	}

	_, err := h.otp.Verify(c.Request.Context(), strings.TrimSpace(req.Contact), strings.TrimSpace(req.Code), purpose, c.ClientIP())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrOTPNotFound, Status: http.StatusNotFound, Message: "no active verification code"},
			{Err: usecase.ErrOTPExpired, Status: http.StatusGone, Message: "verification code expired"},
			{Err: usecase.ErrOTPTooManyAttempts, Status: http.StatusTooManyRequests, Message: "too many verification attempts"},
		}, http.StatusInternalServerError, "verification failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "code verified"})
}
