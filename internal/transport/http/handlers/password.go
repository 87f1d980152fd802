package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/usecase"
)

const resetTokenLifetime = 15 * time.Minute

// PasswordResetHandler exposes the three-step password reset flow.
type PasswordResetHandler struct {
	reset *usecase.PasswordResetService
}

// NewPasswordResetHandler constructs PasswordResetHandler.
func NewPasswordResetHandler(reset *usecase.PasswordResetService) *PasswordResetHandler {
	return &PasswordResetHandler{reset: reset}
}

// Request dispatches a reset code to the contact's channel. An unknown
// contact is reported as 404.
func (h *PasswordResetHandler) Request(c *gin.Context) {
	var req ResetRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "contact is required"))
		return
	}

	result, err := h.reset.Request(c.Request.Context(), strings.TrimSpace(req.Contact), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "no user found for this contact"},
			{Err: usecase.ErrOTPDeliveryFailed, Status: http.StatusBadGateway, Message: "failed to deliver reset code"},
		}, http.StatusInternalServerError, "failed to start password reset")
		return
	}

	c.JSON(http.StatusOK, ResetRequestResponse{
		MaskedContact: result.MaskedContact,
		Channel:       string(result.Channel),
		ExpiresIn:     int(result.ExpiresIn.Seconds()),
	})
}

// Verify proves possession of the reset code without consuming it and
// returns a short-lived reset token.
func (h *PasswordResetHandler) Verify(c *gin.Context) {
	var req ResetVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "contact and code are required"))
		return
	}

	token, err := h.reset.VerifyCode(c.Request.Context(), strings.TrimSpace(req.Contact), strings.TrimSpace(req.Code), c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "no user found for this contact"},
			{Err: usecase.ErrOTPNotFound, Status: http.StatusNotFound, Message: "no active reset code"},
			{Err: usecase.ErrOTPExpired, Status: http.StatusGone, Message: "reset code expired"},
			{Err: usecase.ErrOTPTooManyAttempts, Status: http.StatusTooManyRequests, Message: "too many reset attempts"},
		}, http.StatusInternalServerError, "failed to verify reset code")
		return
	}

	c.JSON(http.StatusOK, ResetVerifyResponse{
		ResetToken: token,
		ExpiresIn:  int(resetTokenLifetime.Seconds()),
	})
}

// Confirm redeems the reset token and applies the new password.
func (h *PasswordResetHandler) Confirm(c *gin.Context) {
	var req ResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "contact, reset_token, and new_password are required"))
		return
	}

	err := h.reset.Confirm(c.Request.Context(), strings.TrimSpace(req.Contact), strings.TrimSpace(req.ResetToken), req.NewPassword, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "no user found for this contact"},
			{Err: usecase.ErrResetTokenInvalid, Status: http.StatusBadRequest, Message: "invalid or expired reset token"},
		}, http.StatusInternalServerError, "failed to reset password")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password has been reset"})
}
