package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/transport/http/middleware"
	"github.com/bazarhub/auth-service/internal/usecase"
)

// VerificationHandler exposes email and phone ownership confirmation.
type VerificationHandler struct {
	verification *usecase.VerificationService
}

// NewVerificationHandler constructs VerificationHandler.
func NewVerificationHandler(verification *usecase.VerificationService) *VerificationHandler {
	return &VerificationHandler{verification: verification}
}

// SendEmail dispatches a verification link, optionally targeting a new
// address the caller wants to switch to.
func (h *VerificationHandler) SendEmail(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req SendEmailVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid payload"))
		return
	}

	err := h.verification.SendEmailVerification(c.Request.Context(), userID, strings.TrimSpace(req.NewEmail), c.ClientIP())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrAlreadyVerified, Status: http.StatusConflict, Message: "email is already verified"},
			{Err: usecase.ErrOTPDeliveryFailed, Status: http.StatusBadGateway, Message: "failed to send verification email"},
		}, http.StatusInternalServerError, "failed to send verification email")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "verification email sent"})
}

// ConfirmEmail redeems a verification link token. The token travels as a
// query parameter so the link can be opened straight from the mail client.
func (h *VerificationHandler) ConfirmEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "token is required"))
		return
	}

	user, err := h.verification.ConfirmEmail(c.Request.Context(), token, c.ClientIP())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrVerificationTokenInvalid, Status: http.StatusBadRequest, Message: "invalid or expired verification link"},
		}, http.StatusInternalServerError, "failed to confirm email")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "email verified",
		"email":   user.Email,
	})
}

// SendPhone dispatches a verification code to the caller's phone on file.
func (h *VerificationHandler) SendPhone(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	result, err := h.verification.SendPhoneVerification(c.Request.Context(), userID, c.ClientIP())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoPhoneOnFile, Status: http.StatusBadRequest, Message: "no phone number on file"},
			{Err: usecase.ErrAlreadyVerified, Status: http.StatusConflict, Message: "phone is already verified"},
			{Err: usecase.ErrOTPDeliveryFailed, Status: http.StatusBadGateway, Message: "failed to send verification code"},
		}, http.StatusInternalServerError, "failed to send verification code")
		return
	}

	c.JSON(http.StatusOK, SendPhoneVerificationResponse{
		MaskedContact: result.MaskedContact,
		ExpiresIn:     int(result.ExpiresIn.Seconds()),
	})
}

// ConfirmPhone redeems a phone verification code for the caller.
func (h *VerificationHandler) ConfirmPhone(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ConfirmPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code is required"))
		return
	}

	err := h.verification.ConfirmPhone(c.Request.Context(), userID, strings.TrimSpace(req.Code), c.ClientIP())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNoPhoneOnFile, Status: http.StatusBadRequest, Message: "no phone number on file"},
			{Err: usecase.ErrOTPNotFound, Status: http.StatusNotFound, Message: "no active verification code"},
			{Err: usecase.ErrOTPExpired, Status: http.StatusGone, Message: "verification code expired"},
			{Err: usecase.ErrOTPTooManyAttempts, Status: http.StatusTooManyRequests, Message: "too many verification attempts"},
		}, http.StatusInternalServerError, "failed to confirm phone")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "phone verified"})
}
