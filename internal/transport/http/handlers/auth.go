package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/infra/security"
	"github.com/bazarhub/auth-service/internal/transport/http/middleware"
	"github.com/bazarhub/auth-service/internal/usecase"
)

// AuthHandler exposes login, token refresh, logout, and password change.
type AuthHandler struct {
	auth *usecase.AuthService
	now  func() time.Time
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthService) *AuthHandler {
	return &AuthHandler{
		auth: auth,
		now:  time.Now,
	}
}

// Login authenticates a user by identifier and password. When the request
// trips the additional-verification challenge the response is 202 with the
// available channels instead of a token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), usecase.LoginInput{
		Identifier: strings.TrimSpace(req.Identifier),
		Password:   req.Password,
		OTPCode:    strings.TrimSpace(req.OTPCode),
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		DeviceInfo: strings.TrimSpace(req.DeviceInfo),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "invalid credentials"},
			{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Message: "account is disabled"},
			{Err: usecase.ErrOTPExpired, Status: http.StatusUnauthorized, Message: "verification code expired"},
			{Err: usecase.ErrOTPTooManyAttempts, Status: http.StatusUnauthorized, Message: "too many verification attempts"},
		}, http.StatusInternalServerError, "login failed")
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		TokenPairResponse: newTokenPairResponse(result, h.now().UTC()),
		User:              newUserSummary(result.User),
		Session:           newSessionSummary(result.Session),
	})
}

// Refresh exchanges a valid refresh token for a new pair bound to the same
// device session.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: security.ErrInvalidToken, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
			{Err: security.ErrWrongTokenType, Status: http.StatusUnauthorized, Message: "invalid refresh token"},
			{Err: usecase.ErrSessionRevoked, Status: http.StatusUnauthorized, Message: "session has been revoked"},
			{Err: usecase.ErrAccountDisabled, Status: http.StatusForbidden, Message: "account is disabled"},
		}, http.StatusInternalServerError, "token refresh failed")
		return
	}

	c.JSON(http.StatusOK, TokenPairResponse{
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(result.Tokens.AccessExpiresAt.Sub(h.now().UTC()).Seconds()),
	})
}

// Logout terminates the caller's current device session.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionKey, _ := middleware.GetSessionKey(c)

	if err := h.auth.Logout(c.Request.Context(), userID, sessionKey, c.ClientIP()); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
		return
	}

	c.Status(http.StatusNoContent)
}

// LogoutAll terminates every device session except the current one.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionKey, _ := middleware.GetSessionKey(c)

	closed, err := h.auth.LogoutAll(c.Request.Context(), userID, sessionKey, c.ClientIP())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to terminate sessions"))
		return
	}

	c.JSON(http.StatusOK, LogoutAllResponse{SessionsClosed: closed})
}

// ChangePassword verifies the current password and applies a new one,
// revoking all other device sessions.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current_password and new_password are required"))
		return
	}

	sessionKey, _ := middleware.GetSessionKey(c)

	err := h.auth.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword, sessionKey, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Message: "current password is incorrect"},
		}, http.StatusInternalServerError, "password change failed")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password changed"})
}
