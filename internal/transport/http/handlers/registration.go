package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/usecase"
)

// RegistrationHandler exposes account creation.
type RegistrationHandler struct {
	registration *usecase.RegistrationService
	now          func() time.Time
}

// NewRegistrationHandler constructs RegistrationHandler.
func NewRegistrationHandler(registration *usecase.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{
		registration: registration,
		now:          time.Now,
	}
}

// Register creates an account and returns a signed-in session for it.
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	result, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		Username:   strings.TrimSpace(req.Username),
		Email:      strings.TrimSpace(req.Email),
		Phone:      strings.TrimSpace(req.Phone),
		Password:   req.Password,
		OTPCode:    strings.TrimSpace(req.OTPCode),
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
		DeviceInfo: strings.TrimSpace(req.DeviceInfo),
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUsernameTaken, Status: http.StatusConflict, Message: "username already registered"},
			{Err: usecase.ErrEmailTaken, Status: http.StatusConflict, Message: "email already registered"},
			{Err: usecase.ErrPhoneTaken, Status: http.StatusConflict, Message: "phone already registered"},
			{Err: usecase.ErrOTPNotFound, Status: http.StatusBadRequest, Message: "no active verification code for this phone"},
			{Err: usecase.ErrOTPExpired, Status: http.StatusBadRequest, Message: "verification code expired"},
			{Err: usecase.ErrOTPTooManyAttempts, Status: http.StatusBadRequest, Message: "too many verification attempts"},
		}, http.StatusInternalServerError, "registration failed")
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{
		TokenPairResponse: newTokenPairResponse(&usecase.LoginResult{
			User:    result.User,
			Tokens:  result.Tokens,
			Session: result.Session,
		}, h.now().UTC()),
		User:                  newUserSummary(result.User),
		Session:               newSessionSummary(result.Session),
		PhoneVerified:         result.PhoneVerified,
		EmailVerificationSent: result.EmailVerificationSent,
	})
}
