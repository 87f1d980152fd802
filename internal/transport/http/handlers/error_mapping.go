package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/infra/security"
	"github.com/bazarhub/auth-service/internal/transport/http/middleware"
	"github.com/bazarhub/auth-service/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against the structured
// error types shared across flows, then the handler's own sentinel cases,
// falling back to a generic response. Structured errors carry payloads a
// plain status cannot: lock expiry, retry hints, remaining attempts, and
// verification challenges.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	var locked *usecase.AccountLockedError
	if errors.As(err, &locked) {
		c.JSON(http.StatusLocked, AccountLockedResponse{
			Error:       "account temporarily locked",
			LockedUntil: locked.LockedUntil,
			TraceID:     middleware.GetTraceID(c),
		})
		return
	}

	var limited *usecase.RateLimitExceededError
	if errors.As(err, &limited) {
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		if seconds < 0 {
			seconds = 0
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many requests",
			"scope":       limited.Scope,
			"retry_after": seconds,
			"trace_id":    middleware.GetTraceID(c),
		})
		return
	}

	var challenge *usecase.VerificationRequiredError
	if errors.As(err, &challenge) {
		c.JSON(http.StatusAccepted, VerificationRequiredResponse{
			Message: "additional verification required",
			Reason:  challenge.Reason,
			Methods: challenge.Methods,
		})
		return
	}

	var policy *security.PasswordValidationError
	if errors.As(err, &policy) {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, policy.Message))
		return
	}

	var invalidCode *usecase.OTPInvalidCodeError
	if errors.As(err, &invalidCode) {
		c.JSON(http.StatusBadRequest, InvalidCodeResponse{
			Error:             "invalid verification code",
			AttemptsRemaining: invalidCode.Remaining,
			TraceID:           middleware.GetTraceID(c),
		})
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}
