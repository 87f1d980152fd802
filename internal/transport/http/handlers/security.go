package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/transport/http/middleware"
	"github.com/bazarhub/auth-service/internal/usecase"
)

const maxSummaryPeriodDays = 90

// SecurityHandler exposes the caller's recent security activity.
type SecurityHandler struct {
	security *usecase.SecurityService
}

// NewSecurityHandler constructs SecurityHandler.
func NewSecurityHandler(security *usecase.SecurityService) *SecurityHandler {
	return &SecurityHandler{security: security}
}

// Summary aggregates the caller's audit trail over the requested period.
func (h *SecurityHandler) Summary(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	days := 0
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxSummaryPeriodDays {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "days must be between 1 and 90"))
			return
		}
		days = parsed
	}

	summary, err := h.security.Summary(c.Request.Context(), userID, days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load security summary"))
		return
	}

	c.JSON(http.StatusOK, newSecuritySummaryResponse(summary))
}
