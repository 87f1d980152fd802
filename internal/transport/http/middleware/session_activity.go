package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/usecase"
)

// SessionActivity stamps the authenticated device session after the handler
// runs. Runs behind RequireAuth; requests without a session key pass through.
func SessionActivity(sessions *usecase.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if sessions == nil {
			return
		}

		if sessionKey, ok := GetSessionKey(c); ok && sessionKey != "" {
			sessions.Touch(c.Request.Context(), sessionKey)
		}
	}
}
