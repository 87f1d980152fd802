package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/transport/http/middleware"
	"github.com/bazarhub/auth-service/internal/usecase"
)

// SessionHandler exposes the caller's device session list.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// List returns the caller's sessions, flagging the one backing this request.
func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionKey, _ := middleware.GetSessionKey(c)

	views, err := h.sessions.List(c.Request.Context(), userID, sessionKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list sessions"))
		return
	}

	entries := make([]SessionEntry, 0, len(views))
	for _, v := range views {
		session := v.Session
		entries = append(entries, SessionEntry{
			SessionSummary: newSessionSummary(&session),
			IsCurrent:      v.IsCurrent,
		})
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: entries})
}

// Terminate closes one of the caller's sessions by ID. Sessions belonging
// to other users are reported as not found.
func (h *SessionHandler) Terminate(c *gin.Context) {
	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session id is required"))
		return
	}

	if err := h.sessions.Terminate(c.Request.Context(), userID, sessionID, c.ClientIP()); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
		}, http.StatusInternalServerError, "failed to terminate session")
		return
	}

	c.Status(http.StatusNoContent)
}
