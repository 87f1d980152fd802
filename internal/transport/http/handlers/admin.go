package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bazarhub/auth-service/internal/usecase"
)

// AdminHandler exposes the operator surface: explicit account locks and
// unlocks, IP blocking, and per-IP failure inspection.
type AdminHandler struct {
	security *usecase.SecurityService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(security *usecase.SecurityService) *AdminHandler {
	return &AdminHandler{security: security}
}

// LockAccount locks the account for the requested duration.
func (h *AdminHandler) LockAccount(c *gin.Context) {
	var req AdminLockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id and reason are required"))
		return
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	lockedUntil, err := h.security.LockAccount(c.Request.Context(), req.UserID, duration, req.Reason, c.ClientIP())
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "no such user"},
		}, http.StatusInternalServerError, "failed to lock account")
		return
	}

	c.JSON(http.StatusOK, AdminLockResponse{
		Message:     "account locked",
		LockedUntil: lockedUntil.UTC().Format(time.RFC3339),
	})
}

// UnlockAccount clears the account's lock and failure counter.
func (h *AdminHandler) UnlockAccount(c *gin.Context) {
	var req AdminUnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "user_id and reason are required"))
		return
	}

	if err := h.security.UnlockAccount(c.Request.Context(), req.UserID, c.ClientIP(), req.Reason); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrUserNotFound, Status: http.StatusNotFound, Message: "no such user"},
		}, http.StatusInternalServerError, "failed to unlock account")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "account unlocked"})
}

// BlockIP flags the address for the requested duration.
func (h *AdminHandler) BlockIP(c *gin.Context) {
	var req AdminBlockIPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "ip and reason are required"))
		return
	}

	duration := time.Duration(req.DurationMinutes) * time.Minute
	if err := h.security.BlockIP(c.Request.Context(), req.IP, req.Reason, duration); err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to block ip"))
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "ip blocked"})
}

// IPStatus reports the address's recent failure count and block state.
func (h *AdminHandler) IPStatus(c *gin.Context) {
	ip := c.Param("ip")
	if ip == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "ip is required"))
		return
	}

	failures, blocked, err := h.security.IPStatus(c.Request.Context(), ip)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load ip status"))
		return
	}

	c.JSON(http.StatusOK, AdminIPStatusResponse{
		IP:             ip,
		RecentFailures: failures,
		Blocked:        blocked,
	})
}
