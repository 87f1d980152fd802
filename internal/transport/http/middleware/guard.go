package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/usecase"
)

const (
	rateLimitProblemType  = "https://auth.bazarhub.example.com/errors/rate-limit-exceeded"
	rateLimitProblemTitle = "Rate Limit Exceeded"
)

// ProblemDetails represents an RFC 9457 compatible error payload for throttled requests.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// IPBlockGate rejects requests from administratively blocked source addresses
// before any credentials are inspected.
func IPBlockGate(security *usecase.SecurityService, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		if security.IsIPBlocked(c.Request.Context(), ip) {
			logger.Warn("request from blocked ip rejected",
				zap.String("trace_id", GetTraceID(c)),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":    "access denied",
				"trace_id": GetTraceID(c),
			})
			return
		}

		c.Next()
	}
}

// Throttle enforces the per-IP counter for the given action. The check and
// the increment are split so a request denied here never advances the
// counter, while every request that proceeds is counted exactly once.
func Throttle(limiter *usecase.RateLimitService, security *usecase.SecurityService, action usecase.RateLimitAction, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()

		allowed, info, err := limiter.Check(ctx, action, ip)
		if err != nil {
			logger.Warn("rate limit check failed",
				zap.String("action", string(action)),
				zap.Error(err),
			)
			c.Next()
			return
		}

		applyRateLimitHeaders(c, info, allowed)

		if !allowed {
			if security != nil {
				security.LogEvent(ctx, usecase.SecurityEventInput{
					EventType: domain.EventRateLimitExceeded,
					Severity:  domain.SeverityMedium,
					IP:        ip,
					UserAgent: c.Request.UserAgent(),
					Details: map[string]any{
						"action": string(action),
						"limit":  info.Limit,
					},
				})
			}
			respondRateLimited(c, info)
			return
		}

		if _, err := limiter.Increment(ctx, action, ip); err != nil {
			logger.Warn("rate limit increment failed",
				zap.String("action", string(action)),
				zap.Error(err),
			)
		}

		c.Next()
	}
}

func applyRateLimitHeaders(c *gin.Context, info *usecase.RateLimitInfo, allowed bool) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))

	if !allowed {
		seconds := int(math.Ceil(info.Window.Seconds()))
		if seconds < 0 {
			seconds = 0
		}
		headers.Set("Retry-After", strconv.Itoa(seconds))
	}
}

func respondRateLimited(c *gin.Context, info *usecase.RateLimitInfo) {
	retrySeconds := int(math.Ceil(info.Window.Seconds()))
	if retrySeconds < 0 {
		retrySeconds = 0
	}

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	problem := ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      rateLimitProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     "Too many requests. Try again later.",
		Instance:   instance,
		RetryAfter: retrySeconds,
		TraceID:    GetTraceID(c),
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, problem)
}
