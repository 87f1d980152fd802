package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bazarhub/auth-service/internal/infra/config"
	"github.com/bazarhub/auth-service/internal/infra/security"
	"github.com/bazarhub/auth-service/internal/transport/http/handlers"
	"github.com/bazarhub/auth-service/internal/transport/http/middleware"
	"github.com/bazarhub/auth-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth          *usecase.AuthService
	Registration  *usecase.RegistrationService
	OTP           *usecase.OTPService
	PasswordReset *usecase.PasswordResetService
	Verification  *usecase.VerificationService
	Sessions      *usecase.SessionService
	Security      *usecase.SecurityService
	RateLimiter   *usecase.RateLimitService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	Tokens   *security.TokenManager
	Metrics  *middleware.HTTPMetrics
	Database DatabaseChecker
	Cache    CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(deps.Config.App.CORSOrigins))

	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.RequireAuth(deps.Tokens)
	trackActivity := middleware.SessionActivity(deps.Services.Sessions)
	ipGate := middleware.IPBlockGate(deps.Services.Security, deps.Logger)

	throttle := func(action usecase.RateLimitAction) gin.HandlerFunc {
		return middleware.Throttle(deps.Services.RateLimiter, deps.Services.Security, action, deps.Logger)
	}

	api := r.Group("/api/v1")
	api.Use(ipGate)
	{
		authGroup := api.Group("/auth")

		authHandler := handlers.NewAuthHandler(deps.Services.Auth)
		registrationHandler := handlers.NewRegistrationHandler(deps.Services.Registration)
		otpHandler := handlers.NewOTPHandler(deps.Services.OTP)
		resetHandler := handlers.NewPasswordResetHandler(deps.Services.PasswordReset)
		verificationHandler := handlers.NewVerificationHandler(deps.Services.Verification)
		sessionHandler := handlers.NewSessionHandler(deps.Services.Sessions)
		securityHandler := handlers.NewSecurityHandler(deps.Services.Security)

		authGroup.POST("/register", throttle(usecase.ActionRegistration), registrationHandler.Register)
		authGroup.POST("/login", throttle(usecase.ActionLogin), authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		authGroup.POST("/logout-all", authMiddleware, authHandler.LogoutAll)

		otpGroup := authGroup.Group("/otp")
		otpGroup.POST("/send", throttle(usecase.ActionOTPRequest), otpHandler.Send)
		otpGroup.POST("/verify", otpHandler.Verify)

		passwordGroup := authGroup.Group("/password")
		passwordGroup.POST("/change", authMiddleware, trackActivity, authHandler.ChangePassword)

		resetGroup := passwordGroup.Group("/reset")
		resetGroup.POST("/request", throttle(usecase.ActionPasswordReset), resetHandler.Request)
		resetGroup.POST("/verify", resetHandler.Verify)
		resetGroup.POST("/confirm", resetHandler.Confirm)

		verifyGroup := authGroup.Group("/verify")
		verifyGroup.GET("/email", verificationHandler.ConfirmEmail)
		verifyGroup.POST("/email/send", authMiddleware, trackActivity, throttle(usecase.ActionEmailVerification), verificationHandler.SendEmail)
		verifyGroup.POST("/phone/send", authMiddleware, trackActivity, throttle(usecase.ActionPhoneVerification), verificationHandler.SendPhone)
		verifyGroup.POST("/phone", authMiddleware, trackActivity, verificationHandler.ConfirmPhone)

		sessionGroup := api.Group("/sessions")
		sessionGroup.Use(authMiddleware, trackActivity)
		sessionGroup.GET("", sessionHandler.List)
		sessionGroup.DELETE("/:id", sessionHandler.Terminate)

		securityGroup := api.Group("/security")
		securityGroup.Use(authMiddleware, trackActivity)
		securityGroup.GET("/summary", securityHandler.Summary)
	}

	// Operator surface, only mounted when an admin key is configured. It
	// bypasses the IP gate so operators can act from a blocked address.
	if key := deps.Config.Security.AdminAPIKey; key != "" {
		adminHandler := handlers.NewAdminHandler(deps.Services.Security)

		admin := r.Group("/admin/v1/security")
		admin.Use(middleware.RequireAdminKey(key))
		admin.POST("/lock", adminHandler.LockAccount)
		admin.POST("/unlock", adminHandler.UnlockAccount)
		admin.POST("/block-ip", adminHandler.BlockIP)
		admin.GET("/ip/:ip", adminHandler.IPStatus)
	}

	return r
}
