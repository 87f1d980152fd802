package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/bazarhub/auth-service/internal/core/port"
	"github.com/bazarhub/auth-service/internal/infra/config"
	"github.com/bazarhub/auth-service/internal/infra/database"
	"github.com/bazarhub/auth-service/internal/infra/email"
	"github.com/bazarhub/auth-service/internal/infra/geoip"
	kafkainfra "github.com/bazarhub/auth-service/internal/infra/kafka"
	"github.com/bazarhub/auth-service/internal/infra/logger"
	redisinfra "github.com/bazarhub/auth-service/internal/infra/redis"
	"github.com/bazarhub/auth-service/internal/infra/security"
	"github.com/bazarhub/auth-service/internal/infra/sms"
	postgresrepo "github.com/bazarhub/auth-service/internal/repository/postgres"
	redisrepo "github.com/bazarhub/auth-service/internal/repository/redis"
	"github.com/bazarhub/auth-service/internal/transport/http/middleware"
	"github.com/bazarhub/auth-service/internal/transport/http/routes"
	"github.com/bazarhub/auth-service/internal/usecase"
)

const maintenanceInterval = time.Hour

// Application owns the wired service graph and the HTTP server lifecycle.
type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client

	otp          *usecase.OTPService
	verification *usecase.VerificationService
	sessions     *usecase.SessionService
	security     *usecase.SecurityService
}

// New wires configuration, infrastructure, repositories, and services into a
// runnable application.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	tokenManager, err := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init token manager: %w", err)
	}

	hasher := security.NewHasher(security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	})
	strength := security.NewStrengthValidator(0, cfg.Security.MinPasswordScore)

	repos := postgresrepo.NewRepositories(pool)
	counters := redisrepo.NewCounterRepository(redisClient.Client(), cfg.Redis.KeyPrefix)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	mailer := email.NewMailer(cfg.SMTP, cfg.App.BaseURL, log)
	smsSender := sms.NewKavenegarSender(cfg.SMS, log)
	geoResolver := geoip.NewStaticResolver(nil)

	securityService := usecase.NewSecurityService(cfg.Security, repos.Users, repos.SecurityLogs, counters, eventPublisher, mailer, log)
	suspicionService := usecase.NewSuspicionService(counters, geoResolver, log)
	rateLimitService := usecase.NewRateLimitService(counters, log)
	otpService := usecase.NewOTPService(repos.OTPs, counters, smsSender, mailer, securityService, log)
	verificationService := usecase.NewVerificationService(repos.Users, repos.Tokens, otpService, mailer, securityService, log)
	sessionService := usecase.NewSessionService(repos.Sessions, securityService, log)
	authService := usecase.NewAuthService(repos.Users, repos.Sessions, repos.Tokens, hasher, strength, tokenManager, geoResolver, otpService, suspicionService, securityService, eventPublisher, mailer, log)
	resetService := usecase.NewPasswordResetService(repos.Users, repos.Tokens, repos.Sessions, otpService, hasher, strength, eventPublisher, mailer, securityService, log)
	registrationService := usecase.NewRegistrationService(repos.Users, hasher, strength, otpService, verificationService, authService, securityService, eventPublisher, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		log.Warn("failed to register http metrics", zap.Error(err))
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Tokens:   tokenManager,
		Metrics:  metrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Auth:          authService,
			Registration:  registrationService,
			OTP:           otpService,
			PasswordReset: resetService,
			Verification:  verificationService,
			Sessions:      sessionService,
			Security:      securityService,
			RateLimiter:   rateLimitService,
		},
	})

	return &Application{
		cfg:          cfg,
		engine:       engine,
		logger:       log,
		pool:         pool,
		redis:        redisClient,
		otp:          otpService,
		verification: verificationService,
		sessions:     sessionService,
		security:     securityService,
	}, nil
}

// Run serves HTTP until the context is cancelled, then drains in-flight
// requests before returning.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
	defer func() {
		_ = a.redis.Close()
	}()

	maintenanceCtx, stopMaintenance := context.WithCancel(ctx)
	defer stopMaintenance()
	go a.maintenanceLoop(maintenanceCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

// maintenanceLoop periodically purges expired OTP codes, stale verification
// and reset tokens, inactive sessions, and audit entries past retention.
func (a *Application) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.runMaintenance(ctx)
		}
	}
}

func (a *Application) runMaintenance(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	if n, err := a.otp.CleanupExpired(ctx); err != nil {
		a.logger.Warn("otp cleanup failed", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("expired otp codes removed", zap.Int64("count", n))
	}

	if n, err := a.verification.CleanupExpiredTokens(ctx); err != nil {
		a.logger.Warn("token cleanup failed", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("expired tokens removed", zap.Int64("count", n))
	}

	if n, err := a.sessions.CleanupInactive(ctx); err != nil {
		a.logger.Warn("session cleanup failed", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("inactive sessions removed", zap.Int64("count", n))
	}

	if n, err := a.security.CleanupLogs(ctx); err != nil {
		a.logger.Warn("security log cleanup failed", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("security logs past retention removed", zap.Int64("count", n))
	}
}
