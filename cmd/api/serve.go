package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/authenticator/internal/auth"
	"github.com/BradenHooton/authenticator/internal/background"
	"github.com/BradenHooton/authenticator/internal/config"
	"github.com/BradenHooton/authenticator/internal/handlers"
	middlewareCustom "github.com/BradenHooton/authenticator/internal/middleware"
	"github.com/BradenHooton/authenticator/internal/repositories"
	"github.com/BradenHooton/authenticator/internal/routes"
	"github.com/BradenHooton/authenticator/internal/services"
	pkgauth "github.com/BradenHooton/authenticator/pkg/auth"
	pkghttp "github.com/BradenHooton/authenticator/pkg/http"
	pkglogger "github.com/BradenHooton/authenticator/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, !skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	return cmd
}

func runServe(ctx context.Context, migrate bool) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.db.Close()
	cfg, logger := a.cfg, a.logger

	if migrate {
		if err := a.db.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", slog.Any("error", err))
			return err
		}
	}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(a.db)

	var challengeStore *repositories.TwoFactorChallengeStore
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()
		challengeStore = repositories.NewTwoFactorChallengeStore(client, cfg.Redis.KeyPrefix)
		if err := challengeStore.Ping(ctx); err != nil {
			return err
		}
		logger.Info("2FA pending tokens are single use", slog.String("store", "redis"))
	} else {
		logger.Warn("REDIS_URL not set; 2FA pending tokens can be retried until they expire")
	}

	// Security collaborators
	auditLogger := pkglogger.NewAuditLogger(logger)
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.SessionTokenExpiry, cfg.Auth.PendingTokenExpiry)
	totpManager := auth.NewTOTPManager(cfg.Auth.TOTPIssuer)
	resetCodes := auth.NewResetCodeManager(cfg.Auth.PasswordResetExpiry)
	hasher := pkgauth.NewHasher(cfg.Auth.BcryptCost)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelay:   cfg.Auth.LoginDelayBase,
		RandomDelay: cfg.Auth.LoginDelayJitter,
	})

	emailService, err := newEmailService(ctx, cfg.Email, logger)
	if err != nil {
		logger.Error("failed to initialize email service", slog.Any("error", err))
		return err
	}

	// Initialize services
	authService := services.NewAuthService(userRepo, tokenManager, totpManager, hasher, logger, auditLogger)
	authService.SetTimingDelay(timingDelay)
	if challengeStore != nil {
		authService.SetChallengeStore(challengeStore)
	}
	twoFactorService := services.NewTwoFactorService(userRepo, totpManager, logger, auditLogger)
	resetService := services.NewPasswordResetService(userRepo, resetCodes, hasher, emailService, logger, auditLogger)

	// Initialize handlers
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}
	health := handlers.NewHealthHandler(logger)
	health.Register("database", a.db)
	if challengeStore != nil {
		health.Register("redis", handlers.HealthCheckerFunc(challengeStore.Ping))
	}

	// Setup router. Client IPs come from pkghttp.ExtractClientIP, which only trusts
	// forwarding headers from TRUSTED_PROXIES, so chi's RealIP is not used.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger, ipConfig))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	routes.RegisterRoutes(router, routes.Dependencies{
		AuthHandler:      handlers.NewAuthHandler(authService, resetService, ipConfig),
		TwoFactorHandler: handlers.NewTwoFactorHandler(twoFactorService),
		Health:           health,
		TokenManager:     tokenManager,
		Users:            userRepo,
		RateLimits:       middlewareCustom.DefaultAuthRateLimits(),
		IPConfig:         ipConfig,
		Logger:           logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	cleanupManager := background.NewCleanupManager(userRepo, auditLogger, logger, cfg.Auth.ResetCleanupInterval)
	go cleanupManager.Start(ctx)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", slog.Any("error", err))
			cleanupManager.Stop()
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	cleanupManager.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		return err
	}

	logger.Info("server stopped gracefully")
	return nil
}

func newEmailService(ctx context.Context, cfg config.EmailConfig, logger *slog.Logger) (services.EmailService, error) {
	switch cfg.Provider {
	case "ses":
		return services.NewAWSSESEmailService(ctx, cfg.AWSRegion, cfg.From, logger)
	case "log":
		logger.Warn("EMAIL_PROVIDER=log: password reset codes are written to the log")
		return services.NewLogEmailService(logger), nil
	default:
		return nil, fmt.Errorf("unsupported email provider %q", cfg.Provider)
	}
}
