package routes

import (
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authenticator/internal/auth"
	"github.com/BradenHooton/authenticator/internal/handlers"
	"github.com/BradenHooton/authenticator/internal/middleware"
	pkghttp "github.com/BradenHooton/authenticator/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Dependencies is everything the route table needs.
type Dependencies struct {
	AuthHandler      *handlers.AuthHandler
	TwoFactorHandler *handlers.TwoFactorHandler
	Health           http.Handler
	TokenManager     *auth.TokenManager
	Users            auth.UserRepository
	RateLimits       middleware.AuthRateLimits
	IPConfig         *pkghttp.IPConfig
	Logger           *slog.Logger
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, deps Dependencies) {
	if deps.Health != nil {
		router.Method(http.MethodGet, "/health", deps.Health)
	}

	router.Route("/api/auth", func(r chi.Router) {
		// Public routes - each group gets its own per-IP budget
		r.With(middleware.RateLimitByIP(deps.RateLimits.Register, deps.IPConfig)).Post("/register", deps.AuthHandler.Register)
		r.With(middleware.RateLimitByIP(deps.RateLimits.Login, deps.IPConfig)).Post("/login", deps.AuthHandler.Login)
		r.With(middleware.RateLimitByIP(deps.RateLimits.TwoFactor, deps.IPConfig)).Post("/login/2fa", deps.AuthHandler.CompleteTwoFactorLogin)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(deps.RateLimits.PasswordReset, deps.IPConfig))
			r.Post("/forgot-password", deps.AuthHandler.ForgotPassword)
			r.Post("/verify-reset-code", deps.AuthHandler.VerifyResetCode)
			r.Post("/reset-password", deps.AuthHandler.ResetPassword)
		})

		// Protected routes - session token required
		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware(deps.TokenManager, deps.Users, deps.Logger))

			r.Get("/protected", handlers.Protected)
			r.Post("/enable-2fa", deps.TwoFactorHandler.Enable)
			r.With(middleware.RateLimitByIP(deps.RateLimits.TwoFactor, deps.IPConfig)).Post("/verify-2fa", deps.TwoFactorHandler.Verify)
			r.Post("/disable-2fa", deps.TwoFactorHandler.Disable)
		})
	})
}
