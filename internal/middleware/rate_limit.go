package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/authenticator/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig is a request budget per client IP.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// AuthRateLimits groups the budgets of the unauthenticated endpoints.
type AuthRateLimits struct {
	Register      RateLimitConfig
	Login         RateLimitConfig
	TwoFactor     RateLimitConfig
	PasswordReset RateLimitConfig
}

// DefaultAuthRateLimits returns the budgets used in production.
func DefaultAuthRateLimits() AuthRateLimits {
	return AuthRateLimits{
		Register:      RateLimitConfig{Requests: 5, Window: time.Hour},
		Login:         RateLimitConfig{Requests: 10, Window: time.Minute},
		TwoFactor:     RateLimitConfig{Requests: 5, Window: time.Minute},
		PasswordReset: RateLimitConfig{Requests: 5, Window: 15 * time.Minute},
	}
}

// RateLimitByIP limits requests per client IP. The IP comes from ExtractClientIP, so forwarding
// headers only count behind a trusted proxy.
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.Requests,
		config.Window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.")
		}),
	)
}
