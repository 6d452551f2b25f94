package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/authenticator/internal/models"
	pkghttp "github.com/BradenHooton/authenticator/pkg/http"
)

// contextKey is a custom type for context keys
type contextKey string

const (
	// UserContextKey holds the verified *models.TokenClaims
	UserContextKey contextKey = "user"
	// AccountContextKey holds the *models.User loaded for the request
	AccountContextKey contextKey = "account"
)

// UserRepository is the lookup the middleware needs to enforce password-change invalidation.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// AuthMiddleware admits requests carrying a valid session token whose account still exists and
// whose password has not changed since the token was issued.
func AuthMiddleware(tm *TokenManager, users UserRepository, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := pkghttp.BearerToken(r)
			if !ok {
				pkghttp.WriteError(w, http.StatusUnauthorized, "NO_TOKEN", "Authorization token is required")
				return
			}

			claims, err := tm.ValidateToken(tokenString)
			if err != nil {
				if errors.Is(err, models.ErrTokenExpired) {
					pkghttp.WriteError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Session expired. Please log in again.")
					return
				}
				pkghttp.WriteError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
				return
			}

			// a pending token only proves the password step
			if claims.TwoFactorPending {
				pkghttp.WriteError(w, http.StatusUnauthorized, "TWO_FACTOR_REQUIRED", "Two-factor verification is required")
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, models.ErrNotFound) {
					pkghttp.WriteError(w, http.StatusUnauthorized, "USER_NOT_FOUND", "User no longer exists")
					return
				}
				logger.Error("failed to load user for token", "error", err, "user_id", claims.UserID)
				pkghttp.WriteInternalError(w)
				return
			}

			if PasswordChangedSince(user, claims) {
				pkghttp.WriteError(w, http.StatusUnauthorized, "PASSWORD_CHANGED", "Password was changed. Please log in again.")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			ctx = context.WithValue(ctx, AccountContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PasswordChangedSince reports whether the user's password changed at or after the token's iat.
// iat has second precision, so a token minted in the same second as the change is rejected.
func PasswordChangedSince(user *models.User, claims *models.TokenClaims) bool {
	if user.PasswordChangedAt == nil || claims.IssuedAt == nil {
		return false
	}
	return !user.PasswordChangedAt.Before(claims.IssuedAt.Time)
}

// GetUserFromContext extracts user claims from request context
func GetUserFromContext(r *http.Request) *models.TokenClaims {
	claims, ok := r.Context().Value(UserContextKey).(*models.TokenClaims)
	if !ok {
		return nil
	}
	return claims
}

// GetAccountFromContext returns the account loaded by AuthMiddleware.
func GetAccountFromContext(r *http.Request) *models.User {
	user, ok := r.Context().Value(AccountContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}
