package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BradenHooton/authenticator/internal/models"
	pkgauth "github.com/BradenHooton/authenticator/pkg/auth"
	pkghttp "github.com/BradenHooton/authenticator/pkg/http"
)

// writeServiceError maps service sentinels onto status codes and error codes.
// Anything unrecognised is a 500 with no detail.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrMissingFields):
		pkghttp.WriteError(w, http.StatusBadRequest, "MISSING_FIELDS", "Required fields are missing")
	case errors.Is(err, models.ErrMissingCredentials):
		pkghttp.WriteError(w, http.StatusBadRequest, "MISSING_CREDENTIALS", "Email and password are required")
	case errors.Is(err, models.ErrWeakPassword):
		details := ""
		var pve *pkgauth.PasswordValidationError
		if errors.As(err, &pve) {
			details = strings.Join(pve.Errors, "; ")
		}
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "WEAK_PASSWORD", "Password does not meet requirements", details)
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteError(w, http.StatusConflict, "EMAIL_IN_USE", "Email is already in use")
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	case errors.Is(err, models.ErrInvalidTwoFactorCode):
		pkghttp.WriteError(w, http.StatusUnauthorized, "INVALID_2FA_CODE", "Invalid verification code")
	case errors.Is(err, models.ErrTokenExpired):
		pkghttp.WriteError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Session expired. Please log in again.")
	case errors.Is(err, models.ErrTokenInvalid):
		pkghttp.WriteError(w, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid token")
	case errors.Is(err, models.ErrMissingTwoFactorCode):
		pkghttp.WriteError(w, http.StatusBadRequest, "MISSING_VERIFICATION_CODE", "Verification code is required")
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteError(w, http.StatusBadRequest, "2FA_NOT_ENABLED", "2FA is not enabled for this account")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, models.ErrInvalidResetCode):
		pkghttp.WriteError(w, http.StatusBadRequest, "INVALID_OR_EXPIRED_CODE", "Invalid or expired verification code")
	case errors.Is(err, models.ErrInvalidResetToken):
		pkghttp.WriteError(w, http.StatusBadRequest, "INVALID_OR_EXPIRED_TOKEN", "Invalid or expired reset token")
	default:
		pkghttp.WriteInternalError(w)
	}
}

// decodeAndValidate reads the JSON body into req and runs its validate tags. It writes the error
// response itself and reports whether the handler should continue; missing fields use missingErr.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req any, missingErr error) bool {
	if err := pkghttp.DecodeJSON(r, req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}
	if err := ValidateRequest(req); err != nil {
		if IsMissingField(err) {
			writeServiceError(w, missingErr)
			return false
		}
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}
