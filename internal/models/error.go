package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Request validation
	ErrMissingFields      = errors.New("email and password are required")
	ErrMissingCredentials = errors.New("email and password are required to log in")
	ErrWeakPassword       = errors.New("password does not meet requirements")

	// Second factor
	ErrInvalidTwoFactorCode = errors.New("invalid two-factor code")
	ErrTwoFactorNotEnabled  = errors.New("two-factor authentication has not been set up")
	ErrMissingTwoFactorCode = errors.New("verification code is required")

	// Bearer tokens
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenInvalid    = errors.New("invalid token")
	ErrPasswordChanged = errors.New("password changed after token was issued")

	// Password reset
	ErrInvalidResetCode  = errors.New("invalid or expired reset code")
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
	ErrEmailDelivery     = errors.New("email delivery failed")
)
