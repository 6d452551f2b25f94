package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims is the payload of every bearer token the service issues.
type TokenClaims struct {
	UserID           string `json:"id"`
	Email            string `json:"email"`
	TwoFactorPending bool   `json:"twoFactorPending,omitempty"`
	TwoFactorEnabled bool   `json:"is2FAEnabled,omitempty"`
	jwt.RegisteredClaims
}

// AuthResponse is returned when a session is granted.
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// TwoFactorChallengeResponse is returned when the password was correct but a second factor is still owed.
type TwoFactorChallengeResponse struct {
	TwoFactorRequired bool   `json:"twoFactorRequired"`
	TempToken         string `json:"tempToken"`
}

// LoginResult carries exactly one of Session or Challenge.
type LoginResult struct {
	Session   *AuthResponse
	Challenge *TwoFactorChallengeResponse
}

// TwoFactorSetupResponse carries provisioning material for an authenticator app.
type TwoFactorSetupResponse struct {
	OTPAuthURL string `json:"otpauthUrl"`
	QRCode     string `json:"qrCode"`
	Secret     string `json:"secret"`
}
