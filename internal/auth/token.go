package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/authenticator/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultSessionTokenExpiry = time.Hour
	DefaultPendingTokenExpiry = 5 * time.Minute
	tokenIssuer               = "authenticator"
)

// TokenManager issues and verifies HS256 bearer tokens. It holds no per-token state.
type TokenManager struct {
	secret        []byte
	sessionExpiry time.Duration
	pendingExpiry time.Duration
	now           func() time.Time
}

// NewTokenManager creates a new TokenManager. Zero expiries fall back to the defaults.
func NewTokenManager(secret string, sessionExpiry, pendingExpiry time.Duration) *TokenManager {
	if sessionExpiry <= 0 {
		sessionExpiry = DefaultSessionTokenExpiry
	}
	if pendingExpiry <= 0 {
		pendingExpiry = DefaultPendingTokenExpiry
	}
	return &TokenManager{
		secret:        []byte(secret),
		sessionExpiry: sessionExpiry,
		pendingExpiry: pendingExpiry,
		now:           time.Now,
	}
}

// SetClock overrides the time source used for iat, exp and expiry checks.
func (tm *TokenManager) SetClock(now func() time.Time) {
	tm.now = now
}

// PendingTokenExpiry is the lifetime of a 2FA-pending token.
func (tm *TokenManager) PendingTokenExpiry() time.Duration {
	return tm.pendingExpiry
}

// GenerateSessionToken issues a full session token for user.
func (tm *TokenManager) GenerateSessionToken(user *models.User) (string, error) {
	claims := &models.TokenClaims{
		UserID:           user.ID,
		Email:            user.Email,
		TwoFactorEnabled: user.TwoFactorEnabled,
	}
	return tm.sign(claims, tm.sessionExpiry)
}

// GenerateTwoFactorPendingToken issues a token that only proves the password step.
// It is never accepted as a session.
func (tm *TokenManager) GenerateTwoFactorPendingToken(user *models.User) (string, error) {
	claims := &models.TokenClaims{
		UserID:           user.ID,
		Email:            user.Email,
		TwoFactorPending: true,
	}
	return tm.sign(claims, tm.pendingExpiry)
}

func (tm *TokenManager) sign(claims *models.TokenClaims, expiry time.Duration) (string, error) {
	now := tm.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    tokenIssuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken verifies signature and expiry. It returns models.ErrTokenExpired for an otherwise
// valid token past its expiry and models.ErrTokenInvalid for everything else.
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, models.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", models.ErrTokenInvalid, err)
	}

	if !token.Valid || claims.UserID == "" || claims.IssuedAt == nil {
		return nil, models.ErrTokenInvalid
	}

	return claims, nil
}
