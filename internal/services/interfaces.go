package services

import (
	"context"
	"strings"
	"time"

	"github.com/BradenHooton/authenticator/internal/models"
	pkglogger "github.com/BradenHooton/authenticator/pkg/logger"
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	SetTwoFactor(ctx context.Context, id string, enabled bool, secret string) (*models.User, error)
	SetResetState(ctx context.Context, id, hash string, expiresAt *time.Time) (*models.User, error)
	// SwapResetState and UpdatePasswordIfResetHash return models.ErrConflict if the stored reset
	// hash no longer equals expectedHash.
	SwapResetState(ctx context.Context, id, expectedHash, hash string, expiresAt *time.Time) (*models.User, error)
	UpdatePasswordIfResetHash(ctx context.Context, id, expectedHash, passwordHash string, changedAt time.Time) (*models.User, error)
}

// PasswordHasher hashes and checks passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// ChallengeStore marks 2FA-pending tokens as used.
type ChallengeStore interface {
	Claim(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// AuditRecorder receives security events. *pkglogger.AuditLogger satisfies it.
type AuditRecorder interface {
	Record(ctx context.Context, event pkglogger.AuditEvent)
}

// EmailService delivers password reset codes.
type EmailService interface {
	SendPasswordResetCode(ctx context.Context, email, code string, expiresAt time.Time) error
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
