package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/BradenHooton/authenticator/internal/models"
)

const (
	DefaultResetExpiry = 10 * time.Minute
	resetCodeDigits    = 6
	resetTokenBytes    = 32
)

// Reset stages. The stage is hashed together with the secret, so a code hash never matches a token
// and the other way round.
const (
	resetStageCode  = "code"
	resetStageToken = "token"
)

var resetCodeSpace = big.NewInt(1_000_000)

// ResetCodeManager runs the two-stage password reset credential on a User:
// a short numeric code that is exchanged for a high-entropy reset token.
// Both stages share PasswordResetCodeHash/PasswordResetExpiresAt. Callers persist the user.
type ResetCodeManager struct {
	ttl time.Duration
	now func() time.Time
}

func NewResetCodeManager(ttl time.Duration) *ResetCodeManager {
	if ttl <= 0 {
		ttl = DefaultResetExpiry
	}
	return &ResetCodeManager{
		ttl: ttl,
		now: time.Now,
	}
}

// SetClock overrides the time source.
func (m *ResetCodeManager) SetClock(now func() time.Time) {
	m.now = now
}

// IssueCode replaces any outstanding reset state with a new 6-digit code and returns it.
func (m *ResetCodeManager) IssueCode(user *models.User) (string, error) {
	n, err := rand.Int(rand.Reader, resetCodeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate reset code: %w", err)
	}
	code := fmt.Sprintf("%0*d", resetCodeDigits, n.Int64())

	m.store(user, resetStageCode, code)
	return code, nil
}

// VerifyCode exchanges a valid code for a reset token. The code stops matching as soon as the
// token's hash replaces it.
func (m *ResetCodeManager) VerifyCode(user *models.User, code string) (string, error) {
	if !m.matches(user, resetStageCode, code) {
		return "", models.ErrInvalidResetCode
	}

	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)

	m.store(user, resetStageToken, token)
	return token, nil
}

// ConsumeToken checks a reset token and clears the reset state. Only a token issued by VerifyCode
// is accepted, never the emailed code. The caller must persist the cleared fields in the same
// write as the new password.
func (m *ResetCodeManager) ConsumeToken(user *models.User, token string) error {
	if !m.matches(user, resetStageToken, token) {
		return models.ErrInvalidResetToken
	}
	user.ClearPasswordReset()
	return nil
}

// Expired reports whether the user holds reset state that can no longer match.
func (m *ResetCodeManager) Expired(user *models.User) bool {
	return user.PasswordResetExpiresAt != nil && !m.now().Before(*user.PasswordResetExpiresAt)
}

func (m *ResetCodeManager) store(user *models.User, stage, secret string) {
	expiresAt := m.now().Add(m.ttl)
	user.PasswordResetCodeHash = HashResetSecret(stage, secret)
	user.PasswordResetExpiresAt = &expiresAt
}

func (m *ResetCodeManager) matches(user *models.User, stage, submitted string) bool {
	if submitted == "" || user.PasswordResetCodeHash == "" || user.PasswordResetExpiresAt == nil {
		return false
	}
	if m.Expired(user) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashResetSecret(stage, submitted)), []byte(user.PasswordResetCodeHash)) == 1
}

// HashResetSecret is the stored form of a reset code or token at the given stage.
func HashResetSecret(stage, secret string) string {
	sum := sha256.Sum256([]byte(stage + ":" + secret))
	return hex.EncodeToString(sum[:])
}
