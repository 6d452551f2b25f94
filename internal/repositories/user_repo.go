package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/authenticator/internal/database"
	"github.com/BradenHooton/authenticator/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const userColumns = `id, email, password_hash, two_factor_enabled, totp_secret,
	password_reset_code_hash, password_reset_expires_at, password_changed_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable fields and populates a User model from a database row
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var totpSecret, resetHash *string

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.TwoFactorEnabled, &totpSecret,
		&resetHash, &user.PasswordResetExpiresAt, &user.PasswordChangedAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if totpSecret != nil {
		user.TOTPSecret = *totpSecret
	}
	if resetHash != nil {
		user.PasswordResetCodeHash = *resetHash
	}

	return &user, nil
}

// nullable stores empty strings as NULL
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail matches case-insensitively; callers normalise before storing.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

// Create inserts a new account. A duplicate email returns models.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	query := `
		INSERT INTO users (id, email, password_hash, two_factor_enabled, totp_secret,
			password_reset_code_hash, password_reset_expires_at, password_changed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.TwoFactorEnabled, nullable(user.TOTPSecret),
		nullable(user.PasswordResetCodeHash), user.PasswordResetExpiresAt, user.PasswordChangedAt,
		user.CreatedAt, user.UpdatedAt,
	))
}

// Each write below touches only the columns its flow owns, so a request working from an older
// snapshot can never put back a password hash that a reset replaced.

// SetTwoFactor writes the 2FA flag and secret.
func (r *UserRepository) SetTwoFactor(ctx context.Context, id string, enabled bool, secret string) (*models.User, error) {
	query := `
		UPDATE users SET two_factor_enabled = $1, totp_secret = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, enabled, nullable(secret), id))
}

// SetResetState replaces the outstanding reset hash and its expiry together.
func (r *UserRepository) SetResetState(ctx context.Context, id, hash string, expiresAt *time.Time) (*models.User, error) {
	query := `
		UPDATE users SET password_reset_code_hash = $1, password_reset_expires_at = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, nullable(hash), expiresAt, id))
}

// SwapResetState is SetResetState guarded by the stored hash. It returns models.ErrConflict when
// another request consumed or replaced expectedHash first.
func (r *UserRepository) SwapResetState(ctx context.Context, id, expectedHash, hash string, expiresAt *time.Time) (*models.User, error) {
	query := `
		UPDATE users SET password_reset_code_hash = $1, password_reset_expires_at = $2, updated_at = NOW()
		WHERE id = $3 AND password_reset_code_hash = $4
		RETURNING ` + userColumns

	updated, err := scanUserRow(r.pool.QueryRow(ctx, query, nullable(hash), expiresAt, id, expectedHash))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrConflict
	}
	return updated, err
}

// UpdatePasswordIfResetHash is the only write to password_hash after Create. It stores the new hash
// and change time and clears the reset state, provided the stored reset hash still equals
// expectedHash; otherwise it returns models.ErrConflict.
func (r *UserRepository) UpdatePasswordIfResetHash(ctx context.Context, id, expectedHash, passwordHash string, changedAt time.Time) (*models.User, error) {
	query := `
		UPDATE users SET password_hash = $1, password_changed_at = $2,
			password_reset_code_hash = NULL, password_reset_expires_at = NULL, updated_at = NOW()
		WHERE id = $3 AND password_reset_code_hash = $4
		RETURNING ` + userColumns

	updated, err := scanUserRow(r.pool.QueryRow(ctx, query, passwordHash, changedAt, id, expectedHash))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrConflict
	}
	return updated, err
}

// ClearExpiredResets drops reset state whose expiry is at or before cutoff.
func (r *UserRepository) ClearExpiredResets(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE users SET password_reset_code_hash = NULL, password_reset_expires_at = NULL, updated_at = NOW()
		WHERE password_reset_expires_at IS NOT NULL AND password_reset_expires_at <= $1
	`

	result, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired password resets: %w", database.MapPostgresError(err))
	}
	return result.RowsAffected(), nil
}
