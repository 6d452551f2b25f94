package models

import (
	"time"
)

// User is a registered account. Secret material never leaves the service in JSON.
type User struct {
	ID                     string
	Email                  string
	PasswordHash           string
	TwoFactorEnabled       bool
	TOTPSecret             string     // base32; set while 2FA is pending confirmation or enabled
	PasswordResetCodeHash  string     // stage-bound sha256 hex of the outstanding reset code or reset token
	PasswordResetExpiresAt *time.Time // expiry of PasswordResetCodeHash
	PasswordChangedAt      *time.Time // tokens issued at or before this instant are rejected
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasPendingTOTPSecret reports whether a secret was generated but never confirmed.
func (u *User) HasPendingTOTPSecret() bool {
	return u.TOTPSecret != "" && !u.TwoFactorEnabled
}

// ClearPasswordReset drops any outstanding reset code or token.
func (u *User) ClearPasswordReset() {
	u.PasswordResetCodeHash = ""
	u.PasswordResetExpiresAt = nil
}

// UserResponse is the public view of a User.
type UserResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	TwoFactorEnabled bool      `json:"is2FAEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:               u.ID,
		Email:            u.Email,
		TwoFactorEnabled: u.TwoFactorEnabled,
		CreatedAt:        u.CreatedAt,
	}
}
