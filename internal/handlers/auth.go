package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/BradenHooton/authenticator/internal/models"
	"github.com/BradenHooton/authenticator/internal/services"
	pkghttp "github.com/BradenHooton/authenticator/pkg/http"
)

// ForgotPasswordMessage is returned for every well-formed forgot-password request.
const ForgotPasswordMessage = "If an account exists with this email, a verification code has been sent."

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.AuthResponse, error)
	Login(ctx context.Context, in services.LoginInput) (*models.LoginResult, error)
	CompleteTwoFactorLogin(ctx context.Context, tempToken, code, ipAddress string) (*models.AuthResponse, error)
}

// PasswordResetServiceInterface defines the interface for the password reset flow
type PasswordResetServiceInterface interface {
	ForgotPassword(ctx context.Context, email, ipAddress string) error
	VerifyResetCode(ctx context.Context, email, code, ipAddress string) (string, error)
	ResetPassword(ctx context.Context, email, token, newPassword, ipAddress string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	resets   PasswordResetServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, resets PasswordResetServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		resets:   resets,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
}

// LoginRequest represents the request body for login. Token is the TOTP code; it is only honoured
// together with the TempToken from the first step.
type LoginRequest struct {
	Email     string `json:"email" validate:"required"`
	Password  string `json:"password" validate:"required"`
	Token     string `json:"token,omitempty"`
	TempToken string `json:"tempToken,omitempty"`
}

// TwoFactorCodeRequest carries a TOTP code for /login/2fa and /verify-2fa
type TwoFactorCodeRequest struct {
	Token string `json:"token" validate:"required"`
}

// ForgotPasswordRequest represents the request body for starting a reset
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

// VerifyResetCodeRequest represents the request body for exchanging a reset code
type VerifyResetCodeRequest struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

// ResetPasswordRequest represents the request body for setting a new password
type ResetPasswordRequest struct {
	Email    string `json:"email" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// MessageResponse is a body with only a human-readable message
type MessageResponse struct {
	Message string `json:"message"`
}

// ResetTokenResponse is returned by a successful code verification
type ResetTokenResponse struct {
	ResetToken string `json:"resetToken"`
}

// Register handles user registration
// @Summary User registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 201 {object} models.AuthResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 409 {object} pkghttp.ErrorResponse
// @Router /api/auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeAndValidate(w, r, &req, models.ErrMissingFields) {
		return
	}

	resp, err := h.service.Register(r.Context(), services.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// Login handles the password step and, when a code and tempToken are supplied, the second factor
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} models.AuthResponse
// @Success 202 {object} models.TwoFactorChallengeResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /api/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeAndValidate(w, r, &req, models.ErrMissingCredentials) {
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		Code:      req.Token,
		TempToken: req.TempToken,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if result.Challenge != nil {
		pkghttp.WriteJSON(w, http.StatusAccepted, result.Challenge)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, result.Session)
}

// CompleteTwoFactorLogin exchanges the Bearer tempToken and a TOTP code for a session
// @Summary Second login step
// @Accept json
// @Param request body TwoFactorCodeRequest true "TOTP code"
// @Produce json
// @Success 200 {object} models.AuthResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Router /api/auth/login/2fa [post]
func (h *AuthHandler) CompleteTwoFactorLogin(w http.ResponseWriter, r *http.Request) {
	tempToken, ok := pkghttp.BearerToken(r)
	if !ok {
		pkghttp.WriteError(w, http.StatusUnauthorized, "NO_TOKEN", "Authorization token is required")
		return
	}

	var req TwoFactorCodeRequest
	if !decodeAndValidate(w, r, &req, models.ErrMissingTwoFactorCode) {
		return
	}

	resp, err := h.service.CompleteTwoFactorLogin(r.Context(), tempToken, req.Token, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ForgotPassword answers identically whether or not the account exists
// @Summary Request a password reset code
// @Accept json
// @Param request body ForgotPasswordRequest true "Email"
// @Produce json
// @Success 200 {object} MessageResponse
// @Router /api/auth/forgot-password [post]
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeAndValidate(w, r, &req, models.ErrMissingFields) {
		return
	}

	// A failed delivery only happens for real accounts, so it is answered like success.
	err := h.resets.ForgotPassword(r.Context(), req.Email, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil && !errors.Is(err, models.ErrEmailDelivery) {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: ForgotPasswordMessage})
}

// VerifyResetCode exchanges the emailed code for a reset token
// @Summary Verify a password reset code
// @Accept json
// @Param request body VerifyResetCodeRequest true "Email and code"
// @Produce json
// @Success 200 {object} ResetTokenResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /api/auth/verify-reset-code [post]
func (h *AuthHandler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetCodeRequest
	if !decodeAndValidate(w, r, &req, models.ErrMissingFields) {
		return
	}

	token, err := h.resets.VerifyResetCode(r.Context(), req.Email, req.Code, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ResetTokenResponse{ResetToken: token})
}

// ResetPassword sets a new password using a reset token
// @Summary Reset password
// @Accept json
// @Param request body ResetPasswordRequest true "Email, reset token and new password"
// @Produce json
// @Success 200 {object} MessageResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Router /api/auth/reset-password [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req, models.ErrMissingFields) {
		return
	}

	err := h.resets.ResetPassword(r.Context(), req.Email, req.Token, req.Password, pkghttp.ExtractClientIP(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset successfully"})
}
