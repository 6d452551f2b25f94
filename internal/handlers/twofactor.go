package handlers

import (
	"context"
	"net/http"

	"github.com/BradenHooton/authenticator/internal/auth"
	"github.com/BradenHooton/authenticator/internal/models"
	pkghttp "github.com/BradenHooton/authenticator/pkg/http"
)

// TwoFactorServiceInterface defines the interface for TOTP enrolment
type TwoFactorServiceInterface interface {
	Enable(ctx context.Context, userID string) (*models.TwoFactorSetupResponse, error)
	Verify(ctx context.Context, userID, code string) error
	Disable(ctx context.Context, userID string) error
}

// TwoFactorHandler serves the authenticated 2FA endpoints
type TwoFactorHandler struct {
	service TwoFactorServiceInterface
}

func NewTwoFactorHandler(service TwoFactorServiceInterface) *TwoFactorHandler {
	return &TwoFactorHandler{service: service}
}

// TwoFactorStatusResponse is returned once a code confirms enrolment
type TwoFactorStatusResponse struct {
	TwoFactorEnabled bool   `json:"twoFactorEnabled"`
	Message          string `json:"message"`
}

// Enable returns a provisioning URI and QR code for the caller's authenticator app
// @Router /api/auth/enable-2fa [post]
func (h *TwoFactorHandler) Enable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteError(w, http.StatusUnauthorized, "NO_TOKEN", "Authorization token is required")
		return
	}

	setup, err := h.service.Enable(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, setup)
}

// Verify confirms enrolment with a TOTP code
// @Router /api/auth/verify-2fa [post]
func (h *TwoFactorHandler) Verify(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteError(w, http.StatusUnauthorized, "NO_TOKEN", "Authorization token is required")
		return
	}

	var req TwoFactorCodeRequest
	if !decodeAndValidate(w, r, &req, models.ErrMissingTwoFactorCode) {
		return
	}

	if err := h.service.Verify(r.Context(), claims.UserID, req.Token); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorStatusResponse{
		TwoFactorEnabled: true,
		Message:          "2FA verification successful",
	})
}

// Disable turns 2FA off for the caller
// @Router /api/auth/disable-2fa [post]
func (h *TwoFactorHandler) Disable(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteError(w, http.StatusUnauthorized, "NO_TOKEN", "Authorization token is required")
		return
	}

	if err := h.service.Disable(r.Context(), claims.UserID); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TwoFactorStatusResponse{
		TwoFactorEnabled: false,
		Message:          "Two-factor authentication disabled",
	})
}
