package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/BradenHooton/authenticator/internal/auth"
	"github.com/BradenHooton/authenticator/internal/models"
	pkglogger "github.com/BradenHooton/authenticator/pkg/logger"
)

// TwoFactorService manages TOTP enrolment for an authenticated account.
type TwoFactorService struct {
	repo   UserRepository
	totp   *auth.TOTPManager
	logger *slog.Logger
	audit  AuditRecorder
}

func NewTwoFactorService(repo UserRepository, totp *auth.TOTPManager, logger *slog.Logger, audit AuditRecorder) *TwoFactorService {
	return &TwoFactorService{
		repo:   repo,
		totp:   totp,
		logger: logger,
		audit:  audit,
	}
}

// Enable returns provisioning material. An unconfirmed secret is reused so the QR code stays
// stable across retries; otherwise a fresh secret replaces any confirmed one and 2FA stays off
// until Verify succeeds.
func (s *TwoFactorService) Enable(ctx context.Context, userID string) (*models.TwoFactorSetupResponse, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.HasPendingTOTPSecret() {
		setup, err := s.totp.ProvisioningFor(user.Email, user.TOTPSecret)
		if err == nil {
			s.record(ctx, pkglogger.EventTwoFactorEnable, user.ID, true, map[string]string{"secret_reused": "true"})
			return toSetupResponse(setup), nil
		}
		s.logger.Warn("discarding unusable pending TOTP secret", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	setup, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	hadConfirmed := user.TwoFactorEnabled
	if _, err := s.repo.SetTwoFactor(ctx, user.ID, false, setup.Secret); err != nil {
		s.logger.Error("failed to store TOTP secret", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.record(ctx, pkglogger.EventTwoFactorEnable, user.ID, true, map[string]string{
		"secret_reused":      "false",
		"replaced_confirmed": strconv.FormatBool(hadConfirmed),
	})
	return toSetupResponse(setup), nil
}

// Verify confirms the current secret with a code and turns 2FA on.
func (s *TwoFactorService) Verify(ctx context.Context, userID, code string) error {
	if code == "" {
		return models.ErrMissingTwoFactorCode
	}

	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to get user", slog.String("user_id", userID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if user.TOTPSecret == "" {
		return models.ErrTwoFactorNotEnabled
	}

	valid, err := s.totp.ValidateCode(code, user.TOTPSecret)
	if err != nil {
		s.logger.Error("stored TOTP secret is unusable", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !valid {
		s.audit.Record(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventTwoFactorVerify,
			UserID:        user.ID,
			FailureReason: "invalid_code",
		})
		return models.ErrInvalidTwoFactorCode
	}

	if !user.TwoFactorEnabled {
		if _, err := s.repo.SetTwoFactor(ctx, user.ID, true, user.TOTPSecret); err != nil {
			s.logger.Error("failed to enable 2FA", slog.String("user_id", user.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}
		s.logger.Info("two-factor authentication enabled", slog.String("user_id", user.ID))
	}

	s.record(ctx, pkglogger.EventTwoFactorVerify, user.ID, true, nil)
	return nil
}

// Disable turns 2FA off and forgets the secret.
func (s *TwoFactorService) Disable(ctx context.Context, userID string) error {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}

	if _, err := s.repo.SetTwoFactor(ctx, user.ID, false, ""); err != nil {
		s.logger.Error("failed to disable 2FA", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.record(ctx, pkglogger.EventTwoFactorDisable, user.ID, true, nil)
	return nil
}

func (s *TwoFactorService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

func (s *TwoFactorService) record(ctx context.Context, eventType, userID string, success bool, metadata map[string]string) {
	s.audit.Record(ctx, pkglogger.AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Success:   success,
		Metadata:  metadata,
	})
}

func toSetupResponse(setup *auth.TOTPSetup) *models.TwoFactorSetupResponse {
	return &models.TwoFactorSetupResponse{
		OTPAuthURL: setup.URL,
		QRCode:     setup.QRCode,
		Secret:     setup.Secret,
	}
}
