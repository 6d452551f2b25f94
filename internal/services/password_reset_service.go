package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/authenticator/internal/auth"
	"github.com/BradenHooton/authenticator/internal/models"
	pkgauth "github.com/BradenHooton/authenticator/pkg/auth"
	pkglogger "github.com/BradenHooton/authenticator/pkg/logger"
)

// PasswordResetService runs the email code -> reset token -> new password flow.
type PasswordResetService struct {
	repo   UserRepository
	codes  *auth.ResetCodeManager
	hasher PasswordHasher
	email  EmailService
	logger *slog.Logger
	audit  AuditRecorder
	now    func() time.Time
}

func NewPasswordResetService(repo UserRepository, codes *auth.ResetCodeManager, hasher PasswordHasher, email EmailService, logger *slog.Logger, audit AuditRecorder) *PasswordResetService {
	return &PasswordResetService{
		repo:   repo,
		codes:  codes,
		hasher: hasher,
		email:  email,
		logger: logger,
		audit:  audit,
		now:    time.Now,
	}
}

// ForgotPassword issues and mails a reset code when the account exists. An unknown email returns
// nil, exactly like a delivered code. A delivery failure returns an error wrapping
// models.ErrEmailDelivery; the HTTP layer answers it like success so the response never reveals
// whether the account exists.
func (s *PasswordResetService) ForgotPassword(ctx context.Context, email, ipAddress string) error {
	email = normalizeEmail(email)
	if email == "" {
		return models.ErrMissingFields
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.audit.Record(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventPasswordResetRequest,
				Email:         email,
				IPAddress:     ipAddress,
				FailureReason: "unknown_email",
			})
			return nil
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return models.ErrInternalServer
	}

	code, err := s.codes.IssueCode(user)
	if err != nil {
		s.logger.Error("failed to issue reset code", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}
	if _, err := s.repo.SetResetState(ctx, user.ID, user.PasswordResetCodeHash, user.PasswordResetExpiresAt); err != nil {
		s.logger.Error("failed to store reset code", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil
	}

	if err := s.email.SendPasswordResetCode(ctx, user.Email, code, *user.PasswordResetExpiresAt); err != nil {
		deliveryErr := fmt.Errorf("%w: %v", models.ErrEmailDelivery, err)
		s.logger.Error("failed to send reset code", slog.String("user_id", user.ID), slog.Any("error", deliveryErr))
		s.audit.Record(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventPasswordResetRequest,
			UserID:        user.ID,
			IPAddress:     ipAddress,
			FailureReason: "email_delivery_failed",
		})
		return deliveryErr
	}

	s.audit.Record(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventPasswordResetRequest,
		UserID:    user.ID,
		IPAddress: ipAddress,
		Success:   true,
	})
	return nil
}

// VerifyResetCode exchanges an emailed code for a reset token. Each code works once.
func (s *PasswordResetService) VerifyResetCode(ctx context.Context, email, code, ipAddress string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return "", models.ErrMissingFields
	}

	user, err := s.lookup(ctx, email, models.ErrInvalidResetCode)
	if err != nil {
		return "", err
	}

	previous := user.PasswordResetCodeHash
	token, err := s.codes.VerifyCode(user, code)
	if err != nil {
		if errors.Is(err, models.ErrInvalidResetCode) {
			s.recordFailure(ctx, pkglogger.EventPasswordResetVerify, user.ID, ipAddress, "invalid_or_expired_code")
			return "", models.ErrInvalidResetCode
		}
		s.logger.Error("failed to escalate reset code", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if _, err := s.repo.SwapResetState(ctx, user.ID, previous, user.PasswordResetCodeHash, user.PasswordResetExpiresAt); err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.recordFailure(ctx, pkglogger.EventPasswordResetVerify, user.ID, ipAddress, "code_already_used")
			return "", models.ErrInvalidResetCode
		}
		s.logger.Error("failed to store reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.audit.Record(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventPasswordResetVerify,
		UserID:    user.ID,
		IPAddress: ipAddress,
		Success:   true,
	})
	return token, nil
}

// ResetPassword sets a new password using a reset token. The token is cleared in the same write as
// the new hash and PasswordChangedAt, which invalidates every earlier session token. Only the token
// from VerifyResetCode is accepted here, never the emailed code.
func (s *PasswordResetService) ResetPassword(ctx context.Context, email, token, newPassword, ipAddress string) error {
	email = normalizeEmail(email)
	if email == "" || token == "" || newPassword == "" {
		return models.ErrMissingFields
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %w", models.ErrWeakPassword, err)
	}

	user, err := s.lookup(ctx, email, models.ErrInvalidResetToken)
	if err != nil {
		return err
	}

	previous := user.PasswordResetCodeHash
	if err := s.codes.ConsumeToken(user, token); err != nil {
		s.recordFailure(ctx, pkglogger.EventPasswordReset, user.ID, ipAddress, "invalid_or_expired_token")
		return models.ErrInvalidResetToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}
	changedAt := s.now().UTC()

	if _, err := s.repo.UpdatePasswordIfResetHash(ctx, user.ID, previous, hash, changedAt); err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.recordFailure(ctx, pkglogger.EventPasswordReset, user.ID, ipAddress, "token_already_used")
			return models.ErrInvalidResetToken
		}
		s.logger.Error("failed to store new password", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("password reset", slog.String("user_id", user.ID))
	s.audit.Record(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventPasswordReset,
		UserID:    user.ID,
		IPAddress: ipAddress,
		Success:   true,
	})
	return nil
}

// lookup maps an unknown email to notFound so reset responses stay vague.
func (s *PasswordResetService) lookup(ctx context.Context, email string, notFound error) (*models.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, notFound
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

func (s *PasswordResetService) recordFailure(ctx context.Context, eventType, userID, ipAddress, reason string) {
	s.audit.Record(ctx, pkglogger.AuditEvent{
		EventType:     eventType,
		UserID:        userID,
		IPAddress:     ipAddress,
		FailureReason: reason,
	})
}
