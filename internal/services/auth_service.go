package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/authenticator/internal/auth"
	"github.com/BradenHooton/authenticator/internal/models"
	pkgauth "github.com/BradenHooton/authenticator/pkg/auth"
	pkglogger "github.com/BradenHooton/authenticator/pkg/logger"
)

// dummyPassword is hashed once so that unknown emails still pay for a bcrypt comparison.
const dummyPassword = "dummy-password-for-timing"

// RegisterInput is the validated payload of a registration request.
type RegisterInput struct {
	Email     string
	Password  string
	IPAddress string
}

// LoginInput carries the first login step and, optionally, the second factor.
// A Code is only accepted together with the TempToken issued for the same account.
type LoginInput struct {
	Email     string
	Password  string
	Code      string
	TempToken string
	IPAddress string
}

// AuthService runs registration and the login state machine:
// Unauthenticated -> PasswordVerified -> (SessionGranted | TwoFactorPending) -> SessionGranted.
type AuthService struct {
	repo       UserRepository
	tm         *auth.TokenManager
	totp       *auth.TOTPManager
	hasher     PasswordHasher
	challenges ChallengeStore
	timing     *auth.TimingDelay
	logger     *slog.Logger
	audit      AuditRecorder

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService creates a new AuthService
func NewAuthService(repo UserRepository, tm *auth.TokenManager, totp *auth.TOTPManager, hasher PasswordHasher, logger *slog.Logger, audit AuditRecorder) *AuthService {
	return &AuthService{
		repo:   repo,
		tm:     tm,
		totp:   totp,
		hasher: hasher,
		logger: logger,
		audit:  audit,
	}
}

// SetChallengeStore makes 2FA-pending tokens single use.
func (s *AuthService) SetChallengeStore(store ChallengeStore) {
	s.challenges = store
}

// SetTimingDelay pads failed logins to a common duration.
func (s *AuthService) SetTimingDelay(td *auth.TimingDelay) {
	s.timing = td
}

// Register creates an account and grants a session. Duplicate emails return models.ErrConflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.AuthResponse, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, models.ErrMissingFields
	}

	if err := pkgauth.ValidatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrWeakPassword, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	user, err := s.repo.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.audit.Record(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventRegister,
				Email:         email,
				IPAddress:     in.IPAddress,
				FailureReason: "email_in_use",
			})
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("user_id", user.ID))
	s.audit.Record(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventRegister,
		UserID:    user.ID,
		IPAddress: in.IPAddress,
		Success:   true,
	})
	return session, nil
}

// Login checks the password and either grants a session, asks for a second factor, or, when a
// code and pending token are supplied, completes the second factor in the same call.
// Unknown email and wrong password both return models.ErrUnauthorized.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*models.LoginResult, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, models.ErrMissingCredentials
	}

	start := time.Now()
	user, err := s.checkPassword(ctx, email, in.Password)
	if err != nil {
		s.timing.WaitFrom(ctx, start, false)
		if errors.Is(err, models.ErrUnauthorized) {
			s.audit.Record(ctx, pkglogger.AuditEvent{
				EventType:     pkglogger.EventLogin,
				Email:         email,
				IPAddress:     in.IPAddress,
				FailureReason: "invalid_credentials",
			})
		}
		return nil, err
	}

	if !user.TwoFactorEnabled {
		session, err := s.issueSession(user)
		if err != nil {
			return nil, err
		}
		s.audit.Record(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventLogin,
			UserID:    user.ID,
			IPAddress: in.IPAddress,
			Success:   true,
		})
		return &models.LoginResult{Session: session}, nil
	}

	if in.Code == "" {
		tempToken, err := s.tm.GenerateTwoFactorPendingToken(user)
		if err != nil {
			s.logger.Error("failed to generate pending token", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		s.audit.Record(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventLogin,
			UserID:    user.ID,
			IPAddress: in.IPAddress,
			Success:   true,
			Metadata:  map[string]string{"stage": "two_factor_pending"},
		})
		return &models.LoginResult{Challenge: &models.TwoFactorChallengeResponse{
			TwoFactorRequired: true,
			TempToken:         tempToken,
		}}, nil
	}

	claims, err := s.tm.ValidateToken(in.TempToken)
	if err != nil || !claims.TwoFactorPending || claims.UserID != user.ID {
		s.audit.Record(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginTwoFactor,
			UserID:        user.ID,
			IPAddress:     in.IPAddress,
			FailureReason: "pending_token_mismatch",
		})
		return nil, models.ErrInvalidTwoFactorCode
	}

	session, err := s.completeSecondFactor(ctx, user, claims, in.Code, in.IPAddress)
	if err != nil {
		return nil, err
	}
	return &models.LoginResult{Session: session}, nil
}

// CompleteTwoFactorLogin exchanges a 2FA-pending token and a TOTP code for a session.
func (s *AuthService) CompleteTwoFactorLogin(ctx context.Context, tempToken, code, ipAddress string) (*models.AuthResponse, error) {
	claims, err := s.tm.ValidateToken(tempToken)
	if err != nil {
		return nil, err
	}
	if !claims.TwoFactorPending {
		return nil, models.ErrTokenInvalid
	}

	user, err := s.repo.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTokenInvalid
		}
		s.logger.Error("failed to load user for pending token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if auth.PasswordChangedSince(user, claims) {
		return nil, models.ErrTokenInvalid
	}

	return s.completeSecondFactor(ctx, user, claims, code, ipAddress)
}

// completeSecondFactor consumes the pending token, then checks the code. A failed code leaves the
// pending token spent, so the caller must restart from the password step.
func (s *AuthService) completeSecondFactor(ctx context.Context, user *models.User, claims *models.TokenClaims, code, ipAddress string) (*models.AuthResponse, error) {
	fail := func(reason string) (*models.AuthResponse, error) {
		s.audit.Record(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventLoginTwoFactor,
			UserID:        user.ID,
			IPAddress:     ipAddress,
			FailureReason: reason,
		})
		return nil, models.ErrInvalidTwoFactorCode
	}

	if !user.TwoFactorEnabled || user.TOTPSecret == "" {
		return fail("two_factor_not_enabled")
	}

	if s.challenges != nil {
		first, err := s.challenges.Claim(ctx, claims.ID, time.Until(claims.ExpiresAt.Time))
		if err != nil {
			s.logger.Error("failed to claim pending token", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		if !first {
			return fail("pending_token_reused")
		}
	}

	valid, err := s.totp.ValidateCode(code, user.TOTPSecret)
	if err != nil {
		s.logger.Error("stored TOTP secret is unusable", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !valid {
		return fail("invalid_code")
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}
	s.audit.Record(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLoginTwoFactor,
		UserID:    user.ID,
		IPAddress: ipAddress,
		Success:   true,
	})
	return session, nil
}

// checkPassword returns models.ErrUnauthorized for both an unknown email and a wrong password.
func (s *AuthService) checkPassword(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = s.hasher.Compare(s.dummy(), password)
			return nil, models.ErrUnauthorized
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, models.ErrUnauthorized
	}
	return user, nil
}

func (s *AuthService) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(dummyPassword)
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

func (s *AuthService) issueSession(user *models.User) (*models.AuthResponse, error) {
	token, err := s.tm.GenerateSessionToken(user)
	if err != nil {
		s.logger.Error("failed to generate session token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return &models.AuthResponse{
		Token: token,
		User:  user.ToResponse(),
	}, nil
}
