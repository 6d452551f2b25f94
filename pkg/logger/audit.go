package logger

import (
	"context"
	"log/slog"
	"time"
)

// Event types recorded by the auth state machine.
const (
	EventRegister             = "register"
	EventLogin                = "login"
	EventLoginTwoFactor       = "login_2fa"
	EventTwoFactorEnable      = "2fa_enable"
	EventTwoFactorVerify      = "2fa_verify"
	EventTwoFactorDisable     = "2fa_disable"
	EventPasswordResetRequest = "password_reset_request"
	EventPasswordResetVerify  = "password_reset_verify"
	EventPasswordReset        = "password_reset"
	EventResetCleanup         = "password_reset_cleanup"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Email         string // masked before it is written
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes audit events as structured slog records.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// Record emits one audit record. Failures are logged at warn level.
func (al *AuditLogger) Record(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
