package background

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	pkglogger "github.com/BradenHooton/authenticator/pkg/logger"
)

// ResetCleaner clears reset codes and tokens that expired before cutoff.
type ResetCleaner interface {
	ClearExpiredResets(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRecorder receives the summary of each sweep.
type AuditRecorder interface {
	Record(ctx context.Context, event pkglogger.AuditEvent)
}

// CleanupManager periodically clears expired password reset state. Expired hashes can never match,
// so this only keeps stale secrets from lingering in the table.
type CleanupManager struct {
	resets   ResetCleaner
	audit    AuditRecorder
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(resets ResetCleaner, audit AuditRecorder, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = time.Hour
	}
	return &CleanupManager{
		resets:   resets,
		audit:    audit,
		logger:   logger,
		interval: interval,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task. It blocks until Stop or ctx is done.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single sweep and returns the number of accounts cleared.
func (cm *CleanupManager) RunOnce(ctx context.Context) (int64, error) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cleared, err := cm.resets.ClearExpiredResets(cleanupCtx, cm.now())
	if err != nil {
		return 0, err
	}

	if cleared > 0 {
		cm.logger.Info("expired password resets cleared", slog.Int64("rows_updated", cleared))
		cm.audit.Record(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventResetCleanup,
			Success:   true,
			Metadata:  map[string]string{"rows_updated": strconv.FormatInt(cleared, 10)},
		})
	}
	return cleared, nil
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	if _, err := cm.RunOnce(ctx); err != nil {
		cm.logger.Error("failed to clear expired password resets", slog.Any("error", err))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
