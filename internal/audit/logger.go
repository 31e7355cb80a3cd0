// Package audit records who changed what. Writes are best-effort and never fail the caller.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gymhub/backend/internal/audit/domain"
	auditrepo "gymhub/backend/internal/audit/repository"
	"gymhub/backend/internal/logger"
)

// Workflow actions recorded by the services.
const (
	ActionApplicationSubmitted = "application_submitted"
	ActionApplicationApproved  = "application_approved"
	ActionApplicationRejected  = "application_rejected"
	ActionRolePromotionFailed  = "role_promotion_failed"
	ActionRoleChanged          = "role_changed"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, resourceID, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	logger      *zap.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor, logger: logger.OrNop(log)}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, resourceID, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:         uuid.New().String(),
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IP:         ip,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	// The request may already be cancelled by the time the entry is written.
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		l.logger.Warn("audit: failed to log event",
			zap.String("action", action), zap.String("resource", resource), zap.Error(err))
	}
}

// Nop is an AuditLogger that discards events.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string, string) {}
