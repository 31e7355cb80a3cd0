// Package service drives the owner application lifecycle: submission, review and the
// role promotion that follows an approval.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gymhub/backend/internal/application/domain"
	"gymhub/backend/internal/application/promotion"
	"gymhub/backend/internal/application/repository"
	"gymhub/backend/internal/audit"
	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/logger"
	"gymhub/backend/internal/platform/apperr"
	roledomain "gymhub/backend/internal/role/domain"
	"gymhub/backend/internal/telemetry"
)

const auditResource = "application"

// RoleAssigner reads and overwrites user roles.
type RoleAssigner interface {
	GetRole(ctx context.Context, userID string) (roledomain.Role, error)
	SetRole(ctx context.Context, userID string, role roledomain.Role) error
}

// TxScope builds repositories bound to a transaction store.
type TxScope func(tx backend.Store) (repository.Repository, RoleAssigner)

// Recorder receives workflow metrics.
type Recorder interface {
	WorkflowOutcome(operation, outcome string)
	PromotionQueued()
	PromotionDrained(promoted, failed, remaining int)
}

// Workflow coordinates applications and roles. Approval runs in one transaction when a
// Transactor is configured; otherwise a failed promotion is queued for retry and
// reported as *apperr.PartialApprovalError.
type Workflow struct {
	apps    repository.Repository
	roles   RoleAssigner
	queue   promotion.Queue
	tx      backend.Transactor
	txScope TxScope
	events  telemetry.EventEmitter
	audit   audit.AuditLogger
	metrics Recorder
	logger  *zap.Logger
	now     func() time.Time
}

// NewWorkflow returns a Workflow over apps and roles. queue holds promotions that failed
// after the status change; it must not be nil.
func NewWorkflow(apps repository.Repository, roles RoleAssigner, queue promotion.Queue, log *zap.Logger) *Workflow {
	return &Workflow{
		apps:   apps,
		roles:  roles,
		queue:  queue,
		audit:  audit.Nop{},
		logger: logger.OrNop(log),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithTransactions makes Approve atomic: scope builds the repositories used inside tx.
func (w *Workflow) WithTransactions(tx backend.Transactor, scope TxScope) *Workflow {
	if tx != nil && scope != nil {
		w.tx = tx
		w.txScope = scope
	}
	return w
}

// WithEvents sets the emitter for lifecycle events.
func (w *Workflow) WithEvents(e telemetry.EventEmitter) *Workflow {
	w.events = e
	return w
}

// WithAudit sets the audit logger.
func (w *Workflow) WithAudit(a audit.AuditLogger) *Workflow {
	if a != nil {
		w.audit = a
	}
	return w
}

// WithMetrics sets the metrics recorder.
func (w *Workflow) WithMetrics(m Recorder) *Workflow {
	w.metrics = m
	return w
}

// SubmitApplication creates a pending application for userID.
func (w *Workflow) SubmitApplication(ctx context.Context, userID string, fields domain.Fields) (*domain.Application, error) {
	app, err := w.apps.Submit(ctx, userID, fields)
	w.record("submit", err)
	if err != nil {
		return nil, err
	}
	w.logger.Info("application submitted", zap.String("application_id", app.ID), zap.String("user_id", userID))
	w.audit.LogEvent(ctx, userID, audit.ActionApplicationSubmitted, auditResource, app.ID, statusMeta(app.Status))
	w.emit(telemetry.EventApplicationSubmitted, app, userID)
	return app, nil
}

// Approve moves a pending application to approved and promotes the applicant to owner.
// An applicant who became admin while the application was pending keeps that role.
// reviewerID is recorded as reviewed_by and may be empty.
func (w *Workflow) Approve(ctx context.Context, applicationID, reviewerID string) (*domain.Application, error) {
	app, err := w.pending(ctx, applicationID, domain.StatusApproved)
	if err != nil {
		w.record("approve", err)
		return nil, err
	}

	var promoted bool
	if w.tx != nil {
		err = w.tx.InTx(ctx, func(ctx context.Context, tx backend.Store) error {
			apps, roles := w.txScope(tx)
			if err := apps.SetStatus(ctx, app.ID, domain.StatusApproved, reviewerID); err != nil {
				return err
			}
			var err error
			if promoted, err = promote(ctx, roles, app.UserID); err != nil {
				return fmt.Errorf("promote %s: %w", app.UserID, err)
			}
			return nil
		})
		w.record("approve", err)
		if err != nil {
			return nil, err
		}
	} else {
		if err := w.apps.SetStatus(ctx, app.ID, domain.StatusApproved, reviewerID); err != nil {
			w.record("approve", err)
			return nil, err
		}
		if promoted, err = promote(ctx, w.roles, app.UserID); err != nil {
			perr := w.partialApproval(ctx, app, reviewerID, err)
			w.record("approve", perr)
			return nil, perr
		}
		w.record("approve", nil)
	}

	w.markReviewed(app, domain.StatusApproved, reviewerID)
	w.logger.Info("application approved", zap.String("application_id", app.ID), zap.String("user_id", app.UserID))
	w.audit.LogEvent(ctx, reviewerID, audit.ActionApplicationApproved, auditResource, app.ID, statusMeta(app.Status))
	if promoted {
		w.audit.LogEvent(ctx, reviewerID, audit.ActionRoleChanged, "role", app.UserID, roleMeta(roledomain.RoleOwner))
	}
	w.emit(telemetry.EventApplicationApproved, app, reviewerID)
	return app, nil
}

// promote makes userID an owner when they still hold the user role. Owners and admins
// are left alone, so a promotion never demotes.
func promote(ctx context.Context, roles RoleAssigner, userID string) (bool, error) {
	role, err := roles.GetRole(ctx, userID)
	if err != nil {
		return false, err
	}
	if role != roledomain.RoleUser {
		return false, nil
	}
	if err := roles.SetRole(ctx, userID, roledomain.RoleOwner); err != nil {
		return false, err
	}
	return true, nil
}

// partialApproval queues the promotion of an application whose status change already
// committed and builds the error returned to the caller.
func (w *Workflow) partialApproval(ctx context.Context, app *domain.Application, reviewerID string, cause error) error {
	w.logger.Error("application approved but role promotion failed",
		zap.String("application_id", app.ID), zap.String("user_id", app.UserID), zap.Error(cause))
	if err := w.queue.Add(context.WithoutCancel(ctx), app.ID); err != nil {
		w.logger.Error("promotion retry: enqueue failed", zap.String("application_id", app.ID), zap.Error(err))
	} else if w.metrics != nil {
		w.metrics.PromotionQueued()
	}
	w.markReviewed(app, domain.StatusApproved, reviewerID)
	w.audit.LogEvent(ctx, reviewerID, audit.ActionApplicationApproved, auditResource, app.ID, statusMeta(app.Status))
	w.audit.LogEvent(ctx, reviewerID, audit.ActionRolePromotionFailed, "role", app.UserID, fmt.Sprintf(`{"application_id":%q}`, app.ID))
	ev := w.event(telemetry.EventRolePromotionFailed, app, reviewerID)
	ev.Detail = cause.Error()
	telemetry.EmitAsync(w.events, ev, w.logger)
	return &apperr.PartialApprovalError{ApplicationID: app.ID, UserID: app.UserID, Err: cause}
}

// Reject moves a pending application to rejected. The applicant's role is unchanged.
func (w *Workflow) Reject(ctx context.Context, applicationID, reviewerID string) (*domain.Application, error) {
	app, err := w.pending(ctx, applicationID, domain.StatusRejected)
	if err == nil {
		err = w.apps.SetStatus(ctx, app.ID, domain.StatusRejected, reviewerID)
	}
	w.record("reject", err)
	if err != nil {
		return nil, err
	}
	w.markReviewed(app, domain.StatusRejected, reviewerID)
	w.logger.Info("application rejected", zap.String("application_id", app.ID), zap.String("user_id", app.UserID))
	w.audit.LogEvent(ctx, reviewerID, audit.ActionApplicationRejected, auditResource, app.ID, statusMeta(app.Status))
	w.emit(telemetry.EventApplicationRejected, app, reviewerID)
	return app, nil
}

// CheckStatus returns the status of the user's latest application, or StatusNone.
func (w *Workflow) CheckStatus(ctx context.Context, userID string) (domain.Status, error) {
	status, err := w.apps.GetStatus(ctx, userID)
	var nf *apperr.NotFoundError
	if errors.As(err, &nf) {
		return domain.StatusNone, nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// RetryPromotion re-drives the role promotion of an approved application. It succeeds
// without change when the applicant already holds owner (or admin), and removes the
// application from the retry queue once the role is in place.
func (w *Workflow) RetryPromotion(ctx context.Context, applicationID, actorID string) error {
	err := w.retryPromotion(ctx, applicationID, actorID)
	w.record("retry_promotion", err)
	return err
}

func (w *Workflow) retryPromotion(ctx context.Context, applicationID, actorID string) error {
	app, err := w.apps.GetByID(ctx, applicationID)
	if err != nil {
		return err
	}
	if app == nil {
		return apperr.NewNotFound("application", applicationID)
	}
	if app.Status != domain.StatusApproved {
		return &apperr.InvalidTransitionError{ID: app.ID, From: string(app.Status), To: string(roledomain.RoleOwner)}
	}
	promoted, err := promote(ctx, w.roles, app.UserID)
	if err != nil {
		return err
	}
	if promoted {
		w.logger.Info("role promotion recovered", zap.String("application_id", app.ID), zap.String("user_id", app.UserID))
		w.audit.LogEvent(ctx, actorID, audit.ActionRoleChanged, "role", app.UserID, roleMeta(roledomain.RoleOwner))
		w.emit(telemetry.EventRolePromotionRecovered, app, actorID)
	}
	if err := w.queue.Remove(ctx, app.ID); err != nil {
		w.logger.Warn("promotion retry: dequeue failed", zap.String("application_id", app.ID), zap.Error(err))
	}
	return nil
}

// DrainPromotions retries every queued promotion once. Ids whose application is gone or
// no longer approved are dropped; other failures stay queued for the next run.
func (w *Workflow) DrainPromotions(ctx context.Context) (promoted, remaining int, err error) {
	ids, err := w.queue.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	failed := 0
	for i, id := range ids {
		if ctx.Err() != nil {
			remaining += len(ids) - i
			break
		}
		err := w.RetryPromotion(ctx, id, "")
		var (
			nf *apperr.NotFoundError
			it *apperr.InvalidTransitionError
		)
		switch {
		case err == nil:
			promoted++
		case errors.As(err, &nf), errors.As(err, &it):
			w.logger.Warn("promotion retry: dropping application", zap.String("application_id", id), zap.Error(err))
			if rerr := w.queue.Remove(ctx, id); rerr != nil {
				w.logger.Warn("promotion retry: dequeue failed", zap.String("application_id", id), zap.Error(rerr))
			}
		default:
			failed++
			remaining++
			w.logger.Warn("promotion retry: still failing", zap.String("application_id", id), zap.Error(err))
		}
	}
	if w.metrics != nil {
		w.metrics.PromotionDrained(promoted, failed, remaining)
	}
	return promoted, remaining, nil
}

// ListApplications returns applications newest first. status may be empty or "all".
func (w *Workflow) ListApplications(ctx context.Context, status string) ([]domain.Application, error) {
	var filter domain.Status
	switch status {
	case "", "all":
	default:
		filter = domain.Status(status)
		if !filter.Valid() {
			return nil, apperr.NewValidation("status", fmt.Sprintf("must be all, pending, approved or rejected; got %q", status))
		}
	}
	apps, err := w.apps.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []domain.Application{}
	}
	return apps, nil
}

// GetApplication returns one application.
func (w *Workflow) GetApplication(ctx context.Context, id string) (*domain.Application, error) {
	app, err := w.apps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, apperr.NewNotFound("application", id)
	}
	return app, nil
}

// pending loads an application that is about to move to next and checks it is pending.
// The conditional update in SetStatus still guards against concurrent reviewers.
func (w *Workflow) pending(ctx context.Context, id string, next domain.Status) (*domain.Application, error) {
	app, err := w.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.Status.CanTransition(next) {
		return nil, &apperr.InvalidTransitionError{ID: app.ID, From: string(app.Status), To: string(next)}
	}
	return app, nil
}

func (w *Workflow) markReviewed(app *domain.Application, status domain.Status, reviewerID string) {
	now := w.now()
	app.Status = status
	app.ReviewedAt = &now
	if reviewerID != "" {
		app.ReviewedBy = &reviewerID
	}
}

func (w *Workflow) event(eventType string, app *domain.Application, actorID string) *telemetry.Event {
	ev := telemetry.NewEvent(eventType, app.ID, app.UserID, actorID)
	ev.Status = string(app.Status)
	return ev
}

func (w *Workflow) emit(eventType string, app *domain.Application, actorID string) {
	telemetry.EmitAsync(w.events, w.event(eventType, app, actorID), w.logger)
}

func (w *Workflow) record(operation string, err error) {
	if w.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = apperr.Kind(err)
	}
	w.metrics.WorkflowOutcome(operation, outcome)
}

func statusMeta(s domain.Status) string {
	return fmt.Sprintf(`{"status":%q}`, s)
}

func roleMeta(r roledomain.Role) string {
	return fmt.Sprintf(`{"role":%q}`, r)
}
