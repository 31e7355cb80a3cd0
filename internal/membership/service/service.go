// Package service subscribes users to gym plans, confirms their placeholder payments and
// records gym check-ins.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"gymhub/backend/internal/backend"
	gymdomain "gymhub/backend/internal/gym/domain"
	"gymhub/backend/internal/logger"
	"gymhub/backend/internal/membership/domain"
	"gymhub/backend/internal/membership/repository"
	"gymhub/backend/internal/platform/apperr"
)

// PlanSource resolves plans that are open for subscription.
type PlanSource interface {
	// GetActivePlan returns the plan, or a NotFoundError when it is missing or inactive.
	GetActivePlan(ctx context.Context, planID string) (*gymdomain.Plan, error)
}

// Service implements the membership operations.
type Service struct {
	repo    repository.Repository
	plans   PlanSource
	tx      backend.Transactor
	txScope func(tx backend.Store) repository.Repository
	logger  *zap.Logger
	now     func() time.Time
}

// NewService returns a membership Service.
func NewService(repo repository.Repository, plans PlanSource, log *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		plans:  plans,
		logger: logger.OrNop(log),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithTransactions writes the payment and membership of a subscription in one transaction.
func (s *Service) WithTransactions(tx backend.Transactor, scope func(tx backend.Store) repository.Repository) *Service {
	if tx != nil && scope != nil {
		s.tx = tx
		s.txScope = scope
	}
	return s
}

// Subscribe creates a pending payment for the plan's effective price and a membership that
// starts today and lasts duration_days.
func (s *Service) Subscribe(ctx context.Context, userID, planID string) (*domain.Subscription, error) {
	if userID == "" {
		return nil, apperr.NewUnauthenticated("no user")
	}
	if planID == "" {
		return nil, apperr.NewValidation("plan_id", "is required")
	}
	plan, err := s.plans.GetActivePlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	start := s.now().Truncate(24 * time.Hour)
	sub := &domain.Subscription{
		Payment: domain.Payment{
			UserID: userID,
			GymID:  plan.GymID,
			Amount: plan.EffectivePrice(),
			Status: domain.PaymentPending,
		},
		Membership: domain.Membership{
			UserID:    userID,
			PlanID:    plan.ID,
			GymID:     plan.GymID,
			StartDate: start.Format(domain.DateLayout),
			EndDate:   start.AddDate(0, 0, plan.DurationDays).Format(domain.DateLayout),
		},
	}
	write := func(ctx context.Context, repo repository.Repository) error {
		if err := repo.CreatePayment(ctx, &sub.Payment); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		sub.Membership.PaymentID = sub.Payment.ID
		if err := repo.CreateMembership(ctx, &sub.Membership); err != nil {
			return fmt.Errorf("create membership: %w", err)
		}
		return nil
	}
	if s.tx != nil {
		err = s.tx.InTx(ctx, func(ctx context.Context, tx backend.Store) error {
			return write(ctx, s.txScope(tx))
		})
	} else {
		err = write(ctx, s.repo)
	}
	if err != nil {
		if sub.Payment.ID != "" && sub.Membership.ID == "" && s.tx == nil {
			s.logger.Warn("payment left without membership", zap.String("payment_id", sub.Payment.ID), zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("membership created",
		zap.String("membership_id", sub.Membership.ID),
		zap.String("user_id", userID),
		zap.String("plan_id", plan.ID),
		zap.String("amount", sub.Payment.Amount.String()))
	return sub, nil
}

// ConfirmPayment marks a pending payment completed. Only the payer may confirm it, and
// confirming a completed payment is a no-op.
func (s *Service) ConfirmPayment(ctx context.Context, userID, paymentID string) (*domain.Payment, error) {
	p, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NewNotFound("payment", paymentID)
	}
	if p.UserID != userID {
		return nil, apperr.NewForbidden("payment belongs to another user")
	}
	if p.Status == domain.PaymentCompleted {
		return p, nil
	}
	if _, err := s.repo.CompletePayment(ctx, p.ID); err != nil {
		return nil, err
	}
	p.Status = domain.PaymentCompleted
	s.logger.Info("payment confirmed", zap.String("payment_id", p.ID), zap.String("user_id", userID))
	return p, nil
}

// ListMemberships returns the user's memberships, newest first, with payment state. A
// membership is active when it covers today and its payment is completed.
func (s *Service) ListMemberships(ctx context.Context, userID string) ([]domain.View, error) {
	ms, err := s.repo.ListMemberships(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		if m.PaymentID != "" {
			ids = append(ids, m.PaymentID)
		}
	}
	payments, err := s.repo.ListPayments(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]domain.Payment, len(payments))
	for _, p := range payments {
		byID[p.ID] = p
	}
	today := s.today()
	out := make([]domain.View, 0, len(ms))
	for _, m := range ms {
		p := byID[m.PaymentID]
		out = append(out, domain.View{
			Membership:    m,
			PaymentStatus: p.Status,
			Amount:        p.Amount,
			Active:        p.Status == domain.PaymentCompleted && m.CoversDay(today),
		})
	}
	return out, nil
}

// CheckIn records a visit to gymID. The user needs a paid membership at that gym that
// covers today.
func (s *Service) CheckIn(ctx context.Context, userID, gymID string) (*domain.Attendance, error) {
	if userID == "" {
		return nil, apperr.NewUnauthenticated("no user")
	}
	ms, err := s.repo.MembershipsCovering(ctx, userID, gymID, s.today())
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.PaymentID)
	}
	payments, err := s.repo.ListPayments(ctx, ids)
	if err != nil {
		return nil, err
	}
	paid := false
	for _, p := range payments {
		if p.Status == domain.PaymentCompleted {
			paid = true
			break
		}
	}
	if !paid {
		return nil, apperr.NewForbidden("no active membership at this gym")
	}
	a := &domain.Attendance{UserID: userID, GymID: gymID, CheckInTime: s.now()}
	if err := s.repo.CreateAttendance(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info("checked in", zap.String("user_id", userID), zap.String("gym_id", gymID))
	return a, nil
}

func (s *Service) today() string {
	return s.now().Format(domain.DateLayout)
}
