package repository

import (
	"context"

	"gymhub/backend/internal/membership/domain"
)

// Repository defines persistence for memberships, payments and attendance.
type Repository interface {
	CreatePayment(ctx context.Context, p *domain.Payment) error
	// GetPayment returns the payment for id, or nil if not found.
	GetPayment(ctx context.Context, id string) (*domain.Payment, error)
	// ListPayments returns the payments with the given ids.
	ListPayments(ctx context.Context, ids []string) ([]domain.Payment, error)
	// CompletePayment marks a pending payment completed and reports whether it was pending.
	CompletePayment(ctx context.Context, id string) (bool, error)

	CreateMembership(ctx context.Context, m *domain.Membership) error
	// ListMemberships returns a user's memberships, newest first.
	ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error)
	// MembershipsCovering returns the user's memberships at gymID that include day.
	MembershipsCovering(ctx context.Context, userID, gymID, day string) ([]domain.Membership, error)

	CreateAttendance(ctx context.Context, a *domain.Attendance) error
}
