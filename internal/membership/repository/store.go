package repository

import (
	"context"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/membership/domain"
)

// StoreRepository implements Repository over a backend.Store.
type StoreRepository struct {
	store backend.Store
}

// NewStoreRepository returns a membership repository that persists to store.
func NewStoreRepository(store backend.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

func (r *StoreRepository) CreatePayment(ctx context.Context, p *domain.Payment) error {
	return r.store.Insert(ctx, backend.TablePayments, p, p)
}

// GetPayment returns the payment for id, or nil if not found.
func (r *StoreRepository) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	var rows []domain.Payment
	err := r.store.Select(ctx, backend.TablePayments, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (r *StoreRepository) ListPayments(ctx context.Context, ids []string) ([]domain.Payment, error) {
	rows := make([]domain.Payment, 0)
	if len(ids) == 0 {
		return rows, nil
	}
	err := r.store.Select(ctx, backend.TablePayments, backend.Query{
		Filters: []backend.Filter{backend.In("id", ids)},
	}, &rows)
	return rows, err
}

func (r *StoreRepository) CompletePayment(ctx context.Context, id string) (bool, error) {
	n, err := r.store.Update(ctx, backend.TablePayments,
		backend.Row{"status": string(domain.PaymentCompleted)},
		backend.Eq("id", id), backend.Eq("status", string(domain.PaymentPending)))
	return n > 0, err
}

func (r *StoreRepository) CreateMembership(ctx context.Context, m *domain.Membership) error {
	return r.store.Insert(ctx, backend.TableMemberships, m, m)
}

func (r *StoreRepository) ListMemberships(ctx context.Context, userID string) ([]domain.Membership, error) {
	rows := make([]domain.Membership, 0)
	err := r.store.Select(ctx, backend.TableMemberships, backend.Query{
		Filters: []backend.Filter{backend.Eq("user_id", userID)},
		Order:   []backend.Order{{Column: "created_at", Descending: true}},
	}, &rows)
	return rows, err
}

func (r *StoreRepository) MembershipsCovering(ctx context.Context, userID, gymID, day string) ([]domain.Membership, error) {
	rows := make([]domain.Membership, 0)
	err := r.store.Select(ctx, backend.TableMemberships, backend.Query{
		Filters: []backend.Filter{
			backend.Eq("user_id", userID),
			backend.Eq("gym_id", gymID),
			backend.Lte("start_date", day),
			backend.Gte("end_date", day),
		},
	}, &rows)
	return rows, err
}

func (r *StoreRepository) CreateAttendance(ctx context.Context, a *domain.Attendance) error {
	return r.store.Insert(ctx, backend.TableAttendance, a, a)
}
