package repository

import (
	"context"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/role/domain"
)

// StoreRepository implements Repository over a backend.Store.
type StoreRepository struct {
	store backend.Store
}

// NewStoreRepository returns a role repository that persists to store.
func NewStoreRepository(store backend.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// WithStore returns a repository bound to store, typically a transaction store.
func (r *StoreRepository) WithStore(store backend.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// Get returns the assignment for userID, or nil if not found.
// It returns an error only for backend failures, not for missing rows.
func (r *StoreRepository) Get(ctx context.Context, userID string) (*domain.Assignment, error) {
	var rows []domain.Assignment
	err := r.store.Select(ctx, backend.TableUserRoles, backend.Query{
		Filters: []backend.Filter{backend.Eq("user_id", userID)},
		Limit:   1,
	}, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *StoreRepository) ListByRole(ctx context.Context, role domain.Role) ([]string, error) {
	var rows []domain.Assignment
	err := r.store.Select(ctx, backend.TableUserRoles, backend.Query{
		Filters: []backend.Filter{backend.Eq("role", string(role))},
	}, &rows)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, a := range rows {
		ids[i] = a.UserID
	}
	return ids, nil
}

func (r *StoreRepository) List(ctx context.Context) ([]domain.Assignment, error) {
	var rows []domain.Assignment
	if err := r.store.Select(ctx, backend.TableUserRoles, backend.Query{}, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *StoreRepository) Update(ctx context.Context, userID string, role domain.Role) (bool, error) {
	n, err := r.store.Update(ctx, backend.TableUserRoles, backend.Row{"role": string(role)}, backend.Eq("user_id", userID))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *StoreRepository) Create(ctx context.Context, userID string, role domain.Role) error {
	return r.store.Insert(ctx, backend.TableUserRoles, domain.Assignment{UserID: userID, Role: role}, nil)
}
