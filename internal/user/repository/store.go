package repository

import (
	"context"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/user/domain"
)

// StoreRepository implements Repository over a backend.Store.
type StoreRepository struct {
	store backend.Store
}

// NewStoreRepository returns a profile repository that persists to store.
func NewStoreRepository(store backend.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// GetByID returns the profile for id, or nil if not found.
// It returns an error only for backend failures, not for missing rows.
func (r *StoreRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	var rows []domain.Profile
	err := r.store.Select(ctx, backend.TableProfiles, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
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

func (r *StoreRepository) Exists(ctx context.Context, id string) (bool, error) {
	p, err := r.GetByID(ctx, id)
	return p != nil, err
}

func (r *StoreRepository) List(ctx context.Context) ([]domain.Profile, error) {
	rows := make([]domain.Profile, 0)
	err := r.store.Select(ctx, backend.TableProfiles, backend.Query{
		Order: []backend.Order{{Column: "created_at", Descending: true}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Create persists p. The profile must have ID set; it is the auth user id.
func (r *StoreRepository) Create(ctx context.Context, p *domain.Profile) error {
	return r.store.Insert(ctx, backend.TableProfiles, p, p)
}

func (r *StoreRepository) Update(ctx context.Context, id string, u domain.ProfileUpdate) (bool, error) {
	patch := backend.Row{"name": u.Name, "phone": nil}
	if u.Phone != "" {
		patch["phone"] = u.Phone
	}
	n, err := r.store.Update(ctx, backend.TableProfiles, patch, backend.Eq("id", id))
	return n > 0, err
}

func (r *StoreRepository) CompleteOnboarding(ctx context.Context, id string) (bool, error) {
	n, err := r.store.Update(ctx, backend.TableProfiles, backend.Row{"onboarding_completed": true}, backend.Eq("id", id))
	return n > 0, err
}
