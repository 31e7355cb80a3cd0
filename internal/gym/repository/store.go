package repository

import (
	"context"
	"strings"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/gym/domain"
)

// StoreRepository implements Repository over a backend.Store.
type StoreRepository struct {
	store backend.Store
}

// NewStoreRepository returns a gym repository that persists to store.
func NewStoreRepository(store backend.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

func (r *StoreRepository) CreateGym(ctx context.Context, g *domain.Gym) error {
	if g.Photos == nil {
		g.Photos = []string{}
	}
	return r.store.Insert(ctx, backend.TableGyms, g, g)
}

// GetGym returns the gym for id, or nil if not found.
func (r *StoreRepository) GetGym(ctx context.Context, id string) (*domain.Gym, error) {
	var rows []domain.Gym
	err := r.store.Select(ctx, backend.TableGyms, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (r *StoreRepository) ListGymsByOwner(ctx context.Context, ownerID string) ([]domain.Gym, error) {
	rows := make([]domain.Gym, 0)
	err := r.store.Select(ctx, backend.TableGyms, backend.Query{
		Filters: []backend.Filter{backend.Eq("owner_id", ownerID)},
		Order:   []backend.Order{{Column: "created_at", Descending: true}},
	}, &rows)
	return rows, err
}

// ListGyms filters name and location in two queries because filters are ANDed, then
// merges the results.
func (r *StoreRepository) ListGyms(ctx context.Context, search string) ([]domain.Gym, error) {
	order := []backend.Order{{Column: "created_at", Descending: true}}
	search = strings.TrimSpace(search)
	if search == "" {
		rows := make([]domain.Gym, 0)
		err := r.store.Select(ctx, backend.TableGyms, backend.Query{Order: order}, &rows)
		return rows, err
	}
	pattern := "%" + escapeLike(search) + "%"
	var byName, byLocation []domain.Gym
	if err := r.store.Select(ctx, backend.TableGyms, backend.Query{
		Filters: []backend.Filter{backend.ILike("name", pattern)},
		Order:   order,
	}, &byName); err != nil {
		return nil, err
	}
	if err := r.store.Select(ctx, backend.TableGyms, backend.Query{
		Filters: []backend.Filter{backend.ILike("location", pattern)},
		Order:   order,
	}, &byLocation); err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(byName))
	out := make([]domain.Gym, 0, len(byName)+len(byLocation))
	for _, g := range append(byName, byLocation...) {
		if seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		out = append(out, g)
	}
	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}

func (r *StoreRepository) UpdateGym(ctx context.Context, id string, patch backend.Row) (bool, error) {
	n, err := r.store.Update(ctx, backend.TableGyms, patch, backend.Eq("id", id))
	return n > 0, err
}

func (r *StoreRepository) DeleteGym(ctx context.Context, id string) error {
	_, err := r.store.Delete(ctx, backend.TableGyms, backend.Eq("id", id))
	return err
}

func (r *StoreRepository) CreatePlan(ctx context.Context, p *domain.Plan) error {
	if p.Features == nil {
		p.Features = []string{}
	}
	if p.Amenities == nil {
		p.Amenities = []string{}
	}
	return r.store.Insert(ctx, backend.TablePlans, p, p)
}

// GetPlan returns the plan for id, or nil if not found.
func (r *StoreRepository) GetPlan(ctx context.Context, id string) (*domain.Plan, error) {
	var rows []domain.Plan
	err := r.store.Select(ctx, backend.TablePlans, backend.Query{
		Filters: []backend.Filter{backend.Eq("id", id)},
		Limit:   1,
	}, &rows)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (r *StoreRepository) ListPlans(ctx context.Context, gymID string, activeOnly bool) ([]domain.Plan, error) {
	filters := []backend.Filter{backend.Eq("gym_id", gymID)}
	if activeOnly {
		filters = append(filters, backend.Eq("is_active", true))
	}
	rows := make([]domain.Plan, 0)
	err := r.store.Select(ctx, backend.TablePlans, backend.Query{
		Filters: filters,
		Order:   []backend.Order{{Column: "price"}},
	}, &rows)
	return rows, err
}

func (r *StoreRepository) ListActivePlans(ctx context.Context, gymIDs []string) ([]domain.Plan, error) {
	rows := make([]domain.Plan, 0)
	if len(gymIDs) == 0 {
		return rows, nil
	}
	err := r.store.Select(ctx, backend.TablePlans, backend.Query{
		Filters: []backend.Filter{backend.In("gym_id", gymIDs), backend.Eq("is_active", true)},
	}, &rows)
	return rows, err
}

func (r *StoreRepository) UpdatePlan(ctx context.Context, id string, patch backend.Row) (bool, error) {
	n, err := r.store.Update(ctx, backend.TablePlans, patch, backend.Eq("id", id))
	return n > 0, err
}

func (r *StoreRepository) DeletePlan(ctx context.Context, id string) error {
	_, err := r.store.Delete(ctx, backend.TablePlans, backend.Eq("id", id))
	return err
}

func (r *StoreRepository) DeletePlansByGym(ctx context.Context, gymID string) error {
	_, err := r.store.Delete(ctx, backend.TablePlans, backend.Eq("gym_id", gymID))
	return err
}
