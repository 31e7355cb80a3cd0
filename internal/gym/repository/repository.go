package repository

import (
	"context"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/gym/domain"
)

// Repository defines persistence for gyms and plans.
type Repository interface {
	CreateGym(ctx context.Context, g *domain.Gym) error
	// GetGym returns the gym for id, or nil if not found.
	GetGym(ctx context.Context, id string) (*domain.Gym, error)
	ListGymsByOwner(ctx context.Context, ownerID string) ([]domain.Gym, error)
	// ListGyms returns gyms newest first; a non-empty search matches name or location.
	ListGyms(ctx context.Context, search string) ([]domain.Gym, error)
	// UpdateGym applies patch and reports whether the gym existed.
	UpdateGym(ctx context.Context, id string, patch backend.Row) (bool, error)
	DeleteGym(ctx context.Context, id string) error

	CreatePlan(ctx context.Context, p *domain.Plan) error
	// GetPlan returns the plan for id, or nil if not found.
	GetPlan(ctx context.Context, id string) (*domain.Plan, error)
	// ListPlans returns a gym's plans, cheapest first.
	ListPlans(ctx context.Context, gymID string, activeOnly bool) ([]domain.Plan, error)
	// ListActivePlans returns the active plans of the given gyms.
	ListActivePlans(ctx context.Context, gymIDs []string) ([]domain.Plan, error)
	UpdatePlan(ctx context.Context, id string, patch backend.Row) (bool, error)
	DeletePlan(ctx context.Context, id string) error
	DeletePlansByGym(ctx context.Context, gymID string) error
}
