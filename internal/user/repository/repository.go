package repository

import (
	"context"

	"gymhub/backend/internal/user/domain"
)

// Repository defines persistence for user profiles.
type Repository interface {
	// GetByID returns the profile for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	Exists(ctx context.Context, id string) (bool, error)
	// List returns every profile, newest first.
	List(ctx context.Context) ([]domain.Profile, error)
	Create(ctx context.Context, p *domain.Profile) error
	// Update applies u and reports whether the profile existed.
	Update(ctx context.Context, id string, u domain.ProfileUpdate) (bool, error)
	// CompleteOnboarding sets onboarding_completed and reports whether the profile existed.
	CompleteOnboarding(ctx context.Context, id string) (bool, error)
}
