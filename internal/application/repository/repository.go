package repository

import (
	"context"

	"gymhub/backend/internal/application/domain"
	roledomain "gymhub/backend/internal/role/domain"
)

// RoleGetter resolves a user's current role.
type RoleGetter interface {
	GetRole(ctx context.Context, userID string) (roledomain.Role, error)
}

// Repository defines persistence for owner applications.
type Repository interface {
	// Submit checks the applicant's role, the fields and the re-application policy, then
	// stores a pending application.
	Submit(ctx context.Context, userID string, fields domain.Fields) (*domain.Application, error)
	// GetStatus returns the status of the user's latest application, or a NotFoundError.
	GetStatus(ctx context.Context, userID string) (domain.Status, error)
	// SetStatus moves a pending application to a terminal status. reviewedBy may be empty.
	SetStatus(ctx context.Context, id string, status domain.Status, reviewedBy string) error
	// GetByID returns the application, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Application, error)
	// Latest returns the user's newest application, or nil if the user has none.
	Latest(ctx context.Context, userID string) (*domain.Application, error)
	// List returns applications newest first; an empty status lists all.
	List(ctx context.Context, status domain.Status) ([]domain.Application, error)
}
