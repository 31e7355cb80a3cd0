package repository

import (
	"context"

	"gymhub/backend/internal/role/domain"
)

// Repository defines persistence for role assignments.
type Repository interface {
	// Get returns the assignment for userID, or nil if the user has none.
	Get(ctx context.Context, userID string) (*domain.Assignment, error)
	// ListByRole returns the user ids holding role.
	ListByRole(ctx context.Context, role domain.Role) ([]string, error)
	// List returns every assignment.
	List(ctx context.Context) ([]domain.Assignment, error)
	// Update overwrites the role of an existing assignment and reports whether one existed.
	Update(ctx context.Context, userID string, role domain.Role) (bool, error)
	// Create inserts an assignment. It returns backend.ErrConflict if one exists.
	Create(ctx context.Context, userID string, role domain.Role) error
}
