package repository

import (
	"context"

	"gymhub/backend/internal/audit/domain"
)

// ListFilter narrows List. Empty fields match everything; Limit 0 means no limit.
type ListFilter struct {
	UserID   string
	Action   string
	Resource string
	Limit    int
	Offset   int
}

// Repository defines persistence for audit logs. Rows are append-only.
type Repository interface {
	List(ctx context.Context, f ListFilter) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
