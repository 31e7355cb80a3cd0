package repository

import (
	"context"

	"gymhub/backend/internal/audit/domain"
	"gymhub/backend/internal/backend"
)

// StoreRepository implements Repository over a backend.Store.
type StoreRepository struct {
	store backend.Store
}

// NewStoreRepository returns an audit log repository that persists to store.
func NewStoreRepository(store backend.Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// List returns audit logs newest first, paginated by f.Limit and f.Offset.
func (r *StoreRepository) List(ctx context.Context, f ListFilter) ([]*domain.AuditLog, error) {
	q := backend.Query{
		Order:  []backend.Order{{Column: "created_at", Descending: true}},
		Limit:  f.Limit,
		Offset: f.Offset,
	}
	if f.UserID != "" {
		q.Filters = append(q.Filters, backend.Eq("user_id", f.UserID))
	}
	if f.Action != "" {
		q.Filters = append(q.Filters, backend.Eq("action", f.Action))
	}
	if f.Resource != "" {
		q.Filters = append(q.Filters, backend.Eq("resource", f.Resource))
	}
	rows := make([]*domain.AuditLog, 0)
	if err := r.store.Select(ctx, backend.TableAuditLogs, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Create persists a. The audit log must have ID set.
func (r *StoreRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	return r.store.Insert(ctx, backend.TableAuditLogs, a, nil)
}
