// Package promotion keeps the ids of approved applications whose role promotion failed,
// and re-drives them on a schedule.
package promotion

import (
	"context"
	"errors"
	"time"

	"gymhub/backend/internal/backend"
)

// Queue is a set of application ids awaiting role promotion. Adding an id twice keeps
// one entry; removing a missing id is not an error.
type Queue interface {
	Add(ctx context.Context, applicationID string) error
	Remove(ctx context.Context, applicationID string) error
	List(ctx context.Context) ([]string, error)
}

type retryRow struct {
	ID            string    `json:"id,omitempty"`
	ApplicationID string    `json:"application_id"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
}

// StoreQueue keeps the queue in the role_promotion_retries table, unique on application_id.
type StoreQueue struct {
	store backend.Store
}

// NewStoreQueue returns a Queue persisted through store.
func NewStoreQueue(store backend.Store) *StoreQueue {
	return &StoreQueue{store: store}
}

func (q *StoreQueue) Add(ctx context.Context, applicationID string) error {
	err := q.store.Insert(ctx, backend.TableRoleRetries, retryRow{ApplicationID: applicationID}, nil)
	if errors.Is(err, backend.ErrConflict) {
		return nil
	}
	return err
}

func (q *StoreQueue) Remove(ctx context.Context, applicationID string) error {
	_, err := q.store.Delete(ctx, backend.TableRoleRetries, backend.Eq("application_id", applicationID))
	return err
}

// List returns queued ids, oldest first.
func (q *StoreQueue) List(ctx context.Context) ([]string, error) {
	var rows []retryRow
	err := q.store.Select(ctx, backend.TableRoleRetries, backend.Query{
		Order: []backend.Order{{Column: "created_at"}},
	}, &rows)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ApplicationID
	}
	return ids, nil
}
