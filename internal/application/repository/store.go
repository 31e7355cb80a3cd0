package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gymhub/backend/internal/application/domain"
	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/platform/apperr"
	roledomain "gymhub/backend/internal/role/domain"
)

var newestFirst = []backend.Order{{Column: "created_at", Descending: true}}

// StoreRepository implements Repository over a backend.Store.
type StoreRepository struct {
	store  backend.Store
	roles  RoleGetter
	policy domain.ReapplyPolicy
	now    func() time.Time
}

// NewStoreRepository returns an application repository over store. roles gates Submit and
// policy decides whether a user with an application on file may submit again.
func NewStoreRepository(store backend.Store, roles RoleGetter, policy domain.ReapplyPolicy) *StoreRepository {
	if !policy.Valid() {
		policy = domain.PolicySinglePending
	}
	return &StoreRepository{
		store:  store,
		roles:  roles,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithStore returns a repository bound to store, typically a transaction store.
func (r *StoreRepository) WithStore(store backend.Store) *StoreRepository {
	cp := *r
	cp.store = store
	return &cp
}

// Policy returns the re-application policy in effect.
func (r *StoreRepository) Policy() domain.ReapplyPolicy { return r.policy }

// Submit stores a pending application. On a transactional store the applicant's profile
// row is locked first so overlapping submissions serialize; on every store the
// pending_key unique index rejects a second pending application.
func (r *StoreRepository) Submit(ctx context.Context, userID string, fields domain.Fields) (*domain.Application, error) {
	if userID == "" {
		return nil, apperr.NewUnauthenticated("no user")
	}
	role, err := r.roles.GetRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if role != roledomain.RoleUser {
		return nil, apperr.NewForbidden(fmt.Sprintf("role %s cannot apply for ownership", role))
	}
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	var created *domain.Application
	if tx, ok := r.store.(backend.Transactor); ok && r.policy != domain.PolicyAllowMultiple {
		err = tx.InTx(ctx, func(ctx context.Context, s backend.Store) error {
			if _, err := s.Update(ctx, backend.TableProfiles, backend.Row{"id": userID}, backend.Eq("id", userID)); err != nil {
				return fmt.Errorf("lock profile %s: %w", userID, err)
			}
			var err error
			created, err = r.WithStore(s).insertPending(ctx, userID, fields)
			return err
		})
	} else {
		created, err = r.insertPending(ctx, userID, fields)
	}
	if err != nil {
		var de *apperr.DuplicateApplicationError
		if errors.As(err, &de) && de.ExistingID == "" {
			if latest, lerr := r.Latest(ctx, userID); lerr == nil && latest != nil {
				de.ExistingID = latest.ID
			}
		}
		return nil, err
	}
	return created, nil
}

func (r *StoreRepository) insertPending(ctx context.Context, userID string, fields domain.Fields) (*domain.Application, error) {
	latest, err := r.Latest(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := r.policy.CheckReapply(userID, latest); err != nil {
		return nil, err
	}
	var created domain.Application
	err = r.store.Insert(ctx, backend.TableApplications, domain.Application{
		UserID:     userID,
		Status:     domain.StatusPending,
		Fields:     fields,
		PendingKey: r.policy.PendingKeyFor(userID),
	}, &created)
	if errors.Is(err, backend.ErrConflict) {
		return nil, &apperr.DuplicateApplicationError{UserID: userID, Status: string(domain.StatusPending)}
	}
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *StoreRepository) GetStatus(ctx context.Context, userID string) (domain.Status, error) {
	a, err := r.Latest(ctx, userID)
	if err != nil {
		return "", err
	}
	if a == nil {
		return "", &apperr.NotFoundError{Entity: "application for user", ID: userID}
	}
	return a.Status, nil
}

// SetStatus only updates rows still pending, so concurrent reviewers cannot both win.
// When nothing matched, the row is re-read to tell a missing id from a terminal one.
func (r *StoreRepository) SetStatus(ctx context.Context, id string, status domain.Status, reviewedBy string) error {
	if !status.Terminal() {
		return apperr.NewValidation("status", fmt.Sprintf("must be approved or rejected; got %q", status))
	}
	patch := backend.Row{
		"status":      string(status),
		"reviewed_at": r.now(),
		"pending_key": nil,
	}
	if reviewedBy != "" {
		patch["reviewed_by"] = reviewedBy
	}
	n, err := r.store.Update(ctx, backend.TableApplications, patch,
		backend.Eq("id", id), backend.Eq("status", string(domain.StatusPending)))
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return apperr.NewNotFound("application", id)
	}
	return &apperr.InvalidTransitionError{ID: id, From: string(current.Status), To: string(status)}
}

// GetByID returns the application for id, or nil if not found.
func (r *StoreRepository) GetByID(ctx context.Context, id string) (*domain.Application, error) {
	var rows []domain.Application
	err := r.store.Select(ctx, backend.TableApplications, backend.Query{
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

func (r *StoreRepository) Latest(ctx context.Context, userID string) (*domain.Application, error) {
	var rows []domain.Application
	err := r.store.Select(ctx, backend.TableApplications, backend.Query{
		Filters: []backend.Filter{backend.Eq("user_id", userID)},
		Order:   newestFirst,
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

func (r *StoreRepository) List(ctx context.Context, status domain.Status) ([]domain.Application, error) {
	q := backend.Query{Order: newestFirst}
	if status != "" {
		q.Filters = []backend.Filter{backend.Eq("status", string(status))}
	}
	var rows []domain.Application
	if err := r.store.Select(ctx, backend.TableApplications, q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
