package backend

import (
	"context"
	"errors"
	"net"
	"time"

	"gymhub/backend/internal/platform/apperr"
)

// DefaultTimeout bounds a single backend call when no timeout is configured.
const DefaultTimeout = 10 * time.Second

// WithTimeout wraps s so that every call runs under a deadline of d and transport
// failures (deadline, cancellation, network) surface as *apperr.BackendUnavailableError.
// If s implements Transactor, so does the returned store.
func WithTimeout(s Store, d time.Duration) Store {
	if d <= 0 {
		d = DefaultTimeout
	}
	base := &timeoutStore{inner: s, timeout: d}
	if tx, ok := s.(Transactor); ok {
		return &timeoutTxStore{timeoutStore: base, tx: tx}
	}
	return base
}

type timeoutStore struct {
	inner   Store
	timeout time.Duration
}

func (s *timeoutStore) Select(ctx context.Context, table string, q Query, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return Classify("select "+table, s.inner.Select(ctx, table, q, dest))
}

func (s *timeoutStore) Insert(ctx context.Context, table string, record any, dest any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return Classify("insert "+table, s.inner.Insert(ctx, table, record, dest))
}

func (s *timeoutStore) Update(ctx context.Context, table string, patch any, filters ...Filter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.inner.Update(ctx, table, patch, filters...)
	return n, Classify("update "+table, err)
}

func (s *timeoutStore) Delete(ctx context.Context, table string, filters ...Filter) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.inner.Delete(ctx, table, filters...)
	return n, Classify("delete "+table, err)
}

// Ping forwards to the inner store when it can report reachability.
func (s *timeoutStore) Ping(ctx context.Context) error {
	p, ok := s.inner.(Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return Classify("ping", p.Ping(ctx))
}

type timeoutTxStore struct {
	*timeoutStore
	tx Transactor
}

// InTx runs fn in one transaction bounded by the store timeout. The tx store handed to
// fn is not re-wrapped; the outer deadline already covers it.
func (s *timeoutTxStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return Classify("transaction", s.tx.InTx(ctx, fn))
}

// Classify converts transport failures into *apperr.BackendUnavailableError and leaves
// every other error (including nil and typed app errors) untouched.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var unavailable *apperr.BackendUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &apperr.BackendUnavailableError{Op: op, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &apperr.BackendUnavailableError{Op: op, Err: err}
	}
	return err
}
