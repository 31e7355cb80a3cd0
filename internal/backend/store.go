// Package backend defines the contract with the backend data service: a table store with
// filters, an authenticator that resolves the current user from an access token, and
// file storage. Implementations live in the postgres, supabase and memory subpackages.
package backend

import (
	"context"
	"errors"
	"regexp"
)

// Tables used by the application.
const (
	TableProfiles     = "profiles"
	TableUserRoles    = "user_roles"
	TableApplications = "gym_owners"
	TableGyms         = "gyms"
	TablePlans        = "plans"
	TableMemberships  = "memberships"
	TablePayments     = "payments"
	TableAttendance   = "attendance"
	TableAuditLogs    = "audit_logs"
	TableRoleRetries  = "role_promotion_retries"
)

// Row is an untyped patch or record. Repositories prefer typed records; Row is used for
// partial updates where only some columns change.
type Row map[string]any

// Op is a filter operator.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpILike Op = "ilike"
	OpIn    Op = "in"
	OpGte   Op = "gte"
	OpLte   Op = "lte"
	OpIsNil Op = "is_null"
)

// Filter restricts the rows a call touches. Filters in one call are ANDed.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq is shorthand for an equality filter.
func Eq(column string, value any) Filter { return Filter{Column: column, Op: OpEq, Value: value} }

// Neq is shorthand for a not-equal filter.
func Neq(column string, value any) Filter { return Filter{Column: column, Op: OpNeq, Value: value} }

// ILike is shorthand for a case-insensitive pattern filter; % is the wildcard.
func ILike(column, pattern string) Filter {
	return Filter{Column: column, Op: OpILike, Value: pattern}
}

// In is shorthand for a set-membership filter. values must be a slice of strings.
func In(column string, values []string) Filter {
	return Filter{Column: column, Op: OpIn, Value: values}
}

// Gte is shorthand for a greater-or-equal filter.
func Gte(column string, value any) Filter { return Filter{Column: column, Op: OpGte, Value: value} }

// Lte is shorthand for a less-or-equal filter.
func Lte(column string, value any) Filter { return Filter{Column: column, Op: OpLte, Value: value} }

// Order sorts a select.
type Order struct {
	Column     string
	Descending bool
}

// Query describes a select.
type Query struct {
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

// Store reads and writes table rows. Records are structs with json tags (or Row);
// dest arguments are pointers to a slice (Select) or struct (Insert) and are decoded
// from the JSON representation of the rows.
type Store interface {
	// Select decodes the rows matching q into dest, a pointer to a slice.
	Select(ctx context.Context, table string, q Query, dest any) error
	// Insert writes record and decodes the stored row (with generated columns) into dest.
	// dest may be nil.
	Insert(ctx context.Context, table string, record any, dest any) error
	// Update applies patch to the rows matching filters and returns how many changed.
	// A zero count with a nil error means no row matched.
	Update(ctx context.Context, table string, patch any, filters ...Filter) (int64, error)
	// Delete removes the rows matching filters and returns how many were removed.
	Delete(ctx context.Context, table string, filters ...Filter) (int64, error)
}

// Transactor is implemented by stores that can run several writes atomically.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// Identity is the authenticated caller as known to the auth service.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Authenticator resolves the current user from an access token.
// It returns (nil, nil) when the token does not identify a live session.
type Authenticator interface {
	CurrentUser(ctx context.Context, accessToken string) (*Identity, error)
}

// FileStorage stores binary objects in buckets and returns public URLs for them.
type FileStorage interface {
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, bucket, path string) error
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	// ErrInvalidIdentifier is returned for table or column names outside [a-z0-9_].
	ErrInvalidIdentifier = errors.New("backend: invalid identifier")
	// ErrInvalidDest is returned when dest is not a pointer.
	ErrInvalidDest       = errors.New("backend: dest must be a non-nil pointer")
	// ErrConflict is returned when an insert violates a uniqueness constraint.
	ErrConflict          = errors.New("backend: unique constraint violation")
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether name is safe to use as a table or column name.
func ValidIdentifier(name string) bool {
	return identRe.MatchString(name)
}
