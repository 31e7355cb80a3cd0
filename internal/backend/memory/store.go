// Package memory implements backend.Store and backend.FileStorage over in-process maps.
// It is used by tests and by BACKEND_DRIVER=memory local runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gymhub/backend/internal/backend"
)

// Hook is called before every operation; a non-nil error aborts it. op is one of
// select, insert, update, delete, upload, remove.
type Hook func(op, table string) error

// defaultUnique lists the columns that must be unique per table, beyond id.
var defaultUnique = map[string][]string{
	backend.TableUserRoles:    {"user_id"},
	backend.TableRoleRetries:  {"application_id"},
	backend.TableApplications: {"pending_key"},
}

// Store is a mutex-guarded table store.
type Store struct {
	mu      sync.Mutex
	tables  map[string][]backend.Row
	objects map[string][]byte
	unique  map[string][]string
	hook    Hook
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tables:  make(map[string][]backend.Row),
		objects: make(map[string][]byte),
		unique:  defaultUnique,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetHook installs h; pass nil to remove it. Tests use it to inject backend failures.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = h
}

func (s *Store) callHook(op, table string) error {
	if s.hook == nil {
		return nil
	}
	return s.hook(op, table)
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

// Select implements backend.Store.
func (s *Store) Select(ctx context.Context, table string, q backend.Query, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.callHook("select", table); err != nil {
		return err
	}
	filters, err := normalizeFilters(q.Filters)
	if err != nil {
		return err
	}
	var out []backend.Row
	for _, row := range s.tables[table] {
		if matchAll(row, filters) {
			out = append(out, row)
		}
	}
	sortRows(out, q.Order)
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			out = nil
		} else {
			out = out[q.Offset:]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	if out == nil {
		out = []backend.Row{}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return backend.Decode(b, dest)
}

// Insert implements backend.Store. Missing id and created_at columns are generated.
func (s *Store) Insert(ctx context.Context, table string, record any, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, err := backend.ToRow(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.callHook("insert", table); err != nil {
		return err
	}
	stored := make(backend.Row, len(row)+2)
	for k, v := range row {
		stored[k] = v
	}
	if id, _ := stored["id"].(string); id == "" {
		stored["id"] = uuid.New().String()
	}
	if stored["created_at"] == nil {
		stored["created_at"] = s.now().Format(time.RFC3339Nano)
	}
	for _, existing := range s.tables[table] {
		if existing["id"] == stored["id"] {
			return fmt.Errorf("%w: %s.id", backend.ErrConflict, table)
		}
		for _, col := range s.unique[table] {
			if existing[col] != nil && reflect.DeepEqual(existing[col], stored[col]) {
				return fmt.Errorf("%w: %s.%s", backend.ErrConflict, table, col)
			}
		}
	}
	s.tables[table] = append(s.tables[table], stored)
	b, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	return backend.Decode(b, dest)
}

// Update implements backend.Store.
func (s *Store) Update(ctx context.Context, table string, patch any, filters ...backend.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	p, err := backend.ToRow(patch)
	if err != nil {
		return 0, err
	}
	nf, err := normalizeFilters(filters)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.callHook("update", table); err != nil {
		return 0, err
	}
	var n int64
	for _, row := range s.tables[table] {
		if !matchAll(row, nf) {
			continue
		}
		for k, v := range p {
			row[k] = v
		}
		n++
	}
	return n, nil
}

// Delete implements backend.Store.
func (s *Store) Delete(ctx context.Context, table string, filters ...backend.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	nf, err := normalizeFilters(filters)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.callHook("delete", table); err != nil {
		return 0, err
	}
	kept := s.tables[table][:0]
	var n int64
	for _, row := range s.tables[table] {
		if matchAll(row, nf) {
			n++
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept
	return n, nil
}

// Upload implements backend.FileStorage. URLs use the memory:// scheme.
func (s *Store) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.callHook("upload", bucket); err != nil {
		return "", err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	s.objects[bucket+"/"+path] = buf
	return "memory://" + bucket + "/" + path, nil
}

// Remove deletes an object; removing a missing object is not an error.
func (s *Store) Remove(ctx context.Context, bucket, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.callHook("remove", bucket); err != nil {
		return err
	}
	delete(s.objects, bucket+"/"+path)
	return nil
}

// Object returns a stored object and whether it exists.
func (s *Store) Object(bucket, path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[bucket+"/"+path]
	return b, ok
}

// Files adapts the store's object methods to backend.FileStorage.
func (s *Store) Files() backend.FileStorage { return fileStorage{s} }

type fileStorage struct{ s *Store }

func (f fileStorage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	return f.s.Upload(ctx, bucket, path, data, contentType)
}

func (f fileStorage) Delete(ctx context.Context, bucket, path string) error {
	return f.s.Remove(ctx, bucket, path)
}

type normFilter struct {
	backend.Filter
	value any
	re    *regexp.Regexp
	set   map[string]bool
}

func normalizeFilters(filters []backend.Filter) ([]normFilter, error) {
	out := make([]normFilter, 0, len(filters))
	for _, f := range filters {
		if !backend.ValidIdentifier(f.Column) {
			return nil, fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, f.Column)
		}
		nf := normFilter{Filter: f}
		switch f.Op {
		case backend.OpILike:
			pattern, _ := f.Value.(string)
			nf.re = likeToRegexp(pattern)
		case backend.OpIn:
			values, _ := f.Value.([]string)
			nf.set = make(map[string]bool, len(values))
			for _, v := range values {
				nf.set[v] = true
			}
		default:
			v, err := normalize(f.Value)
			if err != nil {
				return nil, err
			}
			nf.value = v
		}
		out = append(out, nf)
	}
	return out, nil
}

// normalize gives a filter value the same shape a stored value has after JSON decoding.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func likeToRegexp(pattern string) *regexp.Regexp {
	var sb strings.Builder
	sb.WriteString("(?is)^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.MustCompile(sb.String())
}

func matchAll(row backend.Row, filters []normFilter) bool {
	for _, f := range filters {
		if !match(row, f) {
			return false
		}
	}
	return true
}

func match(row backend.Row, f normFilter) bool {
	got := row[f.Column]
	switch f.Op {
	case backend.OpEq:
		return equal(got, f.value)
	case backend.OpNeq:
		return !equal(got, f.value)
	case backend.OpILike:
		s, ok := got.(string)
		return ok && f.re.MatchString(s)
	case backend.OpIn:
		s, ok := got.(string)
		return ok && f.set[s]
	case backend.OpGte:
		c, ok := compare(got, f.value)
		return ok && c >= 0
	case backend.OpLte:
		c, ok := compare(got, f.value)
		return ok && c <= 0
	case backend.OpIsNil:
		want, _ := f.value.(bool)
		return (got == nil) == want
	default:
		return false
	}
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02"}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// compare orders two decoded JSON scalars. ok is false when they are not comparable.
func compare(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}
		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		}
		return 0, true
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		if at, aok := parseTime(av); aok {
			if bt, bok := parseTime(bv); bok {
				return at.Compare(bt), true
			}
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func sortRows(rows []backend.Row, orders []backend.Order) {
	if len(orders) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range orders {
			c, ok := compare(rows[i][o.Column], rows[j][o.Column])
			if !ok || c == 0 {
				continue
			}
			if o.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
