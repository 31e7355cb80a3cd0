package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gymhub/backend/internal/backend"
	"gymhub/backend/internal/platform/apperr"
)

// uniqueViolation is the Postgres SQLSTATE PostgREST reports for duplicate keys.
const uniqueViolation = "23505"

// Store is a backend.Store over PostgREST. It does not implement backend.Transactor:
// PostgREST runs each request in its own transaction.
type Store struct {
	c *Client
}

// NewStore returns a Store that uses c.
func NewStore(c *Client) *Store {
	return &Store{c: c}
}

// Ping checks that the REST endpoint answers.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.c.do(ctx, "ping", request{method: http.MethodGet, path: "/rest/v1/"})
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode < 500 {
		return nil
	}
	return err
}

// Select implements backend.Store.
func (s *Store) Select(ctx context.Context, table string, q backend.Query, dest any) error {
	if !backend.ValidIdentifier(table) {
		return fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, table)
	}
	params, err := filterParams(q.Filters)
	if err != nil {
		return err
	}
	params.Set("select", "*")
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			if !backend.ValidIdentifier(o.Column) {
				return fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, o.Column)
			}
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		params.Set("order", strings.Join(parts, ","))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	resp, err := s.c.do(ctx, "select "+table, request{method: http.MethodGet, path: "/rest/v1/" + table, query: params})
	if err != nil {
		return mapErr(err)
	}
	return backend.Decode(resp.Body, dest)
}

// Insert implements backend.Store. Rows without an id get one here, so when the outcome
// of the POST is unknown the row can be looked up instead of inserted twice.
func (s *Store) Insert(ctx context.Context, table string, record any, dest any) error {
	if !backend.ValidIdentifier(table) {
		return fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, table)
	}
	row, err := backend.ToRow(record)
	if err != nil {
		return err
	}
	if id, _ := row["id"].(string); id == "" {
		row["id"] = uuid.NewString()
	}
	body, err := json.Marshal(row)
	if err != nil {
		return err
	}
	resp, err := s.c.do(ctx, "insert "+table, request{
		method:  http.MethodPost,
		path:    "/rest/v1/" + table,
		body:    body,
		headers: map[string]string{"Content-Type": "application/json", "Prefer": "return=representation"},
	})
	if err != nil {
		var unavailable *apperr.BackendUnavailableError
		if errors.As(err, &unavailable) && ctx.Err() == nil {
			return s.recoverInsert(ctx, table, row["id"].(string), dest, err)
		}
		return mapErr(err)
	}
	if dest == nil {
		return nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return fmt.Errorf("decode insert response: %w", err)
	}
	if len(rows) != 1 {
		return fmt.Errorf("supabase: insert into %s returned %d rows", table, len(rows))
	}
	return backend.Decode(rows[0], dest)
}

// recoverInsert checks whether an insert whose response was lost was applied. It returns
// insertErr when the row is absent or the lookup fails.
func (s *Store) recoverInsert(ctx context.Context, table, id string, dest any, insertErr error) error {
	var rows []json.RawMessage
	if err := s.Select(ctx, table, backend.Query{Filters: []backend.Filter{backend.Eq("id", id)}, Limit: 1}, &rows); err != nil || len(rows) == 0 {
		return insertErr
	}
	s.c.logger.Info("supabase insert applied despite failed response", zap.String("table", table), zap.String("id", id))
	return backend.Decode(rows[0], dest)
}

// Update implements backend.Store. The affected count is the number of rows returned.
func (s *Store) Update(ctx context.Context, table string, patch any, filters ...backend.Filter) (int64, error) {
	if !backend.ValidIdentifier(table) {
		return 0, fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, table)
	}
	row, err := backend.ToRow(patch)
	if err != nil {
		return 0, err
	}
	if len(row) == 0 {
		return 0, errors.New("supabase: empty patch")
	}
	body, err := json.Marshal(row)
	if err != nil {
		return 0, err
	}
	params, err := filterParams(filters)
	if err != nil {
		return 0, err
	}
	resp, err := s.c.do(ctx, "update "+table, request{
		method:  http.MethodPatch,
		path:    "/rest/v1/" + table,
		query:   params,
		body:    body,
		headers: map[string]string{"Content-Type": "application/json", "Prefer": "return=representation"},
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return countRows(resp.Body)
}

// Delete implements backend.Store.
func (s *Store) Delete(ctx context.Context, table string, filters ...backend.Filter) (int64, error) {
	if !backend.ValidIdentifier(table) {
		return 0, fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, table)
	}
	params, err := filterParams(filters)
	if err != nil {
		return 0, err
	}
	resp, err := s.c.do(ctx, "delete "+table, request{
		method:  http.MethodDelete,
		path:    "/rest/v1/" + table,
		query:   params,
		headers: map[string]string{"Prefer": "return=representation"},
	})
	if err != nil {
		return 0, mapErr(err)
	}
	return countRows(resp.Body)
}

func countRows(body []byte) (int64, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return 0, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return int64(len(rows)), nil
}

// filterParams renders filters as PostgREST query parameters (col=op.value).
func filterParams(filters []backend.Filter) (url.Values, error) {
	params := url.Values{}
	for _, f := range filters {
		if !backend.ValidIdentifier(f.Column) {
			return nil, fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, f.Column)
		}
		var expr string
		switch f.Op {
		case backend.OpEq, backend.OpNeq, backend.OpGte, backend.OpLte:
			expr = string(f.Op) + "." + formatValue(f.Value)
		case backend.OpILike:
			expr = "ilike." + strings.ReplaceAll(formatValue(f.Value), "%", "*")
		case backend.OpIsNil:
			if want, _ := f.Value.(bool); want {
				expr = "is.null"
			} else {
				expr = "not.is.null"
			}
		case backend.OpIn:
			values, ok := f.Value.([]string)
			if !ok {
				return nil, fmt.Errorf("supabase: in filter on %s needs []string", f.Column)
			}
			quoted := make([]string, len(values))
			for i, v := range values {
				quoted[i] = strconv.Quote(v)
			}
			expr = "in.(" + strings.Join(quoted, ",") + ")"
		default:
			return nil, fmt.Errorf("supabase: unsupported filter op %q", f.Op)
		}
		params.Add(f.Column, expr)
	}
	return params, nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// mapErr turns a PostgREST duplicate-key error into backend.ErrConflict.
func mapErr(err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && (httpErr.Code == uniqueViolation || httpErr.StatusCode == http.StatusConflict) {
		return fmt.Errorf("%w: %s", backend.ErrConflict, httpErr.Message)
	}
	return err
}
