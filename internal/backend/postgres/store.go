// Package postgres implements backend.Store over database/sql with the pgx driver.
// Rows cross the boundary as JSON (row_to_json / json_populate_record) so the same
// typed records work against this store and the REST backend.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"gymhub/backend/internal/backend"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// querier is the subset of *sql.DB and *sql.Tx the store needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is a backend.Store and backend.Transactor backed by Postgres.
type Store struct {
	db *sql.DB
	q  querier
}

// NewStore returns a Store that uses db. db is typically opened with internal/db.Open.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Select implements backend.Store.
func (s *Store) Select(ctx context.Context, table string, q backend.Query, dest any) error {
	if !backend.ValidIdentifier(table) {
		return fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, table)
	}
	where, args, err := buildWhere(q.Filters, 1)
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("SELECT row_to_json(t) FROM (SELECT * FROM ")
	sb.WriteString(quote(table))
	sb.WriteString(where)
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			if !backend.ValidIdentifier(o.Column) {
				return fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, o.Column)
			}
			dir := "ASC"
			if o.Descending {
				dir = "DESC"
			}
			parts = append(parts, quote(o.Column)+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	if q.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
	}
	sb.WriteString(") t")

	rows, err := s.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return mapErr(err)
	}
	defer rows.Close()
	out := make([]json.RawMessage, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return err
		}
		out = append(out, json.RawMessage(raw))
	}
	if err := rows.Err(); err != nil {
		return mapErr(err)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return backend.Decode(b, dest)
}

// Insert implements backend.Store. Columns absent from record keep their defaults.
func (s *Store) Insert(ctx context.Context, table string, record any, dest any) error {
	if !backend.ValidIdentifier(table) {
		return fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, table)
	}
	row, err := backend.ToRow(record)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return err
	}
	cols := quoteAll(backend.Columns(row))
	query := fmt.Sprintf(
		"INSERT INTO %s AS t (%s) SELECT %s FROM json_populate_record(NULL::%s, $1::json) RETURNING row_to_json(t)",
		quote(table), cols, cols, quote(table),
	)
	var raw []byte
	if err := s.q.QueryRowContext(ctx, query, string(payload)).Scan(&raw); err != nil {
		return mapErr(err)
	}
	return backend.Decode(raw, dest)
}

// Update implements backend.Store.
func (s *Store) Update(ctx context.Context, table string, patch any, filters ...backend.Filter) (int64, error) {
	if !backend.ValidIdentifier(table) {
		return 0, fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, table)
	}
	row, err := backend.ToRow(patch)
	if err != nil {
		return 0, err
	}
	if len(row) == 0 {
		return 0, errors.New("postgres: empty patch")
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return 0, err
	}
	where, args, err := buildWhere(filters, 2)
	if err != nil {
		return 0, err
	}
	cols := quoteAll(backend.Columns(row))
	query := fmt.Sprintf(
		"UPDATE %s SET (%s) = (SELECT %s FROM json_populate_record(NULL::%s, $1::json))%s",
		quote(table), cols, cols, quote(table), where,
	)
	res, err := s.q.ExecContext(ctx, query, append([]any{string(payload)}, args...)...)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}

// Delete implements backend.Store.
func (s *Store) Delete(ctx context.Context, table string, filters ...backend.Filter) (int64, error) {
	if !backend.ValidIdentifier(table) {
		return 0, fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, table)
	}
	where, args, err := buildWhere(filters, 1)
	if err != nil {
		return 0, err
	}
	res, err := s.q.ExecContext(ctx, "DELETE FROM "+quote(table)+where, args...)
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}

// InTx implements backend.Transactor. fn's error (or a panic) rolls the transaction back.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx backend.Store) error) (err error) {
	if s.db == nil {
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(ctx, &Store{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return mapErr(tx.Commit())
}

// buildWhere renders filters as a WHERE clause with placeholders starting at $start.
func buildWhere(filters []backend.Filter, start int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	n := start
	args := make([]any, 0, len(filters))
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		if !backend.ValidIdentifier(f.Column) {
			return "", nil, fmt.Errorf("%w: %q", backend.ErrInvalidIdentifier, f.Column)
		}
		col := quote(f.Column)
		switch f.Op {
		case backend.OpEq:
			conds = append(conds, fmt.Sprintf("%s = $%d", col, n))
		case backend.OpNeq:
			conds = append(conds, fmt.Sprintf("%s <> $%d", col, n))
		case backend.OpILike:
			conds = append(conds, fmt.Sprintf("%s ILIKE $%d", col, n))
		case backend.OpGte:
			conds = append(conds, fmt.Sprintf("%s >= $%d", col, n))
		case backend.OpLte:
			conds = append(conds, fmt.Sprintf("%s <= $%d", col, n))
		case backend.OpIsNil:
			if want, _ := f.Value.(bool); want {
				conds = append(conds, col+" IS NULL")
			} else {
				conds = append(conds, col+" IS NOT NULL")
			}
			continue
		case backend.OpIn:
			values, ok := f.Value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("postgres: in filter on %s needs []string", f.Column)
			}
			if len(values) == 0 {
				conds = append(conds, "FALSE")
				continue
			}
			ph := make([]string, len(values))
			for i, v := range values {
				ph[i] = fmt.Sprintf("$%d", n)
				args = append(args, v)
				n++
			}
			conds = append(conds, fmt.Sprintf("%s IN (%s)", col, strings.Join(ph, ", ")))
			continue
		default:
			return "", nil, fmt.Errorf("postgres: unsupported filter op %q", f.Op)
		}
		args = append(args, f.Value)
		n++
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func quote(ident string) string { return `"` + ident + `"` }

func quoteAll(idents []string) string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = quote(id)
	}
	return strings.Join(out, ", ")
}

// mapErr translates driver errors the rest of the code branches on.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", backend.ErrConflict, pgErr.ConstraintName)
	}
	return err
}
