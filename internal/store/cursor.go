package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Query describes a single-table read.
type Query struct {
	Table   string
	Columns []string
	Where   string
	Args    []any
	OrderBy string
	Limit   int
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Cursor is a fully materialised result set with random-access positioning.
// It holds no connection, so it can outlive the transaction that produced it
// and later writes never change what it returns.
type Cursor struct {
	columns map[string]int
	rows    [][]any
	pos     int
}

func selectCursor(ctx context.Context, q queryer, query Query) (*Cursor, error) {
	if err := checkIdent(query.Table); err != nil {
		return nil, err
	}
	if len(query.Columns) == 0 {
		return nil, fmt.Errorf("select %s: no columns", query.Table)
	}
	for _, c := range query.Columns {
		if err := checkIdent(c); err != nil {
			return nil, err
		}
	}
	stmt := "SELECT " + strings.Join(query.Columns, ", ") + " FROM " + query.Table
	if query.Where != "" {
		stmt += " WHERE " + query.Where
	}
	if query.OrderBy != "" {
		stmt += " ORDER BY " + query.OrderBy
	}
	args := query.Args
	if query.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(append([]any(nil), args...), query.Limit)
	}

	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", query.Table, err)
	}
	defer func() { _ = rows.Close() }()

	c := &Cursor{columns: make(map[string]int, len(query.Columns)), pos: -1}
	for i, name := range query.Columns {
		c.columns[name] = i
	}
	for rows.Next() {
		vals := make([]any, len(query.Columns))
		ptrs := make([]any, len(vals))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", query.Table, err)
		}
		c.rows = append(c.rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", query.Table, err)
	}
	return c, nil
}

// Count returns the number of rows.
func (c *Cursor) Count() int {
	if c == nil {
		return 0
	}
	return len(c.rows)
}

// MoveTo positions the cursor on row i. It returns false when i is out of
// range, leaving the position unchanged.
func (c *Cursor) MoveTo(i int) bool {
	if c == nil || i < 0 || i >= len(c.rows) {
		return false
	}
	c.pos = i
	return true
}

// Position returns the current row index, or -1 before the first MoveTo.
func (c *Cursor) Position() int {
	if c == nil {
		return -1
	}
	return c.pos
}

// Value returns the raw value of a column in the current row.
func (c *Cursor) Value(column string) any {
	if c == nil || c.pos < 0 {
		return nil
	}
	i, ok := c.columns[column]
	if !ok {
		return nil
	}
	return c.rows[c.pos][i]
}

// String reads a text column.
func (c *Cursor) String(column string) string {
	switch v := c.Value(column).(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int64 reads an integer column.
func (c *Cursor) Int64(column string) int64 {
	switch v := c.Value(column).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// Bool reads a 0/1 integer column.
func (c *Cursor) Bool(column string) bool {
	return c.Int64(column) != 0
}
