package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

var identRegexp = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Values maps column names to new values for Update and Insert.
type Values map[string]any

// columns returns the keys in a stable order so generated SQL is deterministic.
func (v Values) columns() []string {
	cols := make([]string, 0, len(v))
	for c := range v {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return cols
}

// Tx is a write transaction.
type Tx struct {
	tx   *sql.Tx
	done bool
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	t.done = true
	return t.tx.Commit()
}

// Rollback aborts the transaction. Calling it after Commit is a no-op.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

// Exec runs a raw statement and returns the affected row count.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// QueryRow runs a single-row query.
func (t *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Update sets values on rows of table matching where and returns how many
// rows changed.
func (t *Tx) Update(ctx context.Context, table string, values Values, where string, args ...any) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("update %s: no values", table)
	}
	cols := values.columns()
	sets := make([]string, 0, len(cols))
	all := make([]any, 0, len(cols)+len(args))
	for _, c := range cols {
		if err := checkIdent(c); err != nil {
			return 0, err
		}
		sets = append(sets, c+" = ?")
		all = append(all, values[c])
	}
	all = append(all, args...)

	q := "UPDATE " + table + " SET " + strings.Join(sets, ", ")
	if where != "" {
		q += " WHERE " + where
	}
	n, err := t.Exec(ctx, q, all...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return n, nil
}

// Insert adds a row. With orIgnore set, a conflicting row is left alone and
// the returned count is zero.
func (t *Tx) Insert(ctx context.Context, table string, values Values, orIgnore bool) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	cols := values.columns()
	marks := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		if err := checkIdent(c); err != nil {
			return 0, err
		}
		marks = append(marks, "?")
		args = append(args, values[c])
	}
	verb := "INSERT"
	if orIgnore {
		verb = "INSERT OR IGNORE"
	}
	q := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)", verb, table, strings.Join(cols, ", "), strings.Join(marks, ", "))
	n, err := t.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return n, nil
}

// Delete removes rows of table matching where.
func (t *Tx) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	if err := checkIdent(table); err != nil {
		return 0, err
	}
	q := "DELETE FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	n, err := t.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return n, nil
}

func checkIdent(name string) error {
	if !identRegexp.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}
