package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"wa-dashboard/internal/apperrors"
)

// Table maps one owner-scoped table onto the row type T. Column names differ
// between tables for historical reasons; the descriptor is the only place
// that knows them.
type Table[T any] struct {
	repo     *Repository
	resource string
	name     string
	owner    string
	columns  []string
	values   func(*T) []any
	scan     func(scanner) (T, error)
}

// Resource returns the resource name used for metrics and cache keys.
func (t *Table[T]) Resource() string {
	return t.resource
}

func (t *Table[T]) selectColumns() string {
	return "id, " + t.owner + ", created_at, " + strings.Join(t.columns, ", ")
}

// List returns the operator's rows, newest first.
func (t *Table[T]) List(ctx context.Context, ownerID string) ([]T, error) {
	q := t.repo.dialect.rebind(fmt.Sprintf(
		"SELECT %s FROM %s WHERE %s = ? ORDER BY created_at DESC, id DESC",
		t.selectColumns(), t.name, t.owner,
	))
	var out []T
	err := t.repo.scoped(ctx, ownerID, func(q0 querier) error {
		rows, err := q0.QueryContext(ctx, q, ownerID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			item, err := t.scan(rows)
			if err != nil {
				return fmt.Errorf("scan %s: %w", t.name, err)
			}
			out = append(out, item)
		}
		return rows.Err()
	})
	err = storeErr("list "+t.name, err)
	t.repo.observe(t.resource, "list", err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns one row of the operator, or apperrors.ErrNotFound.
func (t *Table[T]) Get(ctx context.Context, ownerID string, id int64) (*T, error) {
	q := t.repo.dialect.rebind(fmt.Sprintf(
		"SELECT %s FROM %s WHERE id = ? AND %s = ?",
		t.selectColumns(), t.name, t.owner,
	))
	var item T
	err := t.repo.scoped(ctx, ownerID, func(q0 querier) error {
		var err error
		item, err = t.scan(q0.QueryRowContext(ctx, q, id, ownerID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %d: %w", t.resource, id, apperrors.ErrNotFound)
		}
		return err
	})
	err = storeErr("get "+t.name, err)
	t.repo.observe(t.resource, "get", err)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Insert creates a row owned by ownerID and returns it as stored.
func (t *Table[T]) Insert(ctx context.Context, ownerID string, v T) (*T, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)+1), ", ")
	q := t.repo.dialect.rebind(fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES (%s) RETURNING %s",
		t.name, t.owner, strings.Join(t.columns, ", "), placeholders, t.selectColumns(),
	))
	args := append([]any{ownerID}, t.values(&v)...)

	var item T
	err := t.repo.scoped(ctx, ownerID, func(q0 querier) error {
		var err error
		item, err = t.scan(q0.QueryRowContext(ctx, q, args...))
		return err
	})
	err = storeErr("insert "+t.name, err)
	t.repo.observe(t.resource, "insert", err)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Update overwrites the data columns of row id. Rows of other operators are
// reported as apperrors.ErrNotFound and left untouched.
func (t *Table[T]) Update(ctx context.Context, ownerID string, id int64, v T) (*T, error) {
	sets := make([]string, len(t.columns))
	for i, c := range t.columns {
		sets[i] = c + " = ?"
	}
	q := t.repo.dialect.rebind(fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = ? AND %s = ? RETURNING %s",
		t.name, strings.Join(sets, ", "), t.owner, t.selectColumns(),
	))
	args := append(t.values(&v), id, ownerID)

	var item T
	err := t.repo.scoped(ctx, ownerID, func(q0 querier) error {
		var err error
		item, err = t.scan(q0.QueryRowContext(ctx, q, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %d: %w", t.resource, id, apperrors.ErrNotFound)
		}
		return err
	})
	err = storeErr("update "+t.name, err)
	t.repo.observe(t.resource, "update", err)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// Delete removes row id when it belongs to ownerID.
func (t *Table[T]) Delete(ctx context.Context, ownerID string, id int64) error {
	q := t.repo.dialect.rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ? AND %s = ?", t.name, t.owner))
	err := t.repo.scoped(ctx, ownerID, func(q0 querier) error {
		res, err := q0.ExecContext(ctx, q, id, ownerID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s %d: %w", t.resource, id, apperrors.ErrNotFound)
		}
		return nil
	})
	err = storeErr("delete "+t.name, err)
	t.repo.observe(t.resource, "delete", err)
	return err
}

// Count returns how many rows the operator owns.
func (t *Table[T]) Count(ctx context.Context, ownerID string) (int, error) {
	q := t.repo.dialect.rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s = ?", t.name, t.owner))
	var n int
	err := t.repo.scoped(ctx, ownerID, func(q0 querier) error {
		return q0.QueryRowContext(ctx, q, ownerID).Scan(&n)
	})
	err = storeErr("count "+t.name, err)
	t.repo.observe(t.resource, "count", err)
	return n, err
}

// LatestCreatedAt returns the creation time of the newest row, or nil when
// the operator has none.
func (t *Table[T]) LatestCreatedAt(ctx context.Context, ownerID string) (*time.Time, error) {
	q := t.repo.dialect.rebind(fmt.Sprintf(
		"SELECT created_at FROM %s WHERE %s = ? ORDER BY created_at DESC, id DESC LIMIT 1",
		t.name, t.owner,
	))
	var latest *time.Time
	err := t.repo.scoped(ctx, ownerID, func(q0 querier) error {
		var ts time.Time
		err := q0.QueryRowContext(ctx, q, ownerID).Scan(&ts)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		latest = &ts
		return nil
	})
	err = storeErr("latest "+t.name, err)
	t.repo.observe(t.resource, "latest", err)
	return latest, err
}
