package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/lattice/internal/model"
)

// Tx is one store transaction. Obtain it from Store.WithTx.
type Tx struct {
	tx  *sql.Tx
	reg *model.Registry
	now model.Clock
}

// Registry returns the kind registry.
func (t *Tx) Registry() *model.Registry {
	return t.reg
}

// Now returns the current time from the store clock.
func (t *Tx) Now() time.Time {
	return t.now()
}

// Order selects the created-time ordering of list results.
type Order int

const (
	OldestFirst Order = iota
	NewestFirst
)

func (o Order) sql() string {
	if o == NewestFirst {
		return "created DESC, id DESC"
	}
	return "created ASC, id ASC"
}

var baseColumns = []string{
	"id", "name", "owner", "status", "requested_status", "enabled", "created", "lastupdated", "attrs",
}

func (t *Tx) lookup(kind model.Kind) (model.KindInfo, error) {
	info, ok := t.reg.Lookup(kind)
	if !ok {
		return model.KindInfo{}, model.NewValidationError(model.ReasonInvalidEnum, kind, "", "kind", fmt.Sprintf("unknown kind %q", kind))
	}
	return info, nil
}

// entityColumns lists the columns of a kind in scan order: base columns,
// then refs, then indexed fields.
func entityColumns(e model.Entity) []string {
	cols := append([]string{}, baseColumns...)
	for _, r := range e.Refs() {
		cols = append(cols, r.Column)
	}
	if c, ok := e.(model.Columned); ok {
		for _, f := range c.Columns() {
			cols = append(cols, f.Column)
		}
	}
	return cols
}

// checkColumn rejects column names the kind does not declare. Callers pass
// column names from relation tables, never from user input, but the check
// keeps every interpolated identifier inside the declared set.
func checkColumn(info model.KindInfo, column string) error {
	for _, c := range entityColumns(info.New()) {
		if c == column {
			return nil
		}
	}
	return fmt.Errorf("%s has no column %q", info.Kind, column)
}

// writeArgs returns the non-base columns and values of e.
func writeArgs(e model.Entity) ([]string, []any, error) {
	var cols []string
	var args []any
	for _, r := range e.Refs() {
		cols = append(cols, r.Column)
		args = append(args, nullString(*r.ID))
	}
	if c, ok := e.(model.Columned); ok {
		for _, f := range c.Columns() {
			v, err := fieldArg(f.Value)
			if err != nil {
				return nil, nil, fmt.Errorf("%s.%s: %w", e.Kind(), f.Column, err)
			}
			cols = append(cols, f.Column)
			args = append(args, v)
		}
	}
	return cols, args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner, info model.KindInfo) (model.Entity, error) {
	e := info.New()

	var (
		b                model.Base
		created, updated int64
		attrs            string
	)
	dests := []any{&b.ID, &b.Name, &b.Owner, &b.Status, &b.RequestedStatus, &b.Enabled, &created, &updated, &attrs}

	refs := e.Refs()
	refVals := make([]sql.NullString, len(refs))
	for i := range refs {
		dests = append(dests, &refVals[i])
	}

	var applies []func()
	if c, ok := e.(model.Columned); ok {
		for _, f := range c.Columns() {
			d, apply, err := fieldDest(f.Value)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", info.Kind, f.Column, err)
			}
			dests = append(dests, d)
			applies = append(applies, apply)
		}
	}

	if err := row.Scan(dests...); err != nil {
		return nil, err
	}

	if err := decodeAttrs(attrs, e); err != nil {
		return nil, err
	}
	b.Created = fromNanos(created)
	b.LastUpdated = fromNanos(updated)
	*e.Meta() = b
	for i, r := range refs {
		*r.ID = refVals[i].String
	}
	for _, apply := range applies {
		apply()
	}
	return e, nil
}

// Insert writes a new record. ID, Owner and the timestamps must already be
// set; the store assigns nothing.
func (t *Tx) Insert(ctx context.Context, e model.Entity) error {
	info, err := t.lookup(e.Kind())
	if err != nil {
		return err
	}
	b := e.Meta()
	if b.ID == "" {
		return model.NewValidationError(model.ReasonRequired, e.Kind(), "", "id", "id is required")
	}

	attrs, err := encodeAttrs(e)
	if err != nil {
		return err
	}
	extraCols, extraArgs, err := writeArgs(e)
	if err != nil {
		return err
	}

	cols := append(append([]string{}, baseColumns...), extraCols...)
	args := append([]any{
		b.ID, b.Name, b.Owner, b.Status, b.RequestedStatus, b.Enabled,
		toNanos(b.Created), toNanos(b.LastUpdated), attrs,
	}, extraArgs...)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(info.Table), quoteAll(cols), placeholders(len(cols)))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return translateWrite(err, "insert", e.Kind(), b.ID)
	}
	return nil
}

// Get returns the record with the given id.
func (t *Tx) Get(ctx context.Context, kind model.Kind, id string) (model.Entity, error) {
	return t.getBy(ctx, kind, "id", id)
}

// GetByName returns the record of kind with the given name. The name is
// normalised first. Kinds whose names repeat cannot be looked up by name.
func (t *Tx) GetByName(ctx context.Context, kind model.Kind, name string) (model.Entity, error) {
	info, err := t.lookup(kind)
	if err != nil {
		return nil, err
	}
	if !info.UniqueName {
		return nil, model.NewValidationError(model.ReasonInvalidValue, kind, "", "name",
			fmt.Sprintf("%s names are not unique; look it up by id", kind))
	}
	return t.getBy(ctx, kind, "name", model.NormalizeName(name))
}

// GetBy returns the oldest record of kind whose column equals value.
func (t *Tx) GetBy(ctx context.Context, kind model.Kind, column, value string) (model.Entity, error) {
	return t.getBy(ctx, kind, column, value)
}

func (t *Tx) getBy(ctx context.Context, kind model.Kind, column, value string) (model.Entity, error) {
	info, err := t.lookup(kind)
	if err != nil {
		return nil, err
	}
	if err := checkColumn(info, column); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s LIMIT 1",
		quoteAll(entityColumns(info.New())), quote(info.Table), quote(column), OldestFirst.sql())
	e, err := scanEntity(t.tx.QueryRowContext(ctx, query, value), info)
	if err != nil {
		if model.IsSerialization(err) {
			return nil, err
		}
		return nil, notFound(err, kind, value)
	}
	return e, nil
}

// List returns every record of kind, oldest first.
// Returns an empty slice (not nil) if there are none.
func (t *Tx) List(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	info, err := t.lookup(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		quoteAll(entityColumns(info.New())), quote(info.Table), OldestFirst.sql())
	return t.queryEntities(ctx, info, query)
}

// ListBy returns the records of kind whose column equals value.
// Returns an empty slice (not nil) if there are none.
func (t *Tx) ListBy(ctx context.Context, kind model.Kind, column, value string, order Order) ([]model.Entity, error) {
	info, err := t.lookup(kind)
	if err != nil {
		return nil, err
	}
	if err := checkColumn(info, column); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY %s",
		quoteAll(entityColumns(info.New())), quote(info.Table), quote(column), order.sql())
	return t.queryEntities(ctx, info, query, value)
}

func (t *Tx) queryEntities(ctx context.Context, info model.KindInfo, query string, args ...any) ([]model.Entity, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", info.Kind, err)
	}
	defer rows.Close()

	out := []model.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows, info)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", info.Kind, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", info.Kind, err)
	}
	return out, nil
}

// Exists reports whether a record of kind with id exists.
func (t *Tx) Exists(ctx context.Context, kind model.Kind, id string) (bool, error) {
	n, err := t.Count(ctx, kind, "id", id)
	return n > 0, err
}

// Count returns the number of records of kind whose column equals value.
// An empty column counts every record.
func (t *Tx) Count(ctx context.Context, kind model.Kind, column, value string) (int, error) {
	info, err := t.lookup(kind)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(info.Table))
	var args []any
	if column != "" {
		if err := checkColumn(info, column); err != nil {
			return 0, err
		}
		query += fmt.Sprintf(" WHERE %s = ?", quote(column))
		args = append(args, value)
	}
	var n int
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// ChildIDs returns the ids of kind records whose column references parentID.
func (t *Tx) ChildIDs(ctx context.Context, kind model.Kind, column, parentID string) ([]string, error) {
	info, err := t.lookup(kind)
	if err != nil {
		return nil, err
	}
	if err := checkColumn(info, column); err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = ? ORDER BY id", quote(info.Table), quote(column))
	return t.queryStrings(ctx, query, parentID)
}

// Update overwrites a record if its stored lastupdated equals
// e.Meta().LastUpdated. On success LastUpdated is advanced to a stamp
// strictly greater than the old one. Created is never rewritten.
func (t *Tx) Update(ctx context.Context, e model.Entity) error {
	info, err := t.lookup(e.Kind())
	if err != nil {
		return err
	}
	b := e.Meta()
	expected := b.LastUpdated

	stamp := t.now()
	if !stamp.After(expected) {
		stamp = expected.Add(time.Nanosecond)
	}
	b.LastUpdated = stamp

	attrs, err := encodeAttrs(e)
	if err != nil {
		b.LastUpdated = expected
		return err
	}
	extraCols, extraArgs, err := writeArgs(e)
	if err != nil {
		b.LastUpdated = expected
		return err
	}

	sets := []string{"name = ?", "owner = ?", "status = ?", "requested_status = ?", "enabled = ?", "lastupdated = ?", "attrs = ?"}
	args := []any{b.Name, b.Owner, b.Status, b.RequestedStatus, b.Enabled, toNanos(stamp), attrs}
	for i, c := range extraCols {
		sets = append(sets, quote(c)+" = ?")
		args = append(args, extraArgs[i])
	}
	args = append(args, b.ID, toNanos(expected))

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND lastupdated = ?", quote(info.Table), strings.Join(sets, ", "))
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		b.LastUpdated = expected
		return translateWrite(err, "update", e.Kind(), b.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		b.LastUpdated = expected
		return fmt.Errorf("update %s: %w", e.Kind(), err)
	}
	if n == 0 {
		b.LastUpdated = expected
		exists, err := t.Exists(ctx, e.Kind(), b.ID)
		if err != nil {
			return err
		}
		if !exists {
			return model.NewNotFoundError(e.Kind(), b.ID)
		}
		return model.NewConcurrencyError(model.ReasonStaleWrite, e.Kind(), b.ID, "record changed since it was read")
	}
	return nil
}

// ClearRef sets column to NULL on every kind record referencing parentID and
// returns how many rows changed. Touched rows get a new lastupdated stamp.
func (t *Tx) ClearRef(ctx context.Context, kind model.Kind, column, parentID string) (int64, error) {
	info, err := t.lookup(kind)
	if err != nil {
		return 0, err
	}
	if err := checkColumn(info, column); err != nil {
		return 0, err
	}
	query := fmt.Sprintf("UPDATE %s SET %s = NULL, lastupdated = MAX(?, lastupdated + 1) WHERE %s = ?",
		quote(info.Table), quote(column), quote(column))
	res, err := t.tx.ExecContext(ctx, query, toNanos(t.now()), parentID)
	if err != nil {
		return 0, translateWrite(err, "nullify", kind, "")
	}
	return res.RowsAffected()
}

// Delete removes one record. Junction rows and barrier rows go with it; any
// remaining entity reference fails with a cascade conflict.
func (t *Tx) Delete(ctx context.Context, kind model.Kind, id string) error {
	info, err := t.lookup(kind)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", quote(info.Table)), id)
	if err != nil {
		return translateDelete(err, kind, id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	if n == 0 {
		return model.NewNotFoundError(kind, id)
	}
	return nil
}

func (t *Tx) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return out, nil
}
