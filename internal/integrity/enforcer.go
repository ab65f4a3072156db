package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

// Report summarises the effect of one delete.
type Report struct {
	// Deleted lists removed record ids per kind, in deletion order.
	Deleted map[model.Kind][]string `json:"deleted"`
	// Nullified counts references cleared on surviving records.
	Nullified int64 `json:"nullified"`
	// Logs counts audit entries removed with their subjects.
	Logs int64 `json:"logs"`
}

// Count returns the number of deleted records.
func (r Report) Count() int {
	n := 0
	for _, ids := range r.Deleted {
		n += len(ids)
	}
	return n
}

func (r *Report) add(kind model.Kind, id string) {
	if r.Deleted == nil {
		r.Deleted = make(map[model.Kind][]string)
	}
	r.Deleted[kind] = append(r.Deleted[kind], id)
}

// Enforcer applies the relation table inside a store transaction.
// It holds no state between calls and is safe for concurrent use.
type Enforcer struct {
	relations []Relation
	releases  []Release
	byParent  map[model.Kind][]Relation
	byHolder  map[model.Kind][]Release
	logger    *slog.Logger
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Enforcer) { e.logger = l }
}

// WithRelations replaces the relation and release tables.
func WithRelations(relations []Relation, releases []Release) Option {
	return func(e *Enforcer) {
		e.relations = relations
		e.releases = releases
	}
}

// New builds an enforcer for the kinds in reg. It fails if a relation
// names a column the kind does not declare.
func New(reg *model.Registry, opts ...Option) (*Enforcer, error) {
	e := &Enforcer{
		relations: DefaultRelations(),
		releases:  DefaultReleases(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := checkRelations(reg, e.relations, e.releases); err != nil {
		return nil, fmt.Errorf("integrity: %w", err)
	}
	// Owner is a base column rather than a declared ref, so it is added
	// after the check.
	e.relations = append(slices.Clone(e.relations), ownerRelations(reg)...)

	e.byParent = make(map[model.Kind][]Relation)
	for _, r := range e.relations {
		e.byParent[r.Parent] = append(e.byParent[r.Parent], r)
	}
	e.byHolder = make(map[model.Kind][]Release)
	for _, r := range e.releases {
		e.byHolder[r.Holder] = append(e.byHolder[r.Holder], r)
	}
	return e, nil
}

// Relations returns a copy of the relation table, owner restrictions
// included.
func (e *Enforcer) Relations() []Relation {
	return append([]Relation(nil), e.relations...)
}

// Delete removes a record and everything its relations say goes with it.
// Any restricted child aborts the whole operation; the caller's
// transaction then rolls back, so no partial cascade is ever committed.
func (e *Enforcer) Delete(ctx context.Context, tx *store.Tx, kind model.Kind, id string) (Report, error) {
	ok, err := tx.Exists(ctx, kind, id)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		return Report{}, model.NewNotFoundError(kind, id)
	}

	d := &deletion{enforcer: e, tx: tx, visited: make(map[model.Subject]bool)}
	if err := d.visit(ctx, kind, id); err != nil {
		return Report{}, err
	}
	return d.report, nil
}

type deletion struct {
	enforcer *Enforcer
	tx       *store.Tx
	visited  map[model.Subject]bool
	report   Report
}

// visit deletes children first, then the record, then releases what the
// record held.
func (d *deletion) visit(ctx context.Context, kind model.Kind, id string) error {
	key := model.Subject{Kind: kind, ID: id}
	if d.visited[key] {
		return nil
	}
	d.visited[key] = true

	held, err := d.heldBy(ctx, kind, id)
	if err != nil {
		return err
	}

	for _, rel := range d.enforcer.byParent[kind] {
		switch rel.Policy {
		case Cascade:
			children, err := d.tx.ChildIDs(ctx, rel.Child, rel.Column, id)
			if err != nil {
				return err
			}
			for _, child := range children {
				d.enforcer.logger.Debug("cascade", "parent_kind", kind, "parent_id", id, "kind", rel.Child, "id", child)
				if err := d.visit(ctx, rel.Child, child); err != nil {
					return err
				}
			}
		case Nullify:
			n, err := d.tx.ClearRef(ctx, rel.Child, rel.Column, id)
			if err != nil {
				return err
			}
			d.report.Nullified += n
		}
	}

	// Restrictions are checked after cascades so children removed above
	// do not count.
	for _, rel := range d.enforcer.byParent[kind] {
		if rel.Policy != Restrict {
			continue
		}
		children, err := d.tx.ChildIDs(ctx, rel.Child, rel.Column, id)
		if err != nil {
			return err
		}
		remaining := 0
		for _, child := range children {
			if !d.visited[model.Subject{Kind: rel.Child, ID: child}] {
				remaining++
			}
		}
		if remaining > 0 {
			return model.NewCascadeConflict(kind, id, rel.Child, rel.Column, remaining)
		}
	}

	n, err := d.tx.DeleteLogs(ctx, key)
	if err != nil {
		return err
	}
	d.report.Logs += n

	if err := d.tx.Delete(ctx, kind, id); err != nil {
		return err
	}
	d.report.add(kind, id)

	for _, h := range held {
		if err := d.release(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

type holding struct {
	release Release
	id      string
}

// heldBy reads the ids a record holds through release relations.
func (d *deletion) heldBy(ctx context.Context, kind model.Kind, id string) ([]holding, error) {
	releases := d.enforcer.byHolder[kind]
	if len(releases) == 0 {
		return nil, nil
	}
	rec, err := d.tx.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	var out []holding
	for _, r := range releases {
		ref, ok := model.RefTo(rec, r.Column)
		if ok && *ref.ID != "" {
			out = append(out, holding{release: r, id: *ref.ID})
		}
	}
	return out, nil
}

// release deletes a held record once no holder references it.
func (d *deletion) release(ctx context.Context, h holding) error {
	if d.visited[model.Subject{Kind: h.release.Held, ID: h.id}] {
		return nil
	}
	holders, err := d.tx.Count(ctx, h.release.Holder, h.release.Column, h.id)
	if err != nil {
		return err
	}
	if holders > 0 {
		return nil
	}
	exists, err := d.tx.Exists(ctx, h.release.Held, h.id)
	if err != nil || !exists {
		return err
	}
	d.enforcer.logger.Debug("release orphan", "kind", h.release.Held, "id", h.id, "holder", h.release.Holder)
	return d.visit(ctx, h.release.Held, h.id)
}

// CheckRefs validates the references of e before it is written: required
// references are set, every set reference resolves, and single-parent
// targets are not already held by another record.
func (e *Enforcer) CheckRefs(ctx context.Context, tx *store.Tx, rec model.Entity) error {
	kind, id := rec.Kind(), rec.Meta().ID
	for _, ref := range rec.Refs() {
		target := *ref.ID
		if target == "" {
			if ref.Required {
				return model.NewValidationError(model.ReasonRequired, kind, id, ref.Column, ref.Column+" is required")
			}
			continue
		}
		ok, err := tx.Exists(ctx, ref.Target, target)
		if err != nil {
			return err
		}
		if !ok {
			return model.NewValidationError(model.ReasonDanglingReference, kind, id, ref.Column,
				fmt.Sprintf("%s %s does not exist", ref.Target, target))
		}
		if e.exclusive(kind, ref.Column) {
			if err := singleHolder(ctx, tx, kind, id, ref.Column, target); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Enforcer) exclusive(kind model.Kind, column string) bool {
	for _, r := range e.byHolder[kind] {
		if r.Column == column && r.Exclusive {
			return true
		}
	}
	for _, sp := range singleParent {
		if sp.kind == kind && sp.column == column {
			return true
		}
	}
	return false
}

func singleHolder(ctx context.Context, tx *store.Tx, kind model.Kind, id, column, target string) error {
	holders, err := tx.ChildIDs(ctx, kind, column, target)
	if err != nil {
		return err
	}
	for _, h := range holders {
		if h != id {
			return model.NewValidationError(model.ReasonSingleParent, kind, id, column,
				fmt.Sprintf("already held by %s %s", kind, h))
		}
	}
	return nil
}

// AfterUpdate releases records that prev held and next no longer does.
// Call it after the update is written, inside the same transaction.
func (e *Enforcer) AfterUpdate(ctx context.Context, tx *store.Tx, prev, next model.Entity) (Report, error) {
	d := &deletion{enforcer: e, tx: tx, visited: make(map[model.Subject]bool)}
	for _, r := range e.byHolder[next.Kind()] {
		before, ok1 := model.RefTo(prev, r.Column)
		after, ok2 := model.RefTo(next, r.Column)
		if !ok1 || !ok2 || *before.ID == "" || *before.ID == *after.ID {
			continue
		}
		if err := d.release(ctx, holding{release: r, id: *before.ID}); err != nil {
			return Report{}, err
		}
	}
	return d.report, nil
}
