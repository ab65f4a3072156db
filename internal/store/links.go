package store

import (
	"context"
	"fmt"

	"github.com/roach88/lattice/internal/model"
)

// Link names a many-to-many junction table.
type Link string

const (
	RolePrivileges Link = "role_privileges"
	UserRoles      Link = "user_roles"
	UserPrivileges Link = "user_privileges"
	UserRevoked    Link = "user_privileges_revoked"
	FlowProcessors Link = "flow_processors"
)

type linkDef struct {
	left, right         string
	leftKind, rightKind model.Kind
}

var links = map[Link]linkDef{
	RolePrivileges: {"role_id", "privilege_id", model.KindRole, model.KindPrivilege},
	UserRoles:      {"user_id", "role_id", model.KindUser, model.KindRole},
	UserPrivileges: {"user_id", "privilege_id", model.KindUser, model.KindPrivilege},
	UserRevoked:    {"user_id", "privilege_id", model.KindUser, model.KindPrivilege},
	FlowProcessors: {"flow_id", "processor_id", model.KindFlow, model.KindProcessor},
}

func linkFor(l Link) (linkDef, error) {
	def, ok := links[l]
	if !ok {
		return linkDef{}, fmt.Errorf("unknown link %q", l)
	}
	return def, nil
}

// Kinds returns the left and right kinds joined by l.
func (l Link) Kinds() (left, right model.Kind) {
	def := links[l]
	return def.leftKind, def.rightKind
}

// Link joins leftID and rightID. It reports whether a new row was written;
// linking an existing pair is a no-op.
func (t *Tx) Link(ctx context.Context, l Link, leftID, rightID string) (bool, error) {
	def, err := linkFor(l)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT DO NOTHING",
		quote(string(l)), quote(def.left), quote(def.right))
	res, err := t.tx.ExecContext(ctx, query, leftID, rightID)
	if err != nil {
		return false, translateWrite(err, "link", def.leftKind, leftID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("link %s: %w", l, err)
	}
	return n == 1, nil
}

// Unlink removes the pair and reports whether it existed.
func (t *Tx) Unlink(ctx context.Context, l Link, leftID, rightID string) (bool, error) {
	def, err := linkFor(l)
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?", quote(string(l)), quote(def.left), quote(def.right))
	res, err := t.tx.ExecContext(ctx, query, leftID, rightID)
	if err != nil {
		return false, fmt.Errorf("unlink %s: %w", l, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unlink %s: %w", l, err)
	}
	return n == 1, nil
}

// Linked returns the right-hand ids joined to leftID.
func (t *Tx) Linked(ctx context.Context, l Link, leftID string) ([]string, error) {
	def, err := linkFor(l)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY 1", quote(def.right), quote(string(l)), quote(def.left))
	return t.queryStrings(ctx, query, leftID)
}

// LinkedTo returns the left-hand ids joined to rightID.
func (t *Tx) LinkedTo(ctx context.Context, l Link, rightID string) ([]string, error) {
	def, err := linkFor(l)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? ORDER BY 1", quote(def.left), quote(string(l)), quote(def.right))
	return t.queryStrings(ctx, query, rightID)
}
