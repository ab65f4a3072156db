package store

import (
	"context"
	"fmt"

	"github.com/roach88/lattice/internal/model"
)

// Grants is the raw grant data of one user, before revocation is applied.
type Grants struct {
	Direct  []model.Right
	Roles   []model.Right
	Revoked []model.Right
}

// Grants loads the rights a user holds directly, through roles, and in the
// revoked set. Each list is de-duplicated and sorted.
func (t *Tx) Grants(ctx context.Context, userID string) (Grants, error) {
	var g Grants
	var err error

	g.Direct, err = t.rights(ctx, `
		SELECT DISTINCT p."right" FROM user_privileges up
		JOIN privilege p ON p.id = up.privilege_id
		WHERE up.user_id = ?
		ORDER BY 1`, userID)
	if err != nil {
		return Grants{}, fmt.Errorf("direct grants: %w", err)
	}

	g.Roles, err = t.rights(ctx, `
		SELECT DISTINCT p."right" FROM user_roles ur
		JOIN role_privileges rp ON rp.role_id = ur.role_id
		JOIN privilege p ON p.id = rp.privilege_id
		WHERE ur.user_id = ?
		ORDER BY 1`, userID)
	if err != nil {
		return Grants{}, fmt.Errorf("role grants: %w", err)
	}

	g.Revoked, err = t.rights(ctx, `
		SELECT DISTINCT p."right" FROM user_privileges_revoked rv
		JOIN privilege p ON p.id = rv.privilege_id
		WHERE rv.user_id = ?
		ORDER BY 1`, userID)
	if err != nil {
		return Grants{}, fmt.Errorf("revoked grants: %w", err)
	}

	return g, nil
}

func (t *Tx) rights(ctx context.Context, query string, args ...any) ([]model.Right, error) {
	names, err := t.queryStrings(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]model.Right, len(names))
	for i, n := range names {
		out[i] = model.Right(n)
	}
	return out, nil
}

// PrivilegeFor returns the oldest Privilege record holding right.
func (t *Tx) PrivilegeFor(ctx context.Context, right model.Right) (*model.Privilege, error) {
	e, err := t.GetBy(ctx, model.KindPrivilege, "right", string(right))
	if err != nil {
		return nil, err
	}
	return e.(*model.Privilege), nil
}
