package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/model"
)

func TestLinks(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insert(t, s,
		testUser("u1", "alice"),
		&model.Role{Base: base("r1", "ops")},
		&model.Privilege{Base: base("pv1", "run"), Right: model.RightRunTask},
	)

	inTx(t, s, func(tx *Tx) error {
		added, err := tx.Link(ctx, UserRoles, "u1", "r1")
		require.NoError(t, err)
		assert.True(t, added)

		added, err = tx.Link(ctx, UserRoles, "u1", "r1")
		require.NoError(t, err)
		assert.False(t, added, "relinking is a no-op")

		ids, err := tx.Linked(ctx, UserRoles, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"r1"}, ids)

		users, err := tx.LinkedTo(ctx, UserRoles, "r1")
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, users)

		_, err = tx.Link(ctx, UserRoles, "u1", "ghost")
		assert.Equal(t, model.ReasonDanglingReference, model.ReasonOf(err))

		removed, err := tx.Unlink(ctx, UserRoles, "u1", "r1")
		require.NoError(t, err)
		assert.True(t, removed)
		return nil
	})
}

func TestGrants(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insert(t, s,
		testUser("u1", "alice"),
		&model.Role{Base: base("r1", "ops")},
		&model.Privilege{Base: base("pv-run", "run"), Right: model.RightRunTask},
		&model.Privilege{Base: base("pv-read", "read"), Right: model.RightRead},
		&model.Privilege{Base: base("pv-del", "del"), Right: "DELETE_PROCESSOR"},
	)

	inTx(t, s, func(tx *Tx) error {
		for _, step := range []struct {
			link        Link
			left, right string
		}{
			{UserRoles, "u1", "r1"},
			{RolePrivileges, "r1", "pv-run"},
			{RolePrivileges, "r1", "pv-read"},
			{UserPrivileges, "u1", "pv-del"},
			{UserRevoked, "u1", "pv-read"},
		} {
			_, err := tx.Link(ctx, step.link, step.left, step.right)
			require.NoError(t, err)
		}

		g, err := tx.Grants(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []model.Right{"DELETE_PROCESSOR"}, g.Direct)
		assert.Equal(t, []model.Right{model.RightRead, model.RightRunTask}, g.Roles)
		assert.Equal(t, []model.Right{model.RightRead}, g.Revoked)

		p, err := tx.PrivilegeFor(ctx, model.RightRunTask)
		require.NoError(t, err)
		assert.Equal(t, "pv-run", p.ID)

		// Deleting the role drops its junction rows.
		require.NoError(t, tx.Delete(ctx, model.KindRole, "r1"))
		g, err = tx.Grants(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, g.Roles)
		return nil
	})
}
