package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/lattice/internal/core"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

// ErrNotEmpty is returned by Apply when the database already has users.
var ErrNotEmpty = errors.New("bootstrap: database already has users")

// Result reports what Apply created.
type Result struct {
	Privileges int      `json:"privileges"`
	Roles      int      `json:"roles"`
	Users      []string `json:"users"`
}

type options struct {
	ids        model.IDGenerator
	bcryptCost int
	logger     *slog.Logger
}

// Option configures Apply.
type Option func(*options)

// WithIDGenerator sets the generator of record ids.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(o *options) { o.bcryptCost = cost }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Apply creates one privilege per right, then the seed's roles and users
// and their links, in a single transaction. The first seed user owns
// every created record, including itself.
//
// Apply refuses to run on a database that already has users, so it cannot
// be used to add a second administrator behind the authorizer's back.
func Apply(ctx context.Context, st *store.Store, seed *Seed, opts ...Option) (Result, error) {
	o := options{ids: model.UUIDv7Generator{}, bcryptCost: bcrypt.DefaultCost, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := seed.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid seed: %w", err)
	}

	hashes := make([]string, len(seed.Users))
	for i, u := range seed.Users {
		h, err := core.HashPassword(u.Password, o.bcryptCost)
		if err != nil {
			return Result{}, err
		}
		hashes[i] = h
	}

	var res Result
	err := st.WithTx(ctx, func(tx *store.Tx) error {
		n, err := tx.Count(ctx, model.KindUser, "", "")
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrNotEmpty
		}

		now := tx.Now()
		owner := o.ids.NewID()
		base := func(id, name string) model.Base {
			return model.Base{
				ID:              id,
				Name:            model.NormalizeName(name),
				Owner:           owner,
				Status:          model.DefaultStatus,
				RequestedStatus: model.DefaultStatus,
				Enabled:         true,
				Created:         now,
				LastUpdated:     now,
			}
		}

		users := make(map[string]string, len(seed.Users))
		for i, u := range seed.Users {
			id := owner
			if i > 0 {
				id = o.ids.NewID()
			}
			rec := &model.User{Base: base(id, u.Name), Email: strings.TrimSpace(u.Email), PasswordHash: hashes[i]}
			if err := tx.Insert(ctx, rec); err != nil {
				return err
			}
			users[rec.Name] = id
			res.Users = append(res.Users, rec.Name)
		}

		privileges := make(map[model.Right]string)
		for _, r := range model.Rights() {
			p := &model.Privilege{Base: base(o.ids.NewID(), string(r)), Right: r}
			if err := tx.Insert(ctx, p); err != nil {
				return err
			}
			privileges[r] = p.ID
		}
		res.Privileges = len(privileges)

		roles := make(map[string]string, len(seed.Roles))
		for _, r := range seed.Roles {
			rec := &model.Role{Base: base(o.ids.NewID(), r.Name)}
			if err := tx.Insert(ctx, rec); err != nil {
				return err
			}
			roles[rec.Name] = rec.ID
			if err := linkRights(ctx, tx, store.RolePrivileges, rec.ID, r.Privileges, privileges); err != nil {
				return err
			}
		}
		res.Roles = len(roles)

		for _, u := range seed.Users {
			id := users[model.NormalizeName(u.Name)]
			for _, role := range u.Roles {
				if _, err := tx.Link(ctx, store.UserRoles, id, roles[model.NormalizeName(role)]); err != nil {
					return err
				}
			}
			if err := linkRights(ctx, tx, store.UserPrivileges, id, u.Privileges, privileges); err != nil {
				return err
			}
			if err := linkRights(ctx, tx, store.UserRevoked, id, u.Revoked, privileges); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	o.logger.Info("database seeded", "privileges", res.Privileges, "roles", res.Roles, "users", len(res.Users))
	return res, nil
}

func linkRights(ctx context.Context, tx *store.Tx, l store.Link, leftID string, names []string, privileges map[model.Right]string) error {
	for _, n := range names {
		r, err := model.ParseRight(n)
		if err != nil {
			return err
		}
		if _, err := tx.Link(ctx, l, leftID, privileges[r]); err != nil {
			return err
		}
	}
	return nil
}
