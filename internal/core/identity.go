package core

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/lattice/internal/authz"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

type randomTokens struct{}

func (randomTokens) NewID() string { return uuid.NewString() }

// HashPassword returns the bcrypt hash of password at the given cost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", model.NewValidationError(model.ReasonRequired, model.KindUser, "", "password", "password is required")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", model.NewValidationError(model.ReasonInvalidValue, model.KindUser, "", "password", err.Error())
	}
	return string(h), nil
}

// CreateUser creates a user whose password is stored only as a bcrypt hash.
func (s *Service) CreateUser(ctx context.Context, u *model.User, password string) error {
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	u.Email = strings.TrimSpace(u.Email)
	return s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpCreate, model.KindUser, ""); err != nil {
			return err
		}
		return s.create(ctx, o, u)
	})
}

// SetPassword replaces a user's password hash. Users may change their own
// password; changing another user's needs update rights on users.
func (s *Service) SetPassword(ctx context.Context, userID, password string) error {
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return err
	}
	return s.run(ctx, func(o *txn) error {
		if o.actor != userID {
			if err := s.authorizeOp(ctx, o, model.OpUpdate, model.KindUser, userID); err != nil {
				return err
			}
		}
		rec, err := o.tx.Get(ctx, model.KindUser, userID)
		if err != nil {
			return err
		}
		rec.(*model.User).PasswordHash = hash
		return o.tx.Update(ctx, rec)
	})
}

// linkUser links or unlinks a user and another record after checking both
// exist and the actor may update the user.
func (s *Service) linkUser(ctx context.Context, l store.Link, userID, otherID string, add bool) error {
	return s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpUpdate, model.KindUser, userID); err != nil {
			return err
		}
		return s.setLink(ctx, o, l, userID, otherID, add)
	})
}

func (s *Service) setLink(ctx context.Context, o *txn, l store.Link, leftID, rightID string, add bool) error {
	leftKind, rightKind := l.Kinds()
	for _, ref := range []struct {
		kind model.Kind
		id   string
	}{{leftKind, leftID}, {rightKind, rightID}} {
		ok, err := o.tx.Exists(ctx, ref.kind, ref.id)
		if err != nil {
			return err
		}
		if !ok {
			return model.NewNotFoundError(ref.kind, ref.id)
		}
	}

	var changed bool
	var err error
	if add {
		changed, err = o.tx.Link(ctx, l, leftID, rightID)
	} else {
		changed, err = o.tx.Unlink(ctx, l, leftID, rightID)
	}
	if err != nil {
		return err
	}
	if changed {
		s.logger.Info("link changed", "link", l, "left", leftID, "right", rightID, "added", add, "actor", o.actor)
	}
	return nil
}

// GrantRole gives a user a role.
func (s *Service) GrantRole(ctx context.Context, userID, roleID string) error {
	return s.linkUser(ctx, store.UserRoles, userID, roleID, true)
}

// RevokeRole takes a role away from a user.
func (s *Service) RevokeRole(ctx context.Context, userID, roleID string) error {
	return s.linkUser(ctx, store.UserRoles, userID, roleID, false)
}

// GrantPrivilege gives a user a right directly.
func (s *Service) GrantPrivilege(ctx context.Context, userID string, right model.Right) error {
	return s.linkRight(ctx, store.UserPrivileges, userID, right, true)
}

// RevokePrivilege adds a right to the user's revoked set. A revoked right
// is denied however else it is granted.
func (s *Service) RevokePrivilege(ctx context.Context, userID string, right model.Right) error {
	return s.linkRight(ctx, store.UserRevoked, userID, right, true)
}

// RestorePrivilege removes a right from the user's revoked set.
func (s *Service) RestorePrivilege(ctx context.Context, userID string, right model.Right) error {
	return s.linkRight(ctx, store.UserRevoked, userID, right, false)
}

func (s *Service) linkRight(ctx context.Context, l store.Link, userID string, right model.Right, add bool) error {
	if !right.Valid() {
		return model.NewValidationError(model.ReasonInvalidEnum, model.KindPrivilege, "", "right", "unknown right "+string(right))
	}
	return s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpUpdate, model.KindUser, userID); err != nil {
			return err
		}
		p, err := s.privilege(ctx, o, right)
		if err != nil {
			return err
		}
		return s.setLink(ctx, o, l, userID, p.ID, add)
	})
}

// AddRolePrivilege puts a right in a role.
func (s *Service) AddRolePrivilege(ctx context.Context, roleID string, right model.Right) error {
	if !right.Valid() {
		return model.NewValidationError(model.ReasonInvalidEnum, model.KindPrivilege, "", "right", "unknown right "+string(right))
	}
	return s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpUpdate, model.KindRole, roleID); err != nil {
			return err
		}
		p, err := s.privilege(ctx, o, right)
		if err != nil {
			return err
		}
		return s.setLink(ctx, o, store.RolePrivileges, roleID, p.ID, true)
	})
}

// privilege returns the Privilege record of right, creating it when the
// database has none yet.
func (s *Service) privilege(ctx context.Context, o *txn, right model.Right) (*model.Privilege, error) {
	p, err := o.tx.PrivilegeFor(ctx, right)
	if err == nil || !model.IsNotFound(err) {
		return p, err
	}
	p = &model.Privilege{Base: model.Base{Name: string(right), Enabled: true}, Right: right}
	if err := s.create(ctx, o, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Login checks a user's credentials and opens a session. Unknown emails and
// wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (model.Login, error) {
	var out model.Login
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, err := tx.GetBy(ctx, model.KindUser, "email", strings.TrimSpace(email))
		if err != nil && !model.IsNotFound(err) {
			return err
		}
		if err != nil || !checkPassword(rec.(*model.User).PasswordHash, password) {
			return model.NewDeniedError(model.ReasonBadCredentials, email, "", model.KindUser, "")
		}

		now := tx.Now()
		out = model.Login{
			ID:      s.ids.NewID(),
			UserID:  rec.Meta().ID,
			Token:   s.tokens.NewID(),
			Login:   now,
			Created: now,
		}
		return tx.InsertLogin(ctx, out)
	})
	if err != nil {
		return model.Login{}, err
	}
	s.logger.Info("login", "user", out.UserID)
	return out, nil
}

func checkPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticate resolves a session token to its user. Use principal.WithActor
// with the user's id to act as them.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	var out *model.User
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		l, err := tx.LoginByToken(ctx, token)
		if err != nil {
			if model.IsNotFound(err) {
				return model.NewDeniedError(model.ReasonBadCredentials, "", "", "login", "")
			}
			return err
		}
		rec, err := tx.Get(ctx, model.KindUser, l.UserID)
		if err != nil {
			return err
		}
		out = rec.(*model.User)
		return nil
	})
	return out, err
}

// Logins lists a user's sessions, newest first. Users may always list
// their own.
func (s *Service) Logins(ctx context.Context, userID string) ([]model.Login, error) {
	var out []model.Login
	err := s.run(ctx, func(o *txn) error {
		if o.actor != userID {
			if err := s.authorizeOp(ctx, o, model.OpRead, model.KindUser, userID); err != nil {
				return err
			}
		}
		var err error
		out, err = o.tx.Logins(ctx, userID)
		return err
	})
	return out, err
}

// Grants returns a user's raw grants and effective rights.
func (s *Service) Grants(ctx context.Context, userID string) (store.Grants, []model.Right, error) {
	var g store.Grants
	err := s.run(ctx, func(o *txn) error {
		if o.actor != userID {
			if err := s.authorizeOp(ctx, o, model.OpRead, model.KindUser, userID); err != nil {
				return err
			}
		}
		var err error
		g, err = o.tx.Grants(ctx, userID)
		return err
	})
	if err != nil {
		return store.Grants{}, nil, err
	}
	return g, authz.Effective(g), nil
}
