package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/lattice/internal/authz"
	"github.com/roach88/lattice/internal/integrity"
	"github.com/roach88/lattice/internal/ledger"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/topology"
)

type defaulter interface {
	ApplyDefaults()
}

// Create stores a new record. A missing id is generated, the name is
// normalised, timestamps are stamped, and the owner defaults to the acting
// principal. Setting another owner requires ALL.
//
// Versions and events are only written by SaveDefinition and AddEvent.
func (s *Service) Create(ctx context.Context, e model.Entity) error {
	return s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpCreate, e.Kind(), ""); err != nil {
			return err
		}
		switch kind := e.Kind(); kind {
		case model.KindVersion, model.KindEvent:
			return model.NewValidationError(model.ReasonImmutable, kind, e.Meta().ID, "",
				fmt.Sprintf("%s records are appended by their owning operation", kind))
		}
		return s.create(ctx, o, e)
	})
}

// create runs every step of Create after authorization.
func (s *Service) create(ctx context.Context, o *txn, e model.Entity) error {
	kind := e.Kind()
	b := e.Meta()
	if b.ID == "" {
		b.ID = s.ids.NewID()
	}
	b.Name = model.NormalizeName(b.Name)
	if b.Name == "" {
		return model.NewValidationError(model.ReasonRequired, kind, b.ID, "name", "name is required")
	}
	if b.Owner == "" {
		b.Owner = o.actor
	}
	if b.Owner != o.actor {
		if err := s.authorize(ctx, o, resourceOf(e), model.RightAll); err != nil {
			return err
		}
		if err := s.checkOwner(ctx, o, kind, b.ID, b.Owner); err != nil {
			return err
		}
	}
	if b.Status == "" {
		b.Status = model.DefaultStatus
	}
	now := o.tx.Now()
	b.Created, b.LastUpdated = now, now

	if d, ok := e.(defaulter); ok {
		d.ApplyDefaults()
	}
	if c, ok := e.(*model.Call); ok {
		if c.State != model.CallCreated || c.Finished != nil {
			return model.NewValidationError(model.ReasonInvalidTransition, kind, b.ID, "state", "calls start in CREATED")
		}
	}
	if err := s.check(ctx, o, e); err != nil {
		return err
	}
	if err := o.tx.Insert(ctx, e); err != nil {
		return err
	}

	s.metrics.Mutation("create", string(kind))
	s.logger.Info("created", "kind", kind, "id", b.ID, "name", b.Name, "actor", o.actor)
	return nil
}

// check runs field, wiring and reference validation.
func (s *Service) check(ctx context.Context, o *txn, e model.Entity) error {
	if v, ok := e.(model.Validator); ok {
		if err := v.Validate(); err != nil {
			return withID(err, e.Meta().ID)
		}
	}
	if p, ok := e.(*model.Plug); ok {
		if err := topology.CheckPlug(p); err != nil {
			return err
		}
	}
	return s.enforcer.CheckRefs(ctx, o.tx, e)
}

// withID fills the record id into validation errors raised before it was
// known to the validator.
func withID(err error, id string) error {
	var me *model.Error
	if errors.As(err, &me) && me.ID == "" {
		me.ID = id
	}
	return err
}

func (s *Service) checkOwner(ctx context.Context, o *txn, kind model.Kind, id, owner string) error {
	ok, err := o.tx.Exists(ctx, model.KindUser, owner)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewValidationError(model.ReasonDanglingReference, kind, id, "owner",
			fmt.Sprintf("owner %s is not a user", owner))
	}
	return nil
}

func resourceOf(e model.Entity) authz.Resource {
	return authz.Resource{Kind: e.Kind(), ID: e.Meta().ID}
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, kind model.Kind, id string) (model.Entity, error) {
	var out model.Entity
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpRead, kind, id); err != nil {
			return err
		}
		var err error
		out, err = o.tx.Get(ctx, kind, id)
		return err
	})
	return out, err
}

// Find returns the oldest record of kind with the given name.
func (s *Service) Find(ctx context.Context, kind model.Kind, name string) (model.Entity, error) {
	var out model.Entity
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpRead, kind, ""); err != nil {
			return err
		}
		var err error
		out, err = o.tx.GetByName(ctx, kind, name)
		return err
	})
	return out, err
}

// List returns every record of kind, oldest first.
func (s *Service) List(ctx context.Context, kind model.Kind) ([]model.Entity, error) {
	var out []model.Entity
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpRead, kind, ""); err != nil {
			return err
		}
		var err error
		out, err = o.tx.List(ctx, kind)
		return err
	})
	return out, err
}

// Update writes e if its LastUpdated still matches the stored record.
// Owner and Created cannot change here; use TransferOwnership. Versions
// and events are immutable, and call state only moves via TransitionCall.
func (s *Service) Update(ctx context.Context, e model.Entity) error {
	kind := e.Kind()
	b := e.Meta()
	return s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpUpdate, kind, b.ID); err != nil {
			return err
		}
		prev, err := o.tx.Get(ctx, kind, b.ID)
		if err != nil {
			return err
		}
		if err := checkMutable(prev, e); err != nil {
			return err
		}
		b.Name = model.NormalizeName(b.Name)
		if b.Name == "" {
			return model.NewValidationError(model.ReasonRequired, kind, b.ID, "name", "name is required")
		}
		b.Created = prev.Meta().Created
		carrySecrets(prev, e)
		if err := s.check(ctx, o, e); err != nil {
			return err
		}
		if err := o.tx.Update(ctx, e); err != nil {
			return err
		}
		if _, err := s.enforcer.AfterUpdate(ctx, o.tx, prev, e); err != nil {
			return err
		}

		s.metrics.Mutation("update", string(kind))
		s.logger.Info("updated", "kind", kind, "id", b.ID, "actor", o.actor)
		return nil
	})
}

// carrySecrets keeps stored hashes when the caller did not set new ones.
// Hashes are not part of the JSON form, so round-tripped records lose them.
func carrySecrets(prev, next model.Entity) {
	switch n := next.(type) {
	case *model.User:
		if n.PasswordHash == "" {
			n.PasswordHash = prev.(*model.User).PasswordHash
		}
	case *model.Password:
		if n.Hash == "" {
			n.Hash = prev.(*model.Password).Hash
		}
	}
}

func checkMutable(prev, next model.Entity) error {
	kind, id := next.Kind(), next.Meta().ID
	switch kind {
	case model.KindVersion, model.KindEvent:
		return model.NewValidationError(model.ReasonImmutable, kind, id, "", fmt.Sprintf("%s records are immutable", kind))
	case model.KindCall:
		if prev.(*model.Call).State != next.(*model.Call).State {
			return model.NewValidationError(model.ReasonInvalidTransition, kind, id, "state", "call state changes go through TransitionCall")
		}
	}
	if prev.Meta().Owner != next.Meta().Owner {
		return model.NewValidationError(model.ReasonOwnerChange, kind, id, "owner", "ownership changes go through TransferOwnership")
	}
	return nil
}

// Delete removes a record and applies the cascade rules atomically.
func (s *Service) Delete(ctx context.Context, kind model.Kind, id string) (integrity.Report, error) {
	var report integrity.Report
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpDelete, kind, id); err != nil {
			return err
		}
		var err error
		report, err = s.enforcer.Delete(ctx, o.tx, kind, id)
		if err != nil {
			return err
		}
		return dropSocketJobs(ctx, o, report.Deleted[model.KindSocket])
	})
	if err != nil {
		return integrity.Report{}, err
	}

	for k, ids := range report.Deleted {
		s.metrics.Deleted(string(k), len(ids))
	}
	s.metrics.Mutation("delete", string(kind))
	s.logger.Info("deleted", "kind", kind, "id", id, "records", report.Count(), "nullified", report.Nullified)
	return report, nil
}

// dropSocketJobs removes the job checkpoints of deleted sockets. Sockets
// that were never scheduled have none.
func dropSocketJobs(ctx context.Context, o *txn, socketIDs []string) error {
	for _, id := range socketIDs {
		err := o.tx.DeleteCheckpoint(ctx, ledger.SocketJob(id))
		if err != nil && !model.IsNotFound(err) {
			return err
		}
	}
	return nil
}

// TransferOwnership gives a record to another user. It requires ALL and
// leaves an audit log entry on the record.
func (s *Service) TransferOwnership(ctx context.Context, kind model.Kind, id, newOwner string) error {
	return s.run(ctx, func(o *txn) error {
		if err := s.authorize(ctx, o, authz.Resource{Kind: kind, ID: id}, model.RightAll); err != nil {
			return err
		}
		rec, err := o.tx.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := s.checkOwner(ctx, o, kind, id, newOwner); err != nil {
			return err
		}
		prev := rec.Meta().Owner
		if prev == newOwner {
			return nil
		}
		rec.Meta().Owner = newOwner
		if err := o.tx.Update(ctx, rec); err != nil {
			return err
		}
		if _, err := s.writeLog(ctx, o, model.SubjectOf(rec), fmt.Sprintf("owner changed from %s to %s", prev, newOwner), "core", false); err != nil {
			return err
		}

		s.metrics.Mutation("transfer", string(kind))
		s.logger.Info("ownership transferred", "kind", kind, "id", id, "from", prev, "to", newOwner, "actor", o.actor)
		return nil
	})
}
