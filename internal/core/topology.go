package core

import (
	"context"

	"github.com/roach88/lattice/internal/authz"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/topology"
)

// AttachProcessor adds a processor to a flow.
func (s *Service) AttachProcessor(ctx context.Context, flowID, processorID string) error {
	return s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpUpdate, model.KindFlow, flowID); err != nil {
			return err
		}
		added, err := topology.Attach(ctx, o.tx, flowID, processorID)
		if err == nil && added {
			s.metrics.Mutation("attach", string(model.KindFlow))
		}
		return err
	})
}

// DetachProcessor removes a processor from a flow.
func (s *Service) DetachProcessor(ctx context.Context, flowID, processorID string) error {
	return s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpUpdate, model.KindFlow, flowID); err != nil {
			return err
		}
		_, err := topology.Detach(ctx, o.tx, flowID, processorID)
		return err
	})
}

// FlowProcessors returns the ids of the processors in a flow.
func (s *Service) FlowProcessors(ctx context.Context, flowID string) ([]string, error) {
	var out []string
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpRead, model.KindFlow, flowID); err != nil {
			return err
		}
		var err error
		out, err = topology.Processors(ctx, o.tx, flowID)
		return err
	})
	return out, err
}

// SaveDefinition stores new code for a flow and snapshots it as a Version.
func (s *Service) SaveDefinition(ctx context.Context, flowID, code string) (*model.Version, error) {
	var v *model.Version
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpUpdate, model.KindFlow, flowID); err != nil {
			return err
		}
		var err error
		v, err = topology.SaveDefinition(ctx, o.tx, s.ids, flowID, code)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.Mutation("version", string(model.KindFlow))
	s.logger.Info("definition saved", "flow", flowID, "version", v.ID, "digest", v.Digest)
	return v, nil
}

// Versions returns a flow's definition history, oldest first.
func (s *Service) Versions(ctx context.Context, flowID string) ([]*model.Version, error) {
	var out []*model.Version
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpRead, model.KindFlow, flowID); err != nil {
			return err
		}
		rec, err := o.tx.Get(ctx, model.KindFlow, flowID)
		if err != nil {
			return err
		}
		out, err = topology.Versions(ctx, o.tx, rec.(*model.Flow).FileID)
		return err
	})
	return out, err
}

// InboundPlugs returns the plugs targeting a socket.
func (s *Service) InboundPlugs(ctx context.Context, socketID string) ([]*model.Plug, error) {
	var out []*model.Plug
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpRead, model.KindPlug, ""); err != nil {
			return err
		}
		var err error
		out, err = topology.InboundPlugs(ctx, o.tx, socketID)
		return err
	})
	return out, err
}

// Deliver records that a plug delivered a value for a generation and
// reports whether the target socket's task fires.
func (s *Service) Deliver(ctx context.Context, plugID, generation string) (topology.Delivery, error) {
	var d topology.Delivery
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorize(ctx, o, authz.Resource{Kind: model.KindPlug, ID: plugID}, model.RightRunTask); err != nil {
			return err
		}
		var err error
		d, err = topology.Deliver(ctx, o.tx, plugID, generation)
		return err
	})
	if err == nil && d.Fire {
		s.logger.Debug("socket fires", "socket", d.SocketID, "generation", generation, "first", d.First)
	}
	return d, err
}
