package topology

import (
	"context"

	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

// CheckPlug validates the wiring of a plug before it is written. Source and
// target must be distinct sockets.
func CheckPlug(p *model.Plug) error {
	if p.SourceID != "" && p.SourceID == p.TargetID {
		return model.NewValidationError(model.ReasonInvalidValue, model.KindPlug, p.ID, "target_id",
			"a plug cannot connect a socket to itself")
	}
	return nil
}

// InboundPlugs returns the plugs targeting socketID, oldest first.
func InboundPlugs(ctx context.Context, tx *store.Tx, socketID string) ([]*model.Plug, error) {
	return plugsBy(ctx, tx, "target_id", socketID)
}

// OutboundPlugs returns the plugs leaving socketID, oldest first.
func OutboundPlugs(ctx context.Context, tx *store.Tx, socketID string) ([]*model.Plug, error) {
	return plugsBy(ctx, tx, "source_id", socketID)
}

func plugsBy(ctx context.Context, tx *store.Tx, column, socketID string) ([]*model.Plug, error) {
	if err := mustExist(ctx, tx, model.KindSocket, socketID); err != nil {
		return nil, err
	}
	recs, err := tx.ListBy(ctx, model.KindPlug, column, socketID, store.OldestFirst)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Plug, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.(*model.Plug))
	}
	return out, nil
}

// Attach adds a processor to a flow. Membership is not exclusive: the
// processor may already sit in other flows. It reports whether the link
// is new.
func Attach(ctx context.Context, tx *store.Tx, flowID, processorID string) (bool, error) {
	if err := mustExist(ctx, tx, model.KindFlow, flowID); err != nil {
		return false, err
	}
	if err := mustExist(ctx, tx, model.KindProcessor, processorID); err != nil {
		return false, err
	}
	return tx.Link(ctx, store.FlowProcessors, flowID, processorID)
}

// Detach removes a processor from a flow. Neither record is deleted.
func Detach(ctx context.Context, tx *store.Tx, flowID, processorID string) (bool, error) {
	return tx.Unlink(ctx, store.FlowProcessors, flowID, processorID)
}

// Processors returns the ids of the processors in a flow.
func Processors(ctx context.Context, tx *store.Tx, flowID string) ([]string, error) {
	return tx.Linked(ctx, store.FlowProcessors, flowID)
}

// Flows returns the ids of the flows a processor belongs to.
func Flows(ctx context.Context, tx *store.Tx, processorID string) ([]string, error) {
	return tx.LinkedTo(ctx, store.FlowProcessors, processorID)
}

func mustExist(ctx context.Context, tx *store.Tx, kind model.Kind, id string) error {
	ok, err := tx.Exists(ctx, kind, id)
	if err != nil {
		return err
	}
	if !ok {
		return model.NewNotFoundError(kind, id)
	}
	return nil
}
