package core

import (
	"context"
	"time"

	"github.com/roach88/lattice/internal/authz"
	"github.com/roach88/lattice/internal/ledger"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

func (s *Service) authorizeRun(ctx context.Context, o *txn, kind model.Kind, id string) error {
	return s.authorize(ctx, o, authz.Resource{Kind: kind, ID: id}, model.RightRunTask)
}

// StartCall records a new call in the CREATED state, started now. The
// call's name defaults to its task's name.
func (s *Service) StartCall(ctx context.Context, c *model.Call) error {
	return s.run(ctx, func(o *txn) error {
		if err := s.authorizeRun(ctx, o, model.KindCall, ""); err != nil {
			return err
		}
		fresh := ledger.NewCall(c.TaskID, c.SocketID, o.tx.Now())
		c.State, c.Started, c.Finished = fresh.State, fresh.Started, fresh.Finished
		if c.Name == "" && c.TaskID != "" {
			if task, err := o.tx.Get(ctx, model.KindTask, c.TaskID); err == nil {
				c.Name = task.Meta().Name
			}
		}
		return s.create(ctx, o, c)
	})
}

// TransitionCall moves a call to state. Updates are optimistic: a
// concurrent transition of the same call fails with a concurrency conflict.
func (s *Service) TransitionCall(ctx context.Context, id string, state model.CallState) (*model.Call, error) {
	var c *model.Call
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeRun(ctx, o, model.KindCall, id); err != nil {
			return err
		}
		rec, err := o.tx.Get(ctx, model.KindCall, id)
		if err != nil {
			return err
		}
		c = rec.(*model.Call)
		if err := ledger.Transition(c, state, o.tx.Now()); err != nil {
			return err
		}
		return o.tx.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("call transition", "call", id, "state", state)
	return c, nil
}

// AddEvent appends a note to a call.
func (s *Service) AddEvent(ctx context.Context, callID, note string) (*model.Event, error) {
	ev := &model.Event{Base: model.Base{Name: note, Enabled: true}, Note: note, CallID: callID}
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeRun(ctx, o, model.KindCall, callID); err != nil {
			return err
		}
		return s.create(ctx, o, ev)
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Events returns a call's events, newest first.
func (s *Service) Events(ctx context.Context, callID string) ([]*model.Event, error) {
	var out []*model.Event
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeOp(ctx, o, model.OpRead, model.KindCall, callID); err != nil {
			return err
		}
		ok, err := o.tx.Exists(ctx, model.KindCall, callID)
		if err != nil {
			return err
		}
		if !ok {
			return model.NewNotFoundError(model.KindCall, callID)
		}
		recs, err := o.tx.ListBy(ctx, model.KindEvent, "call_id", callID, store.NewestFirst)
		if err != nil {
			return err
		}
		out = make([]*model.Event, 0, len(recs))
		for _, r := range recs {
			out = append(out, r.(*model.Event))
		}
		return nil
	})
	return out, err
}

// SaveCheckpoint stores a job's next run time and state, releasing any
// lease. A zero next pauses the job.
func (s *Service) SaveCheckpoint(ctx context.Context, ref model.CheckpointRef, next time.Time, state ledger.JobState) (model.Checkpoint, error) {
	var cp model.Checkpoint
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeRun(ctx, o, model.KindWork, ref.Key); err != nil {
			return err
		}
		blob, err := ledger.EncodeState(state)
		if err != nil {
			return err
		}
		cp, err = o.tx.SaveCheckpoint(ctx, ref, next, blob)
		return err
	})
	return cp, err
}

// ScheduleSocket seeds the job checkpoint of a scheduled socket, keyed by
// the socket id. INTERVAL sockets first come due one interval from now.
// CRON sockets are due at once and the external scheduler commits their
// next run.
func (s *Service) ScheduleSocket(ctx context.Context, socketID string) (model.Checkpoint, error) {
	var cp model.Checkpoint
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeRun(ctx, o, model.KindSocket, socketID); err != nil {
			return err
		}
		rec, err := o.tx.Get(ctx, model.KindSocket, socketID)
		if err != nil {
			return err
		}
		sock := rec.(*model.Socket)
		if !sock.Scheduled {
			return model.NewValidationError(model.ReasonInvalidValue, model.KindSocket, socketID, "scheduled", "socket is not scheduled")
		}
		state := ledger.StateFor(sock)
		now := o.tx.Now()
		next, ok := state.NextRun(now)
		if !ok {
			next = now
		}
		blob, err := ledger.EncodeState(state)
		if err != nil {
			return err
		}
		cp, err = o.tx.SaveCheckpoint(ctx, ledger.SocketJob(socketID), next, blob)
		return err
	})
	if err != nil {
		return model.Checkpoint{}, err
	}
	s.logger.Info("socket scheduled", "socket", socketID, "next_run", cp.NextRun)
	return cp, nil
}

// DeleteCheckpoint removes a job checkpoint, or clears the checkpoint of a
// task's work row.
func (s *Service) DeleteCheckpoint(ctx context.Context, ref model.CheckpointRef) error {
	return s.run(ctx, func(o *txn) error {
		if err := s.authorizeRun(ctx, o, model.KindWork, ref.Key); err != nil {
			return err
		}
		return o.tx.DeleteCheckpoint(ctx, ref)
	})
}

// DueCheckpoints lists checkpoints due at now, oldest first. A limit of
// zero or less returns all of them.
func (s *Service) DueCheckpoints(ctx context.Context, now time.Time, limit int) ([]ledger.Due, error) {
	var out []ledger.Due
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeRun(ctx, o, model.KindWork, ""); err != nil {
			return err
		}
		var err error
		out, err = ledger.DueCheckpoints(ctx, o.tx, s.logger, now, limit)
		return err
	})
	return out, err
}

// ClaimCheckpoint leases a due checkpoint to owner. Of several concurrent
// claims at most one succeeds; the others get a concurrency conflict.
func (s *Service) ClaimCheckpoint(ctx context.Context, ref model.CheckpointRef, owner string, now time.Time) (model.Checkpoint, error) {
	var cp model.Checkpoint
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeRun(ctx, o, model.KindWork, ref.Key); err != nil {
			return err
		}
		var err error
		cp, err = o.tx.ClaimCheckpoint(ctx, ref, owner, now, s.leaseTTL)
		return err
	})
	switch {
	case err == nil:
		s.metrics.Claim(true)
		s.logger.Debug("checkpoint claimed", "checkpoint", ref.String(), "owner", owner, "revision", cp.Revision)
	case model.IsConcurrencyConflict(err):
		s.metrics.Claim(false)
	}
	return cp, err
}

// CommitCheckpoint stores the result of a claimed run and releases the
// lease. revision must be the one returned by the claim.
func (s *Service) CommitCheckpoint(ctx context.Context, ref model.CheckpointRef, owner string, revision int64, state ledger.JobState, next time.Time) (model.Checkpoint, error) {
	var cp model.Checkpoint
	err := s.run(ctx, func(o *txn) error {
		if err := s.authorizeRun(ctx, o, model.KindWork, ref.Key); err != nil {
			return err
		}
		blob, err := ledger.EncodeState(state)
		if err != nil {
			return err
		}
		cp, err = o.tx.CommitCheckpoint(ctx, ref, owner, revision, next, blob)
		return err
	})
	return cp, err
}
