package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

// stateVersion is bumped when JobState changes incompatibly.
const stateVersion = 1

// JobState is the scheduler state persisted with a checkpoint. Payload is
// owned by the external scheduler and passed through untouched.
type JobState struct {
	Version  int             `json:"v"`
	Trigger  string          `json:"trigger,omitempty"`
	Interval int             `json:"interval,omitempty"`
	Cron     string          `json:"cron,omitempty"`
	LastRun  time.Time       `json:"last_run,omitzero"`
	Runs     int64           `json:"runs"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Never reports whether the job has not run yet.
func (s JobState) Never() bool { return s.Runs == 0 && s.LastRun.IsZero() }

// SocketJob addresses the job checkpoint of a scheduled socket.
func SocketJob(socketID string) model.CheckpointRef {
	return model.CheckpointRef{Kind: model.CheckpointJob, Key: socketID}
}

// StateFor derives the initial state of a scheduled socket.
func StateFor(s *model.Socket) JobState {
	return JobState{
		Version:  stateVersion,
		Trigger:  string(s.ScheduleType),
		Interval: s.Interval,
		Cron:     s.Cron,
	}
}

// EncodeState serialises a job state for storage.
func EncodeState(s JobState) ([]byte, error) {
	s.Version = stateVersion
	return json.Marshal(s)
}

// DecodeState parses a stored blob. An empty blob is a never-run job.
// Anything else that does not parse, or carries an unknown version, is a
// serialization error.
func DecodeState(id string, data []byte) (JobState, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return JobState{Version: stateVersion}, nil
	}
	var s JobState
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return JobState{}, model.NewSerializationError(id, err)
	}
	if s.Version != stateVersion {
		return JobState{}, model.NewSerializationError(id, fmt.Errorf("unsupported state version %d", s.Version))
	}
	return s, nil
}

// Ran records a completed run at now.
func (s JobState) Ran(now time.Time) JobState {
	s.LastRun = now
	s.Runs++
	return s
}

// NextRun computes the next trigger time of an INTERVAL job after now.
// CRON jobs and jobs without a positive interval report false; their next
// run is chosen by the external scheduler.
func (s JobState) NextRun(now time.Time) (time.Time, bool) {
	if s.Trigger != string(model.ScheduleInterval) || s.Interval <= 0 {
		return time.Time{}, false
	}
	return now.Add(time.Duration(s.Interval) * time.Second), true
}

// Due is one checkpoint ready to run, with its decoded state.
type Due struct {
	Checkpoint model.Checkpoint
	State      JobState
	// Corrupt is set when the stored blob could not be decoded. State is
	// then the never-run state.
	Corrupt bool
}

// DueCheckpoints lists checkpoints due at now and decodes their state.
// An undecodable blob is logged and the job is reported as never run, so
// one bad row cannot stall the scheduler.
func DueCheckpoints(ctx context.Context, tx *store.Tx, logger *slog.Logger, now time.Time, limit int) ([]Due, error) {
	cps, err := tx.DueCheckpoints(ctx, now, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Due, 0, len(cps))
	for _, cp := range cps {
		d := Due{Checkpoint: cp}
		d.State, err = DecodeState(cp.Ref.String(), cp.State)
		if err != nil {
			logger.Warn("undecodable checkpoint state", "checkpoint", cp.Ref.String(), "error", err)
			d.State = JobState{Version: stateVersion}
			d.Corrupt = true
		}
		out = append(out, d)
	}
	return out, nil
}
