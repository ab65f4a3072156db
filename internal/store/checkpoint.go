package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/lattice/internal/model"
)

type checkpointTable struct {
	table string
	key   string
	kind  model.Kind
}

func checkpointTableFor(ref model.CheckpointRef) (checkpointTable, error) {
	switch ref.Kind {
	case model.CheckpointJob:
		return checkpointTable{table: "jobs", key: "id", kind: "job"}, nil
	case model.CheckpointWork:
		return checkpointTable{table: "work", key: "task_id", kind: model.KindWork}, nil
	}
	return checkpointTable{}, model.NewValidationError(model.ReasonInvalidEnum, "", ref.Key, "kind", fmt.Sprintf("unknown checkpoint kind %q", ref.Kind))
}

const checkpointColumns = "next_run_time, job_state, lease_owner, lease_expires, revision"

// duePredicate selects rows that are due at the first argument and not
// under a live lease at the second.
const duePredicate = "next_run_time IS NOT NULL AND next_run_time <= ? AND (lease_owner IS NULL OR lease_expires <= ?)"

func scanCheckpoint(row rowScanner, ref *model.CheckpointRef) (model.Checkpoint, error) {
	var (
		cp      model.Checkpoint
		next    sql.NullFloat64
		owner   sql.NullString
		expires int64
	)
	dests := []any{&next, &cp.State, &owner, &expires, &cp.Revision}
	var kind string
	if ref == nil {
		dests = append([]any{&kind, &cp.Ref.Key}, dests...)
	}
	if err := row.Scan(dests...); err != nil {
		return model.Checkpoint{}, err
	}
	if ref != nil {
		cp.Ref = *ref
	} else {
		cp.Ref.Kind = model.CheckpointKind(kind)
	}
	cp.NextRun = fromSeconds(next)
	cp.LeaseOwner = owner.String
	cp.LeaseExpires = fromNanos(expires)
	return cp, nil
}

// GetCheckpoint reads one checkpoint row.
func (t *Tx) GetCheckpoint(ctx context.Context, ref model.CheckpointRef) (model.Checkpoint, error) {
	ct, err := checkpointTableFor(ref)
	if err != nil {
		return model.Checkpoint{}, err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", checkpointColumns, ct.table, ct.key)
	cp, err := scanCheckpoint(t.tx.QueryRowContext(ctx, query, ref.Key), &ref)
	if err != nil {
		return model.Checkpoint{}, notFound(err, ct.kind, ref.Key)
	}
	return cp, nil
}

// SaveCheckpoint stores the next run time and state blob of a checkpoint,
// clearing any lease. Job rows are created on first save; work rows must
// already exist for the task. A zero nextRun pauses the job.
func (t *Tx) SaveCheckpoint(ctx context.Context, ref model.CheckpointRef, nextRun time.Time, state []byte) (model.Checkpoint, error) {
	ct, err := checkpointTableFor(ref)
	if err != nil {
		return model.Checkpoint{}, err
	}
	if ref.Key == "" {
		return model.Checkpoint{}, model.NewValidationError(model.ReasonRequired, ct.kind, "", "key", "checkpoint key is required")
	}

	switch ref.Kind {
	case model.CheckpointJob:
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO jobs (id, next_run_time, job_state, lease_owner, lease_expires, revision)
			VALUES (?, ?, ?, NULL, 0, 1)
			ON CONFLICT(id) DO UPDATE SET
				next_run_time = excluded.next_run_time,
				job_state = excluded.job_state,
				lease_owner = NULL,
				lease_expires = 0,
				revision = jobs.revision + 1
		`, ref.Key, toSeconds(nextRun), state)
		if err != nil {
			return model.Checkpoint{}, fmt.Errorf("save checkpoint %s: %w", ref, err)
		}
	case model.CheckpointWork:
		res, err := t.tx.ExecContext(ctx, `
			UPDATE work SET next_run_time = ?, job_state = ?, lease_owner = NULL, lease_expires = 0, revision = revision + 1
			WHERE task_id = ?
		`, toSeconds(nextRun), state, ref.Key)
		if err != nil {
			return model.Checkpoint{}, fmt.Errorf("save checkpoint %s: %w", ref, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return model.Checkpoint{}, fmt.Errorf("save checkpoint %s: %w", ref, err)
		} else if n == 0 {
			return model.Checkpoint{}, model.NewNotFoundError(model.KindWork, ref.Key)
		}
	}
	return t.GetCheckpoint(ctx, ref)
}

// DueCheckpoints returns unleased checkpoints whose next run time is at or
// before now, earliest first. limit <= 0 means no limit.
func (t *Tx) DueCheckpoints(ctx context.Context, now time.Time, limit int) ([]model.Checkpoint, error) {
	if limit <= 0 {
		limit = -1
	}
	at, leaseNow := toSeconds(now), toNanos(now)
	query := fmt.Sprintf(`
		SELECT 'job', id, %[1]s FROM jobs WHERE %[2]s
		UNION ALL
		SELECT 'work', task_id, %[1]s FROM work WHERE %[2]s
		ORDER BY 3, 2
		LIMIT ?
	`, checkpointColumns, duePredicate)

	rows, err := t.tx.QueryContext(ctx, query, at, leaseNow, at, leaseNow, limit)
	if err != nil {
		return nil, fmt.Errorf("query due checkpoints: %w", err)
	}
	defer rows.Close()

	out := []model.Checkpoint{}
	for rows.Next() {
		cp, err := scanCheckpoint(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query due checkpoints: %w", err)
	}
	return out, nil
}

// ClaimCheckpoint takes a lease on a due checkpoint for owner until
// now+ttl. Exactly one of several concurrent claimers succeeds; the others
// get a CONCURRENCY_CONFLICT with reason NOT_DUE.
func (t *Tx) ClaimCheckpoint(ctx context.Context, ref model.CheckpointRef, owner string, now time.Time, ttl time.Duration) (model.Checkpoint, error) {
	ct, err := checkpointTableFor(ref)
	if err != nil {
		return model.Checkpoint{}, err
	}
	if owner == "" {
		return model.Checkpoint{}, model.NewValidationError(model.ReasonRequired, ct.kind, ref.Key, "lease_owner", "lease owner is required")
	}

	query := fmt.Sprintf(
		"UPDATE %s SET lease_owner = ?, lease_expires = ?, revision = revision + 1 WHERE %s = ? AND %s",
		ct.table, ct.key, duePredicate)
	res, err := t.tx.ExecContext(ctx, query, owner, toNanos(now.Add(ttl)), ref.Key, toSeconds(now), toNanos(now))
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("claim checkpoint %s: %w", ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("claim checkpoint %s: %w", ref, err)
	}
	if n == 0 {
		if _, err := t.GetCheckpoint(ctx, ref); err != nil {
			return model.Checkpoint{}, err
		}
		return model.Checkpoint{}, model.NewConcurrencyError(model.ReasonNotDue, ct.kind, ref.Key, "checkpoint is not due or already claimed")
	}
	return t.GetCheckpoint(ctx, ref)
}

// CommitCheckpoint writes the post-run state and next run time, releasing
// the lease. It succeeds only if owner still holds the lease at revision.
func (t *Tx) CommitCheckpoint(ctx context.Context, ref model.CheckpointRef, owner string, revision int64, nextRun time.Time, state []byte) (model.Checkpoint, error) {
	ct, err := checkpointTableFor(ref)
	if err != nil {
		return model.Checkpoint{}, err
	}

	query := fmt.Sprintf(`
		UPDATE %s SET next_run_time = ?, job_state = ?, lease_owner = NULL, lease_expires = 0, revision = revision + 1
		WHERE %s = ? AND revision = ? AND lease_owner = ?`, ct.table, ct.key)
	res, err := t.tx.ExecContext(ctx, query, toSeconds(nextRun), state, ref.Key, revision, owner)
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("commit checkpoint %s: %w", ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("commit checkpoint %s: %w", ref, err)
	}
	if n == 0 {
		if _, err := t.GetCheckpoint(ctx, ref); err != nil {
			return model.Checkpoint{}, err
		}
		return model.Checkpoint{}, model.NewConcurrencyError(model.ReasonStaleWrite, ct.kind, ref.Key, "lease lost or revision changed")
	}
	return t.GetCheckpoint(ctx, ref)
}

// DeleteCheckpoint removes a job row, or clears the checkpoint columns of a
// work row.
func (t *Tx) DeleteCheckpoint(ctx context.Context, ref model.CheckpointRef) error {
	ct, err := checkpointTableFor(ref)
	if err != nil {
		return err
	}
	var res sql.Result
	if ref.Kind == model.CheckpointJob {
		res, err = t.tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, ref.Key)
	} else {
		res, err = t.tx.ExecContext(ctx, `
			UPDATE work SET next_run_time = NULL, job_state = NULL, lease_owner = NULL, lease_expires = 0, revision = revision + 1
			WHERE task_id = ?`, ref.Key)
	}
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", ref, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", ref, err)
	}
	if n == 0 {
		return model.NewNotFoundError(ct.kind, ref.Key)
	}
	return nil
}
