package integrity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/testutil"
)

func setup(t *testing.T) (*store.Store, *Enforcer) {
	t.Helper()
	clock := testutil.NewStepClock(testutil.Epoch, time.Millisecond)
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e, err := New(s.Registry(), WithLogger(testutil.DiscardLogger()))
	require.NoError(t, err)
	return s, e
}

func base(id string) model.Base {
	return model.Base{
		ID:          id,
		Name:        id,
		Owner:       "u1",
		Status:      model.DefaultStatus,
		Enabled:     true,
		Created:     testutil.Epoch,
		LastUpdated: testutil.Epoch,
	}
}

func insert(t *testing.T, s *store.Store, entities ...model.Entity) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), func(tx *store.Tx) error {
		for _, e := range entities {
			if err := tx.Insert(context.Background(), e); err != nil {
				return err
			}
		}
		return nil
	}))
}

func remove(t *testing.T, s *store.Store, e *Enforcer, kind model.Kind, id string) (Report, error) {
	t.Helper()
	var report Report
	err := s.WithTx(context.Background(), func(tx *store.Tx) error {
		var err error
		report, err = e.Delete(context.Background(), tx, kind, id)
		return err
	})
	return report, err
}

func exists(t *testing.T, s *store.Store, kind model.Kind, id string) bool {
	t.Helper()
	var ok bool
	require.NoError(t, s.WithTx(context.Background(), func(tx *store.Tx) error {
		var err error
		ok, err = tx.Exists(context.Background(), kind, id)
		return err
	}))
	return ok
}

// seed builds:
//
//	u1 owns p1 with sockets s1(t1) s2(t2) s3(t1)
//	plugs s1->s2 (plug1) and s2->s3 (plug2)
//	deployment d1 and worker w1 on agent a1 / node n1
func seed(t *testing.T, s *store.Store) {
	t.Helper()
	insert(t, s,
		&model.User{Base: base("u1"), Email: "u1@example.com"},
		&model.Processor{Base: base("p1"), Module: "m", UserID: "u1"},
		&model.Task{Base: base("t1"), Module: "m", GitRepo: "r1"},
		&model.Task{Base: base("t2"), Module: "m", GitRepo: "r2"},
		&model.Argument{Base: base("arg1"), TaskID: "t1", UserID: "u1"},
		&model.Socket{Base: base("s1"), ProcessorID: "p1", TaskID: "t1", UserID: "u1"},
		&model.Socket{Base: base("s2"), ProcessorID: "p1", TaskID: "t2", UserID: "u1"},
		&model.Socket{Base: base("s3"), ProcessorID: "p1", TaskID: "t1", UserID: "u1"},
		&model.Plug{Base: base("plug1"), ProcessorID: "p1", SourceID: "s1", TargetID: "s2", UserID: "u1", ArgumentID: "arg1"},
		&model.Plug{Base: base("plug2"), ProcessorID: "p1", SourceID: "s2", TargetID: "s3", UserID: "u1"},
		&model.Node{Base: base("n1"), Hostname: "host"},
		&model.Agent{Base: base("a1"), NodeID: "n1"},
		&model.Deployment{Base: base("d1"), Hostname: "host", CPUs: 1, ProcessorID: "p1"},
		&model.Worker{Base: base("w1"), Backend: "redis", Broker: "amqp", ProcessorID: "p1", AgentID: "a1", DeploymentID: "d1"},
	)
}

func TestDelete_ProcessorCascades(t *testing.T) {
	s, e := setup(t)
	seed(t, s)

	report, err := remove(t, s, e, model.KindProcessor, "p1")
	require.NoError(t, err)

	assert.Equal(t, []string{"p1"}, report.Deleted[model.KindProcessor])
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, report.Deleted[model.KindSocket])
	assert.ElementsMatch(t, []string{"plug1", "plug2"}, report.Deleted[model.KindPlug])
	assert.Equal(t, []string{"d1"}, report.Deleted[model.KindDeployment])
	assert.Equal(t, []string{"w1"}, report.Deleted[model.KindWorker])

	// Tasks go once their last socket is gone, taking arguments with them.
	assert.ElementsMatch(t, []string{"t1", "t2"}, report.Deleted[model.KindTask])
	assert.Equal(t, []string{"arg1"}, report.Deleted[model.KindArgument])
	assert.Equal(t, 11, report.Count())

	assert.True(t, exists(t, s, model.KindUser, "u1"))
	assert.True(t, exists(t, s, model.KindAgent, "a1"))
	assert.True(t, exists(t, s, model.KindNode, "n1"))
	assert.False(t, exists(t, s, model.KindSocket, "s2"))
}

func TestDelete_NotFound(t *testing.T) {
	s, e := setup(t)
	_, err := remove(t, s, e, model.KindProcessor, "missing")
	assert.True(t, model.IsNotFound(err))
}

func TestDelete_RestrictedByOwner(t *testing.T) {
	s, e := setup(t)
	seed(t, s)

	_, err := remove(t, s, e, model.KindUser, "u1")
	require.Error(t, err)
	assert.True(t, model.IsCascadeConflict(err))
	assert.True(t, exists(t, s, model.KindUser, "u1"))
}

func TestDelete_UserStillOwningRecords(t *testing.T) {
	s, e := setup(t)
	bob := &model.User{Base: base("u2"), Email: "bob@example.com"}
	task := &model.Task{Base: base("t9"), Module: "m", GitRepo: "r"}
	task.Owner = "u2"
	insert(t, s, &model.User{Base: base("u1"), Email: "u1@example.com"}, bob, task)

	_, err := remove(t, s, e, model.KindUser, "u2")
	require.Error(t, err)
	assert.True(t, model.IsCascadeConflict(err))
	var me *model.Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, OwnerColumn, me.Field)
	assert.True(t, exists(t, s, model.KindUser, "u2"))
	assert.True(t, exists(t, s, model.KindTask, "t9"))

	// A user that owns only itself can go.
	insert(t, s, &model.User{Base: model.Base{ID: "u3", Name: "u3", Owner: "u3", Status: model.DefaultStatus, Created: testutil.Epoch, LastUpdated: testutil.Epoch}, Email: "u3@example.com"})
	report, err := remove(t, s, e, model.KindUser, "u3")
	require.NoError(t, err)
	assert.Equal(t, []string{"u3"}, report.Deleted[model.KindUser])
}

func TestRelations_IncludeOwnerRestrictions(t *testing.T) {
	_, e := setup(t)
	assert.Contains(t, e.Relations(), Relation{model.KindTask, OwnerColumn, model.KindUser, Restrict})
	assert.Contains(t, e.Relations(), Relation{model.KindSocket, "task_id", model.KindTask, Restrict})
}

func TestDelete_RestrictRollsBackCascades(t *testing.T) {
	s, e := setup(t)
	seed(t, s)

	// t1 cascades to arg1 but is restricted by s1 and s3.
	_, err := remove(t, s, e, model.KindTask, "t1")
	require.Error(t, err)
	assert.True(t, model.IsCascadeConflict(err))
	assert.Equal(t, model.ReasonRestricted, model.ReasonOf(err))

	assert.True(t, exists(t, s, model.KindTask, "t1"))
	assert.True(t, exists(t, s, model.KindArgument, "arg1"))
}

func TestDelete_SharedTaskReleasedWithLastSocket(t *testing.T) {
	s, e := setup(t)
	seed(t, s)

	report, err := remove(t, s, e, model.KindSocket, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"plug1"}, report.Deleted[model.KindPlug])
	assert.Empty(t, report.Deleted[model.KindTask])
	assert.True(t, exists(t, s, model.KindTask, "t1"))

	report, err = remove(t, s, e, model.KindSocket, "s3")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, report.Deleted[model.KindTask])
	assert.False(t, exists(t, s, model.KindArgument, "arg1"))
}

func TestDelete_FlowReleasesFile(t *testing.T) {
	s, e := setup(t)
	insert(t, s,
		&model.User{Base: base("u1"), Email: "u1@example.com"},
		&model.File{Base: base("f1"), Code: "x", UserID: "u1"},
		&model.Version{Base: base("v1"), FileID: "f1", Version: testutil.Epoch},
		&model.Version{Base: base("v2"), FileID: "f1", Version: testutil.Epoch.Add(time.Second)},
		&model.Flow{Base: base("fl1"), FileID: "f1"},
	)

	_, err := remove(t, s, e, model.KindFile, "f1")
	assert.True(t, model.IsCascadeConflict(err), "a held file cannot be deleted directly")

	report, err := remove(t, s, e, model.KindFlow, "fl1")
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, report.Deleted[model.KindFile])
	assert.ElementsMatch(t, []string{"v1", "v2"}, report.Deleted[model.KindVersion])
}

func TestDelete_NetworkCascadesAndNullifies(t *testing.T) {
	s, e := setup(t)
	insert(t, s,
		&model.User{Base: base("u1"), Email: "u1@example.com"},
		&model.Network{Base: base("net"), UserID: "u1"},
		&model.Scheduler{Base: base("sch"), Strategy: model.StrategyBalanced, NetworkID: "net"},
		&model.Node{Base: base("n1"), NetworkID: "net", SchedulerID: "sch"},
		&model.Node{Base: base("n2"), SchedulerID: "sch"},
		&model.Queue{Base: base("q1"), NetworkID: "net"},
		&model.Processor{Base: base("p1"), Module: "m", UserID: "u1"},
		&model.Task{Base: base("t1"), Module: "m", GitRepo: "r"},
		&model.Socket{Base: base("s1"), ProcessorID: "p1", TaskID: "t1", UserID: "u1", QueueID: "q1"},
	)

	report, err := remove(t, s, e, model.KindNetwork, "net")
	require.NoError(t, err)
	assert.Equal(t, []string{"sch"}, report.Deleted[model.KindScheduler])
	assert.Equal(t, []string{"n1"}, report.Deleted[model.KindNode])
	assert.Equal(t, []string{"q1"}, report.Deleted[model.KindQueue])
	// n1 and n2 lose their scheduler, s1 loses its queue.
	assert.Equal(t, int64(3), report.Nullified)

	require.NoError(t, s.WithTx(context.Background(), func(tx *store.Tx) error {
		got, err := tx.Get(context.Background(), model.KindSocket, "s1")
		require.NoError(t, err)
		assert.Empty(t, got.(*model.Socket).QueueID)

		got, err = tx.Get(context.Background(), model.KindNode, "n2")
		require.NoError(t, err)
		assert.Empty(t, got.(*model.Node).SchedulerID)
		return nil
	}))
}

func TestDelete_RemovesSubjectLogs(t *testing.T) {
	s, e := setup(t)
	seed(t, s)
	require.NoError(t, s.WithTx(context.Background(), func(tx *store.Tx) error {
		for _, id := range []string{"log1", "log2"} {
			err := tx.AppendLog(context.Background(), model.Log{
				ID: id, UserID: "u1", Created: testutil.Epoch, Text: "hello",
				Subject: model.Subject{Kind: model.KindSocket, ID: "s2"},
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	report, err := remove(t, s, e, model.KindProcessor, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Logs)
}

func TestDelete_CallTree(t *testing.T) {
	s, e := setup(t)
	seed(t, s)
	insert(t, s,
		&model.Call{Base: base("c1"), State: model.CallRunning, TaskID: "t2", SocketID: "s2", Started: testutil.Epoch},
		&model.Call{Base: base("c2"), State: model.CallCreated, TaskID: "t1", SocketID: "s1", ParentID: "c1", Started: testutil.Epoch},
		&model.Event{Base: base("e1"), Note: "received", CallID: "c1"},
	)

	report, err := remove(t, s, e, model.KindCall, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, report.Deleted[model.KindEvent])
	assert.Equal(t, int64(1), report.Nullified)
	assert.True(t, exists(t, s, model.KindCall, "c2"))
}

func TestCheckRefs(t *testing.T) {
	s, e := setup(t)
	seed(t, s)

	tests := []struct {
		name   string
		rec    model.Entity
		reason string
	}{
		{"ok", &model.Socket{Base: base("s9"), ProcessorID: "p1", TaskID: "t1", UserID: "u1"}, ""},
		{"required", &model.Socket{Base: base("s9"), ProcessorID: "p1", UserID: "u1"}, model.ReasonRequired},
		{"dangling", &model.Socket{Base: base("s9"), ProcessorID: "p1", TaskID: "nope", UserID: "u1"}, model.ReasonDanglingReference},
		{"second agent on node", &model.Agent{Base: base("a2"), NodeID: "n1"}, model.ReasonSingleParent},
		{"same agent again", &model.Agent{Base: base("a1"), NodeID: "n1"}, ""},
		{"deployment already bound", &model.Worker{Base: base("w2"), Backend: "b", Broker: "b", ProcessorID: "p1", AgentID: "a1", DeploymentID: "d1"}, model.ReasonSingleParent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.WithTx(context.Background(), func(tx *store.Tx) error {
				return e.CheckRefs(context.Background(), tx, tt.rec)
			})
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, model.IsValidation(err))
			assert.Equal(t, tt.reason, model.ReasonOf(err))
		})
	}
}

func TestAfterUpdate_ReleasesPreviousFile(t *testing.T) {
	s, e := setup(t)
	insert(t, s,
		&model.User{Base: base("u1"), Email: "u1@example.com"},
		&model.File{Base: base("f1"), UserID: "u1"},
		&model.File{Base: base("f2"), UserID: "u1"},
		&model.Flow{Base: base("fl1"), FileID: "f1"},
	)

	var report Report
	require.NoError(t, s.WithTx(context.Background(), func(tx *store.Tx) error {
		ctx := context.Background()
		got, err := tx.Get(ctx, model.KindFlow, "fl1")
		if err != nil {
			return err
		}
		prev := *got.(*model.Flow)
		next := got.(*model.Flow)
		next.FileID = "f2"
		if err := tx.Update(ctx, next); err != nil {
			return err
		}
		report, err = e.AfterUpdate(ctx, tx, &prev, next)
		return err
	}))

	assert.Equal(t, []string{"f1"}, report.Deleted[model.KindFile])
	assert.True(t, exists(t, s, model.KindFile, "f2"))
}

func TestNew_RejectsBadTable(t *testing.T) {
	_, err := New(model.NewRegistry(), WithRelations(
		[]Relation{{model.KindPlug, "missing_id", model.KindSocket, Cascade}}, nil))
	assert.Error(t, err)
}
