package core

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/principal"
)

func TestCreate_AppliesDefaults(t *testing.T) {
	f := newFixture(t)

	p := &model.Processor{Base: model.Base{Name: "  ingest  "}, Module: "pkg.ingest", UserID: "root"}
	require.NoError(t, f.svc.Create(f.root, p))

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "ingest", p.Name)
	assert.Equal(t, "root", p.Owner)
	assert.Equal(t, model.DefaultStatus, p.Status)
	assert.Equal(t, p.Created, p.LastUpdated)
	assert.Equal(t, "main", p.Branch)

	got, err := f.svc.Get(f.root, model.KindProcessor, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "pkg.ingest", got.(*model.Processor).Module)

	found, err := f.svc.Find(f.root, model.KindProcessor, "ingest")
	require.NoError(t, err)
	assert.Equal(t, p.ID, found.Meta().ID)
}

func TestCreate_RequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Create(context.Background(), &model.Role{Base: model.Base{Name: "r"}})
	require.Error(t, err)
	assert.True(t, model.IsDenied(err))
	assert.Equal(t, model.ReasonNoPrincipal, model.ReasonOf(err))
}

func TestCreate_DeniedLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	_, reader := f.user(t, "reader", model.RightRead)

	err := f.svc.Create(reader, &model.Role{Base: model.Base{Name: "ops"}})
	require.Error(t, err)
	assert.True(t, model.IsDenied(err))

	roles, err := f.svc.List(f.root, model.KindRole)
	require.NoError(t, err)
	assert.Empty(t, roles)
}

func TestCreate_KindSpecificRight(t *testing.T) {
	f := newFixture(t)
	_, ctx := f.user(t, "netadmin", "ADD_NETWORK")

	require.NoError(t, f.svc.Create(ctx, &model.Network{Base: model.Base{Name: "net"}, UserID: "root"}))
	err := f.svc.Create(ctx, &model.Role{Base: model.Base{Name: "r"}})
	assert.True(t, model.IsDenied(err))
}

func TestCreate_ValidationErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		e      model.Entity
		reason string
	}{
		{"missing name", &model.Role{}, model.ReasonRequired},
		{"bad enum", &model.Scheduler{Base: model.Base{Name: "s"}, Strategy: "RANDOM"}, model.ReasonInvalidEnum},
		{"missing ref", &model.Network{Base: model.Base{Name: "n"}}, model.ReasonRequired},
		{"dangling ref", &model.Network{Base: model.Base{Name: "n"}, UserID: "ghost"}, model.ReasonDanglingReference},
		{"bad right", &model.Privilege{Base: model.Base{Name: "p"}, Right: "FLY"}, model.ReasonInvalidEnum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.svc.Create(f.root, tt.e)
			require.Error(t, err)
			assert.True(t, model.IsValidation(err), "got %v", err)
			assert.Equal(t, tt.reason, model.ReasonOf(err))
		})
	}
}

func TestCreate_PlugLoopRejected(t *testing.T) {
	f := newFixture(t)
	proc, s1, _, _ := f.topology(t)
	err := f.svc.Create(f.root, &model.Plug{Base: model.Base{Name: "loop"}, ProcessorID: proc.ID, SourceID: s1.ID, TargetID: s1.ID, UserID: "root"})
	assert.Equal(t, model.ReasonInvalidValue, model.ReasonOf(err))
}

func TestCreate_ConcurrentSameName(t *testing.T) {
	f := newFixture(t)

	const n = 2
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.svc.Create(f.root, &model.Role{Base: model.Base{Name: "editor"}})
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case model.ReasonOf(err) == model.ReasonDuplicateName:
			dup++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)

	roles, err := f.svc.List(f.root, model.KindRole)
	require.NoError(t, err)
	assert.Len(t, roles, 1)
}

func TestCreate_NormalisedNamesCollide(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Create(f.root, &model.Role{Base: model.Base{Name: "caf\u00e9"}}))
	err := f.svc.Create(f.root, &model.Role{Base: model.Base{Name: "cafe\u0301"}})
	assert.Equal(t, model.ReasonDuplicateName, model.ReasonOf(err))
}

func TestCreate_OwnerOverrideNeedsAll(t *testing.T) {
	f := newFixture(t)
	aliceID, alice := f.user(t, "alice", model.RightCreate)

	err := f.svc.Create(alice, &model.Role{Base: model.Base{Name: "r1", Owner: "root"}})
	assert.True(t, model.IsDenied(err))

	r := &model.Role{Base: model.Base{Name: "r2", Owner: aliceID}}
	require.NoError(t, f.svc.Create(f.root, r))
	assert.Equal(t, aliceID, r.Owner)

	err = f.svc.Create(f.root, &model.Role{Base: model.Base{Name: "r3", Owner: "ghost"}})
	assert.Equal(t, model.ReasonDanglingReference, model.ReasonOf(err))
}

func TestUpdate_OptimisticConcurrency(t *testing.T) {
	f := newFixture(t)
	r := &model.Role{Base: model.Base{Name: "editor"}}
	require.NoError(t, f.svc.Create(f.root, r))

	a, err := f.svc.Get(f.root, model.KindRole, r.ID)
	require.NoError(t, err)
	b, err := f.svc.Get(f.root, model.KindRole, r.ID)
	require.NoError(t, err)

	a.Meta().Status = "first"
	require.NoError(t, f.svc.Update(f.root, a))
	assert.True(t, a.Meta().LastUpdated.After(b.Meta().LastUpdated))

	b.Meta().Status = "second"
	err = f.svc.Update(f.root, b)
	require.Error(t, err)
	assert.True(t, model.IsConcurrencyConflict(err))
	assert.Equal(t, 1.0, f.counter(t, "lattice_conflicts_total", "reason", model.ReasonStaleWrite))

	got, err := f.svc.Get(f.root, model.KindRole, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Meta().Status)
}

func TestUpdate_Rejections(t *testing.T) {
	f := newFixture(t)
	aliceID, _ := f.user(t, "alice")
	r := &model.Role{Base: model.Base{Name: "editor"}}
	require.NoError(t, f.svc.Create(f.root, r))

	r.Owner = aliceID
	err := f.svc.Update(f.root, r)
	assert.Equal(t, model.ReasonOwnerChange, model.ReasonOf(err))

	missing := &model.Role{Base: model.Base{ID: "nope", Name: "nope", Owner: "root"}}
	assert.True(t, model.IsNotFound(f.svc.Update(f.root, missing)))
}

func TestUpdate_KeepsPasswordHash(t *testing.T) {
	f := newFixture(t)
	id, _ := f.user(t, "alice")

	rec, err := f.svc.Get(f.root, model.KindUser, id)
	require.NoError(t, err)
	u := rec.(*model.User)
	hash := u.PasswordHash
	require.NotEmpty(t, hash)

	u.PasswordHash = ""
	u.Email = "alice@new.example.com"
	require.NoError(t, f.svc.Update(f.root, u))

	rec, err = f.svc.Get(f.root, model.KindUser, id)
	require.NoError(t, err)
	assert.Equal(t, hash, rec.(*model.User).PasswordHash)
	assert.Equal(t, "alice@new.example.com", rec.(*model.User).Email)
}

func TestDelete_ProcessorCascade(t *testing.T) {
	f := newFixture(t)
	proc, _, _, _ := f.topology(t)
	require.NoError(t, f.svc.Create(f.root, &model.Deployment{Base: model.Base{Name: "dep"}, Hostname: "h", CPUs: 2, ProcessorID: proc.ID}))

	report, err := f.svc.Delete(f.root, model.KindProcessor, proc.ID)
	require.NoError(t, err)
	assert.Len(t, report.Deleted[model.KindSocket], 2)
	assert.Len(t, report.Deleted[model.KindPlug], 1)
	assert.Len(t, report.Deleted[model.KindDeployment], 1)
	assert.Len(t, report.Deleted[model.KindTask], 1)

	for _, kind := range []model.Kind{model.KindSocket, model.KindPlug, model.KindDeployment, model.KindTask} {
		recs, err := f.svc.List(f.root, kind)
		require.NoError(t, err)
		assert.Empty(t, recs, "%s left behind", kind)
	}
	assert.Equal(t, 2.0, f.counter(t, "lattice_cascade_deleted_total", "kind", "socket"))
}

func TestDelete_OwnerRestricts(t *testing.T) {
	f := newFixture(t)
	f.topology(t)

	_, err := f.svc.Delete(f.root, model.KindUser, "root")
	require.Error(t, err)
	assert.True(t, model.IsCascadeConflict(err))
}

func TestDelete_UserOwningRecordsRestricted(t *testing.T) {
	f := newFixture(t)
	bob, ctx := f.user(t, "bob", model.RightAll)
	task := &model.Task{Base: model.Base{Name: "sync"}, Module: "sync", GitRepo: "git@example.com:sync"}
	require.NoError(t, f.svc.Create(ctx, task))

	_, err := f.svc.Delete(f.root, model.KindUser, bob)
	require.Error(t, err)
	assert.True(t, model.IsCascadeConflict(err))

	got, err := f.svc.Get(f.root, model.KindTask, task.ID)
	require.NoError(t, err)
	assert.Equal(t, bob, got.Meta().Owner)
	_, err = f.svc.Get(f.root, model.KindUser, bob)
	require.NoError(t, err)

	require.NoError(t, f.svc.TransferOwnership(f.root, model.KindTask, task.ID, "root"))
	report, err := f.svc.Delete(f.root, model.KindUser, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{bob}, report.Deleted[model.KindUser])
}

func TestDelete_UserKeepsAuthoredLogs(t *testing.T) {
	f := newFixture(t)
	bob, ctx := f.user(t, "bob", model.RightAll)
	task := &model.Task{Base: model.Base{Name: "sync"}, Module: "sync", GitRepo: "git@example.com:sync"}
	require.NoError(t, f.svc.Create(f.root, task))
	subject := model.SubjectOf(task)

	_, err := f.svc.AppendLog(ctx, subject, "retried by hand", "operator", false)
	require.NoError(t, err)

	report, err := f.svc.Delete(f.root, model.KindUser, bob)
	require.NoError(t, err)
	assert.Zero(t, report.Logs)

	logs, err := f.svc.Logs(f.root, subject)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "retried by hand", logs[0].Text)
	assert.Empty(t, logs[0].UserID)
}

func TestDelete_Denied(t *testing.T) {
	f := newFixture(t)
	proc, _, _, _ := f.topology(t)
	_, ctx := f.user(t, "viewer", model.RightRead, "DELETE_SOCKET")

	_, err := f.svc.Delete(ctx, model.KindProcessor, proc.ID)
	assert.True(t, model.IsDenied(err))

	_, err = f.svc.Get(ctx, model.KindProcessor, proc.ID)
	assert.NoError(t, err)
}

func TestTransferOwnership(t *testing.T) {
	f := newFixture(t)
	aliceID, alice := f.user(t, "alice", model.RightUpdate, model.RightRead)
	r := &model.Role{Base: model.Base{Name: "editor"}}
	require.NoError(t, f.svc.Create(f.root, r))

	err := f.svc.TransferOwnership(alice, model.KindRole, r.ID, aliceID)
	assert.True(t, model.IsDenied(err), "UPDATE is not enough to transfer ownership")

	require.NoError(t, f.svc.TransferOwnership(f.root, model.KindRole, r.ID, aliceID))
	got, err := f.svc.Get(alice, model.KindRole, r.ID)
	require.NoError(t, err)
	assert.Equal(t, aliceID, got.Meta().Owner)

	logs, err := f.svc.Logs(alice, model.Subject{Kind: model.KindRole, ID: r.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "owner changed from root to "+aliceID, logs[0].Text)
	assert.Equal(t, "root", logs[0].UserID)

	err = f.svc.TransferOwnership(f.root, model.KindRole, r.ID, "ghost")
	assert.Equal(t, model.ReasonDanglingReference, model.ReasonOf(err))
}

func TestUnknownActorIsDenied(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.List(principal.WithActor(context.Background(), "stranger"), model.KindRole)
	assert.True(t, model.IsDenied(err))
}
