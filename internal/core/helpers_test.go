package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/lattice/internal/authz"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/principal"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/telemetry"
	"github.com/roach88/lattice/internal/testutil"
)

type fixture struct {
	svc     *Service
	store   *store.Store
	metrics *prometheus.Registry
	// root acts as the "root" user, who holds ALL.
	root context.Context
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := testutil.NewStepClock(testutil.Epoch, time.Millisecond)
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	require.NoError(t, st.WithTx(ctx, func(tx *store.Tx) error {
		b := model.Base{Owner: "root", Status: model.DefaultStatus, Enabled: true, Created: testutil.Epoch, LastUpdated: testutil.Epoch}
		root := &model.User{Base: b, Email: "root@localhost"}
		root.ID, root.Name = "root", "root"
		all := &model.Privilege{Base: b, Right: model.RightAll}
		all.ID, all.Name = "priv-all", "ALL"
		if err := tx.Insert(ctx, root); err != nil {
			return err
		}
		if err := tx.Insert(ctx, all); err != nil {
			return err
		}
		_, err := tx.Link(ctx, store.UserPrivileges, "root", "priv-all")
		return err
	}))

	reg := prometheus.NewRegistry()
	m, err := telemetry.New(reg)
	require.NoError(t, err)

	logger := testutil.DiscardLogger()
	base := []Option{
		WithLogger(logger),
		WithIDGenerator(testutil.NewSequenceIDs("id")),
		WithTokenGenerator(testutil.NewSequenceIDs("tok")),
		WithBcryptCost(bcrypt.MinCost),
		WithMetrics(m),
	}
	svc, err := New(st, authz.New(authz.WithLogger(logger)), append(base, opts...)...)
	require.NoError(t, err)

	return &fixture{svc: svc, store: st, metrics: reg, root: principal.WithActor(ctx, "root")}
}

// user creates a user holding rights directly and returns its id and a
// context acting as it.
func (f *fixture) user(t *testing.T, name string, rights ...model.Right) (string, context.Context) {
	t.Helper()
	u := &model.User{Base: model.Base{Name: name}, Email: name + "@example.com"}
	require.NoError(t, f.svc.CreateUser(f.root, u, name+"-password"))
	for _, r := range rights {
		require.NoError(t, f.svc.GrantPrivilege(f.root, u.ID, r))
	}
	return u.ID, principal.WithActor(context.Background(), u.ID)
}

// topology creates a processor with two sockets on one task, plugged
// s1 -> s2, all owned by root.
func (f *fixture) topology(t *testing.T) (proc *model.Processor, s1, s2 *model.Socket, plug *model.Plug) {
	t.Helper()
	proc = &model.Processor{Base: model.Base{Name: "proc"}, Module: "pkg.mod", GitRepo: "git@host:repo", UserID: "root"}
	require.NoError(t, f.svc.Create(f.root, proc))
	task := &model.Task{Base: model.Base{Name: "task"}, Module: "pkg.mod", GitRepo: "git@host:repo"}
	require.NoError(t, f.svc.Create(f.root, task))
	s1 = &model.Socket{Base: model.Base{Name: "s1"}, ProcessorID: proc.ID, TaskID: task.ID, UserID: "root"}
	require.NoError(t, f.svc.Create(f.root, s1))
	s2 = &model.Socket{Base: model.Base{Name: "s2"}, ProcessorID: proc.ID, TaskID: task.ID, UserID: "root", Wait: true}
	require.NoError(t, f.svc.Create(f.root, s2))
	plug = &model.Plug{Base: model.Base{Name: "plug"}, ProcessorID: proc.ID, SourceID: s1.ID, TargetID: s2.ID, UserID: "root"}
	require.NoError(t, f.svc.Create(f.root, plug))
	return proc, s1, s2, plug
}

// counter returns the value of the counter name whose labels include the
// given label/value pairs, or zero when no such series exists.
func (f *fixture) counter(t *testing.T, name string, labels ...string) float64 {
	t.Helper()
	families, err := f.metrics.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	series:
		for _, m := range mf.GetMetric() {
			got := map[string]string{}
			for _, lp := range m.GetLabel() {
				got[lp.GetName()] = lp.GetValue()
			}
			for i := 0; i+1 < len(labels); i += 2 {
				if got[labels[i]] != labels[i+1] {
					continue series
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}
