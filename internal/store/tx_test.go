package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/testutil"
)

func TestInsertGet_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	want := &model.Processor{
		Base:         base("p1", "etl"),
		Module:       "pipelines.etl",
		GitRepo:      "https://example.com/etl.git",
		Branch:       "main",
		Retries:      3,
		Concurrency:  2,
		RateLimit:    "60",
		UseContainer: true,
		UserID:       "u1",
	}
	insert(t, s, testUser("u1", "alice"), want)

	var got model.Entity
	inTx(t, s, func(tx *Tx) error {
		var err error
		got, err = tx.Get(ctx, model.KindProcessor, "p1")
		return err
	})

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("processor mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertGet_ColumnsWinOverAttrs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insert(t, s, testUser("u1", "alice"))

	inTx(t, s, func(tx *Tx) error {
		_, err := tx.tx.ExecContext(ctx, `UPDATE users SET email = 'new@example.com' WHERE id = 'u1'`)
		return err
	})

	inTx(t, s, func(tx *Tx) error {
		e, err := tx.Get(ctx, model.KindUser, "u1")
		require.NoError(t, err)
		u := e.(*model.User)
		assert.Equal(t, "new@example.com", u.Email)
		assert.Equal(t, "$2a$hash", u.PasswordHash)
		return nil
	})
}

func TestGet_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		_, err := tx.Get(context.Background(), model.KindNetwork, "missing")
		return err
	})
	assert.True(t, model.IsNotFound(err))
}

func TestInsert_RequiresID(t *testing.T) {
	s := createTestStore(t)

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.Insert(context.Background(), &model.Role{Base: base("", "admin")})
	})
	assert.True(t, model.IsValidation(err))
	assert.Equal(t, model.ReasonRequired, model.ReasonOf(err))
}

func TestInsert_ConstraintTranslation(t *testing.T) {
	tests := []struct {
		name   string
		entity model.Entity
		reason string
		field  string
	}{
		{"duplicate name", &model.Role{Base: base("r2", "admin")}, model.ReasonDuplicateName, "name"},
		{"duplicate email", &model.User{Base: base("u2", "bob"), Email: "alice@example.com"}, model.ReasonDuplicateValue, "email"},
		{"dangling reference", &model.Network{Base: base("n1", "net"), UserID: "ghost"}, model.ReasonDanglingReference, ""},
		{"missing required ref", &model.Network{Base: base("n2", "net2")}, model.ReasonRequired, "user_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := createTestStore(t)
			insert(t, s, testUser("u1", "alice"), &model.Role{Base: base("r1", "admin")})

			err := s.WithTx(context.Background(), func(tx *Tx) error {
				return tx.Insert(context.Background(), tt.entity)
			})
			require.Error(t, err)

			var me *model.Error
			require.True(t, errors.As(err, &me), "got %T: %v", err, err)
			assert.Equal(t, model.CodeValidation, me.Code)
			assert.Equal(t, tt.reason, me.Reason)
			if tt.field != "" {
				assert.Equal(t, tt.field, me.Field)
			}
		})
	}
}

func TestInsert_ArgumentNamesScopedToTask(t *testing.T) {
	s := createTestStore(t)
	insert(t, s,
		testUser("u1", "alice"),
		&model.Task{Base: base("t1", "a"), Module: "m", GitRepo: "g"},
		&model.Task{Base: base("t2", "b"), Module: "m", GitRepo: "g2"},
		&model.Argument{Base: base("a1", "x"), TaskID: "t1", UserID: "u1"},
		&model.Argument{Base: base("a2", "x"), TaskID: "t2", UserID: "u1"},
	)

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.Insert(context.Background(), &model.Argument{Base: base("a3", "x"), TaskID: "t1", UserID: "u1"})
	})
	assert.Equal(t, model.ReasonDuplicateName, model.ReasonOf(err))
}

func TestInsert_PlugCannotLoop(t *testing.T) {
	s := createTestStore(t)
	seedTopology(t, s)

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.Insert(context.Background(), &model.Plug{Base: base("loop", "loop"), Type: model.ResultTypeResult, ProcessorID: "p1", SourceID: "s1", TargetID: "s1", UserID: "u1"})
	})
	assert.Equal(t, model.ReasonInvalidValue, model.ReasonOf(err))
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	boom := errors.New("boom")

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		require.NoError(t, tx.Insert(context.Background(), &model.Role{Base: base("r1", "admin")}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	inTx(t, s, func(tx *Tx) error {
		ok, err := tx.Exists(context.Background(), model.KindRole, "r1")
		assert.False(t, ok)
		return err
	})
}

func TestUpdate_OptimisticConcurrency(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insert(t, s, &model.Settings{Base: base("st1", "theme"), Value: "dark"})

	read := func() *model.Settings {
		var out *model.Settings
		inTx(t, s, func(tx *Tx) error {
			e, err := tx.Get(ctx, model.KindSettings, "st1")
			if err != nil {
				return err
			}
			out = e.(*model.Settings)
			return nil
		})
		return out
	}

	first, stale := read(), read()

	first.Value = "light"
	inTx(t, s, func(tx *Tx) error { return tx.Update(ctx, first) })
	assert.True(t, first.LastUpdated.After(testutil.Epoch))

	stale.Value = "blue"
	err := s.WithTx(ctx, func(tx *Tx) error { return tx.Update(ctx, stale) })
	assert.True(t, model.IsConcurrencyConflict(err))
	assert.Equal(t, model.ReasonStaleWrite, model.ReasonOf(err))
	assert.Equal(t, testutil.Epoch, stale.LastUpdated, "failed update must not move the stamp")

	got := read()
	assert.Equal(t, "light", got.Value)
	assert.Equal(t, first.LastUpdated, got.LastUpdated)
	assert.Equal(t, testutil.Epoch, got.Created)
}

func TestUpdate_NotFound(t *testing.T) {
	s := createTestStore(t)

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.Update(context.Background(), &model.Role{Base: base("nope", "nope")})
	})
	assert.True(t, model.IsNotFound(err))
}

func TestUpdate_ConcurrentWritersNeverLoseUpdates(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insert(t, s, &model.Settings{Base: base("st1", "counter"), Value: "0"})

	const writers = 8
	var (
		wg             sync.WaitGroup
		mu             sync.Mutex
		applied, stale int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var snapshot *model.Settings
			if err := s.WithTx(ctx, func(tx *Tx) error {
				e, err := tx.Get(ctx, model.KindSettings, "st1")
				if err == nil {
					snapshot = e.(*model.Settings)
				}
				return err
			}); err != nil {
				t.Error(err)
				return
			}

			snapshot.Value = "x"
			err := s.WithTx(ctx, func(tx *Tx) error { return tx.Update(ctx, snapshot) })
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				applied++
			case model.IsConcurrencyConflict(err):
				stale++
			default:
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, applied, 1)
	assert.Equal(t, writers, applied+stale)
}

func TestDelete_RestrictedByReference(t *testing.T) {
	s := createTestStore(t)
	seedTopology(t, s)

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.Delete(context.Background(), model.KindUser, "u1")
	})
	assert.True(t, model.IsCascadeConflict(err))

	err = s.WithTx(context.Background(), func(tx *Tx) error {
		return tx.Delete(context.Background(), model.KindUser, "ghost")
	})
	assert.True(t, model.IsNotFound(err))
}

func TestClearRefAndChildIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	insert(t, s,
		testUser("u1", "alice"),
		&model.Network{Base: base("n1", "net"), UserID: "u1"},
		&model.Scheduler{Base: base("sc1", "sched"), NetworkID: "n1"},
		&model.Node{Base: base("nd1", "node-a"), SchedulerID: "sc1", NetworkID: "n1"},
		&model.Node{Base: base("nd2", "node-b"), SchedulerID: "sc1"},
	)

	inTx(t, s, func(tx *Tx) error {
		ids, err := tx.ChildIDs(ctx, model.KindNode, "scheduler_id", "sc1")
		require.NoError(t, err)
		assert.Equal(t, []string{"nd1", "nd2"}, ids)

		n, err := tx.ClearRef(ctx, model.KindNode, "scheduler_id", "sc1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		e, err := tx.Get(ctx, model.KindNode, "nd1")
		require.NoError(t, err)
		node := e.(*model.Node)
		assert.Empty(t, node.SchedulerID)
		assert.Equal(t, "n1", node.NetworkID)
		assert.True(t, node.LastUpdated.After(testutil.Epoch))
		return nil
	})
}

func TestChildIDs_RejectsUndeclaredColumn(t *testing.T) {
	s := createTestStore(t)

	err := s.WithTx(context.Background(), func(tx *Tx) error {
		_, err := tx.ChildIDs(context.Background(), model.KindNode, "1=1; DROP TABLE node; --", "x")
		return err
	})
	assert.Error(t, err)
}

func TestListBy_Ordering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedTopology(t, s)

	e1 := &model.Event{Base: base("e1", "received"), Note: "a", CallID: "c1"}
	e2 := &model.Event{Base: base("e2", "prerun"), Note: "b", CallID: "c1"}
	e2.Created = e1.Created.Add(1)
	insert(t, s,
		&model.Call{Base: base("c1", "call"), State: model.CallCreated, TaskID: "t1", SocketID: "s1"},
		e1, e2,
	)

	inTx(t, s, func(tx *Tx) error {
		newest, err := tx.ListBy(ctx, model.KindEvent, "call_id", "c1", NewestFirst)
		require.NoError(t, err)
		require.Len(t, newest, 2)
		assert.Equal(t, "e2", newest[0].Meta().ID)

		oldest, err := tx.ListBy(ctx, model.KindEvent, "call_id", "c1", OldestFirst)
		require.NoError(t, err)
		assert.Equal(t, "e1", oldest[0].Meta().ID)

		none, err := tx.ListBy(ctx, model.KindEvent, "call_id", "nope", NewestFirst)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
		return nil
	})
}

func TestGetByName_Normalises(t *testing.T) {
	s := createTestStore(t)
	insert(t, s, &model.Role{Base: base("r1", "café")})

	inTx(t, s, func(tx *Tx) error {
		e, err := tx.GetByName(context.Background(), model.KindRole, " café ")
		require.NoError(t, err)
		assert.Equal(t, "r1", e.Meta().ID)
		return nil
	})
}

func TestGetByName_RepeatingNames(t *testing.T) {
	s := createTestStore(t)

	inTx(t, s, func(tx *Tx) error {
		for _, kind := range []model.Kind{model.KindCall, model.KindEvent, model.KindVersion, model.KindArgument} {
			_, err := tx.GetByName(context.Background(), kind, "anything")
			assert.Equal(t, model.ReasonInvalidValue, model.ReasonOf(err), "kind %s", kind)
		}
		return nil
	})
}
