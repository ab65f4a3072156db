package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/testutil"
)

// createTestStore creates a new store in a temporary directory. The clock
// advances one millisecond per reading.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	clock := testutil.NewStepClock(testutil.Epoch, time.Millisecond)
	s, err := Open(path, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// inTx runs fn in a transaction and fails the test on error.
func inTx(t *testing.T, s *Store, fn func(tx *Tx) error) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), fn))
}

// base builds the shared fields of a test record owned by "root".
func base(id, name string) model.Base {
	return model.Base{
		ID:          id,
		Name:        name,
		Owner:       "root",
		Status:      model.DefaultStatus,
		Enabled:     true,
		Created:     testutil.Epoch,
		LastUpdated: testutil.Epoch,
	}
}

func insert(t *testing.T, s *Store, entities ...model.Entity) {
	t.Helper()
	inTx(t, s, func(tx *Tx) error {
		for _, e := range entities {
			if err := tx.Insert(context.Background(), e); err != nil {
				return err
			}
		}
		return nil
	})
}

func testUser(id, name string) *model.User {
	return &model.User{Base: base(id, name), Email: name + "@example.com", PasswordHash: "$2a$hash"}
}

// seedTopology inserts a user, processor, task, and two sockets wired by a
// plug: p1 -> s1 -(plug1)-> s2.
func seedTopology(t *testing.T, s *Store) {
	t.Helper()
	insert(t, s,
		testUser("u1", "alice"),
		&model.Processor{Base: base("p1", "proc"), Module: "mod", UserID: "u1"},
		&model.Task{Base: base("t1", "task"), Module: "mod", GitRepo: "repo"},
		&model.Socket{Base: base("s1", "in"), ProcessorID: "p1", TaskID: "t1", UserID: "u1"},
		&model.Socket{Base: base("s2", "out"), ProcessorID: "p1", TaskID: "t1", UserID: "u1", Wait: true},
		&model.Plug{Base: base("plug1", "plug1"), Type: model.ResultTypeResult, ProcessorID: "p1", SourceID: "s1", TargetID: "s2", UserID: "u1"},
	)
}
