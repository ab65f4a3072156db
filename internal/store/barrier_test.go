package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/model"
)

func TestRecordDelivery(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedTopology(t, s)
	insert(t, s,
		&model.Socket{Base: base("s3", "side"), ProcessorID: "p1", TaskID: "t1", UserID: "u1"},
		&model.Plug{Base: base("plug2", "plug2"), Type: model.ResultTypeResult, ProcessorID: "p1", SourceID: "s3", TargetID: "s2", UserID: "u1"},
	)

	inTx(t, s, func(tx *Tx) error {
		a, err := tx.RecordDelivery(ctx, "plug1", "g1")
		require.NoError(t, err)
		assert.Equal(t, Arrival{SocketID: "s2", Generation: "g1", New: true, Delivered: 1, Inbound: 2, Wait: true}, a)

		again, err := tx.RecordDelivery(ctx, "plug1", "g1")
		require.NoError(t, err)
		assert.False(t, again.New)
		assert.Equal(t, 1, again.Delivered)

		a, err = tx.RecordDelivery(ctx, "plug2", "g1")
		require.NoError(t, err)
		assert.Equal(t, 2, a.Delivered)

		other, err := tx.RecordDelivery(ctx, "plug2", "g2")
		require.NoError(t, err)
		assert.Equal(t, 1, other.Delivered, "generations are independent")

		_, err = tx.RecordDelivery(ctx, "ghost", "g1")
		assert.True(t, model.IsNotFound(err))
		return nil
	})
}

func TestMarkFired_OnlyOnce(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedTopology(t, s)

	inTx(t, s, func(tx *Tx) error {
		first, err := tx.MarkFired(ctx, "s2", "g1")
		require.NoError(t, err)
		assert.True(t, first)

		second, err := tx.MarkFired(ctx, "s2", "g1")
		require.NoError(t, err)
		assert.False(t, second)
		return nil
	})
}

func TestBarrierRowsGoWithSocket(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedTopology(t, s)

	inTx(t, s, func(tx *Tx) error {
		_, err := tx.RecordDelivery(ctx, "plug1", "g1")
		require.NoError(t, err)
		_, err = tx.MarkFired(ctx, "s2", "g1")
		require.NoError(t, err)

		require.NoError(t, tx.Delete(ctx, model.KindPlug, "plug1"))
		require.NoError(t, tx.Delete(ctx, model.KindSocket, "s2"))

		var n int
		require.NoError(t, tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM deliveries`).Scan(&n))
		assert.Zero(t, n)
		require.NoError(t, tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM firings`).Scan(&n))
		assert.Zero(t, n)
		return nil
	})
}
