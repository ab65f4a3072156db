package topology

import (
	"context"

	"github.com/roach88/lattice/internal/store"
)

// Delivery is the outcome of one plug delivering a value to its target
// socket for an execution generation.
type Delivery struct {
	SocketID   string `json:"socket_id"`
	Generation string `json:"generation"`
	// Fire is true when the target socket's task should be invoked now.
	Fire bool `json:"fire"`
	// First is true for the first firing of the socket in the generation.
	// Race sockets fire on every new delivery; only one of them is first.
	First bool `json:"first"`
	// Pending counts inbound plugs that have not delivered yet.
	Pending int `json:"pending"`
}

// Deliver records a delivery of plugID for generation and decides whether
// the target socket fires.
//
// A wait socket is a barrier: it fires exactly once per generation, when
// every plug currently targeting it has delivered. Any other socket fires
// on each new delivery. Repeated deliveries of the same plug never fire.
func Deliver(ctx context.Context, tx *store.Tx, plugID, generation string) (Delivery, error) {
	a, err := tx.RecordDelivery(ctx, plugID, generation)
	if err != nil {
		return Delivery{}, err
	}

	d := Delivery{
		SocketID:   a.SocketID,
		Generation: a.Generation,
		Pending:    max(a.Inbound-a.Delivered, 0),
	}
	if !ready(a) {
		return d, nil
	}

	first, err := tx.MarkFired(ctx, a.SocketID, generation)
	if err != nil {
		return Delivery{}, err
	}
	d.First = first
	// A barrier that already fired stays closed for the generation.
	d.Fire = first || !a.Wait
	return d, nil
}

func ready(a store.Arrival) bool {
	if !a.New {
		return false
	}
	if a.Wait {
		return a.Delivered >= a.Inbound
	}
	return true
}
