package store

import (
	"context"
	"fmt"
)

// Arrival is the barrier state of one (socket, generation) after a
// delivery was recorded.
type Arrival struct {
	SocketID   string
	Generation string
	// New is false when this plug had already delivered for the generation.
	New bool
	// Delivered counts distinct plugs that delivered for the generation.
	Delivered int
	// Inbound counts plugs currently targeting the socket.
	Inbound int
	// Wait is the socket's join mode.
	Wait bool
}

// RecordDelivery notes that plugID delivered for generation at its target
// socket. Repeating a delivery is a no-op reported through Arrival.New.
func (t *Tx) RecordDelivery(ctx context.Context, plugID, generation string) (Arrival, error) {
	a := Arrival{Generation: generation}

	err := t.tx.QueryRowContext(ctx, `
		SELECT p.target_id, s.wait FROM plug p JOIN socket s ON s.id = p.target_id WHERE p.id = ?
	`, plugID).Scan(&a.SocketID, &a.Wait)
	if err != nil {
		return Arrival{}, notFound(err, "plug", plugID)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO deliveries (socket_id, generation, plug_id, delivered)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, a.SocketID, generation, plugID, toNanos(t.now()))
	if err != nil {
		return Arrival{}, fmt.Errorf("record delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Arrival{}, fmt.Errorf("record delivery: %w", err)
	}
	a.New = n == 1

	// Only deliveries from plugs that still target the socket count.
	err = t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM deliveries d JOIN plug p ON p.id = d.plug_id AND p.target_id = d.socket_id
		WHERE d.socket_id = ? AND d.generation = ?
	`, a.SocketID, generation).Scan(&a.Delivered)
	if err != nil {
		return Arrival{}, fmt.Errorf("count deliveries: %w", err)
	}
	err = t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM plug WHERE target_id = ?`, a.SocketID).Scan(&a.Inbound)
	if err != nil {
		return Arrival{}, fmt.Errorf("count inbound plugs: %w", err)
	}
	return a, nil
}

// MarkFired records the firing of (socket, generation) and reports whether
// this call was the first to do so.
func (t *Tx) MarkFired(ctx context.Context, socketID, generation string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO firings (socket_id, generation, fired) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING
	`, socketID, generation, toNanos(t.now()))
	if err != nil {
		return false, fmt.Errorf("mark fired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark fired: %w", err)
	}
	return n == 1, nil
}
