// Package principal carries the acting user through a context.
package principal

import "context"

type ctxKey struct{}

// WithActor returns a context whose acting principal is userID.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// From returns the acting principal, or false if none is set.
func From(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
