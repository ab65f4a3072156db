package authz

import (
	"context"

	"github.com/roach88/lattice/internal/model"
)

// Input is what an external evaluator sees: the actor, the action that a
// grant covered, the resource, and the actor's effective grant set.
type Input struct {
	Actor     string
	ActorName string
	Action    model.Right
	Resource  Resource
	Effective []model.Right
}

// Evaluator is an external policy decision function. It owns rule
// composition; the authorizer owns grant data.
type Evaluator interface {
	Evaluate(ctx context.Context, in Input) (bool, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, in Input) (bool, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, in Input) (bool, error) {
	return f(ctx, in)
}
