package authz

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

// GrantSource loads the raw grant data of a user. *store.Tx implements it.
type GrantSource interface {
	Grants(ctx context.Context, userID string) (store.Grants, error)
}

// Resource names the class and, optionally, the instance acted upon.
type Resource struct {
	Kind model.Kind `json:"kind,omitempty"`
	ID   string     `json:"id,omitempty"`
}

// Request asks whether Actor may perform any one of Actions on Resource.
type Request struct {
	Actor     string
	ActorName string
	Actions   []model.Right
	Resource  Resource
}

// Decision is the outcome of an authorization request.
type Decision struct {
	Allowed bool        `json:"allowed"`
	Action  model.Right `json:"action,omitempty"`
	// Matched is the grant that covered Action: ALL or Action itself.
	Matched model.Right `json:"matched,omitempty"`
	// Reason is a model reason code when denied.
	Reason string `json:"reason,omitempty"`
}

// Authorizer runs the decision procedure. Construct one at startup and pass
// it to whatever needs it.
type Authorizer struct {
	evaluator Evaluator
	logger    *slog.Logger
}

// Option configures an Authorizer.
type Option func(*Authorizer)

// WithEvaluator installs an external policy evaluator.
func WithEvaluator(e Evaluator) Option {
	return func(a *Authorizer) { a.evaluator = e }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Authorizer) { a.logger = l }
}

// New creates an Authorizer.
func New(opts ...Option) *Authorizer {
	a := &Authorizer{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Effective applies union and revocation to raw grants. The result follows
// the enumeration order of model.Rights.
func Effective(g store.Grants) []model.Right {
	held := make(map[model.Right]bool, len(g.Direct)+len(g.Roles))
	for _, r := range g.Direct {
		held[r] = true
	}
	for _, r := range g.Roles {
		held[r] = true
	}
	for _, r := range g.Revoked {
		delete(held, r)
	}

	out := []model.Right{}
	for _, r := range model.Rights() {
		if held[r] {
			out = append(out, r)
		}
	}
	return out
}

// Decide evaluates req against the actor's current grants.
func (a *Authorizer) Decide(ctx context.Context, src GrantSource, req Request) (Decision, error) {
	if len(req.Actions) == 0 {
		return Decision{}, fmt.Errorf("authorize: no actions requested")
	}
	if req.Actor == "" {
		return Decision{Action: req.Actions[0], Reason: model.ReasonNoPrincipal}, nil
	}

	g, err := src.Grants(ctx, req.Actor)
	if err != nil {
		return Decision{}, fmt.Errorf("authorize: %w", err)
	}
	effective := Effective(g)

	d := match(effective, req.Actions)
	if !d.Allowed {
		a.logger.Debug("authorization denied", "actor", req.Actor, "actions", req.Actions, "kind", req.Resource.Kind, "id", req.Resource.ID)
		return d, nil
	}

	if a.evaluator != nil {
		ok, err := a.evaluator.Evaluate(ctx, Input{
			Actor:     req.Actor,
			ActorName: req.ActorName,
			Action:    d.Action,
			Resource:  req.Resource,
			Effective: effective,
		})
		if err != nil {
			return Decision{}, fmt.Errorf("authorize: policy: %w", err)
		}
		if !ok {
			a.logger.Debug("authorization vetoed by policy", "actor", req.Actor, "action", d.Action, "kind", req.Resource.Kind)
			return Decision{Action: d.Action, Reason: model.ReasonPolicy}, nil
		}
	}

	a.logger.Debug("authorization granted", "actor", req.Actor, "action", d.Action, "matched", d.Matched)
	return d, nil
}

// Authorize is Decide that turns a denial into an AUTHORIZATION_DENIED error.
func (a *Authorizer) Authorize(ctx context.Context, src GrantSource, req Request) (Decision, error) {
	d, err := a.Decide(ctx, src, req)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, model.NewDeniedError(d.Reason, req.Actor, d.Action, req.Resource.Kind, req.Resource.ID)
	}
	return d, nil
}

// match returns the first requested action covered by effective.
func match(effective []model.Right, actions []model.Right) Decision {
	all := slices.Contains(effective, model.RightAll)
	for _, action := range actions {
		if all {
			return Decision{Allowed: true, Action: action, Matched: model.RightAll}
		}
		if slices.Contains(effective, action) {
			return Decision{Allowed: true, Action: action, Matched: action}
		}
	}
	return Decision{Action: actions[0], Reason: model.ReasonNoGrant}
}
