// Package core is the single entry point to the lattice metadata core.
//
// Every operation runs in one store transaction in the same order:
// resolve the acting principal, authorize, validate, mutate, apply cascade
// rules, commit. Any failure rolls the whole transaction back, so a denied
// or conflicting operation leaves no partial effect.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/lattice/internal/authz"
	"github.com/roach88/lattice/internal/integrity"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/principal"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/telemetry"
)

// DefaultLeaseTTL is how long a checkpoint claim holds its lease.
const DefaultLeaseTTL = 30 * time.Second

// Service exposes the store, topology, ledger and identity operations
// behind authorization and integrity checks.
//
// Thread-safety: Service is safe for concurrent use. The store serialises
// transactions.
type Service struct {
	store      *store.Store
	authz      *authz.Authorizer
	enforcer   *integrity.Enforcer
	ids        model.IDGenerator
	tokens     model.IDGenerator
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	leaseTTL   time.Duration
	bcryptCost int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithIDGenerator sets the generator of record ids. Defaults to UUIDv7.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithTokenGenerator sets the generator of login tokens. Defaults to
// random UUIDs.
func WithTokenGenerator(g model.IDGenerator) Option {
	return func(s *Service) { s.tokens = g }
}

// WithMetrics records operations on m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLeaseTTL sets the checkpoint lease duration.
func WithLeaseTTL(d time.Duration) Option {
	return func(s *Service) { s.leaseTTL = d }
}

// WithBcryptCost sets the password hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithEnforcer replaces the default integrity enforcer.
func WithEnforcer(e *integrity.Enforcer) Option {
	return func(s *Service) { s.enforcer = e }
}

// New creates a Service over st, authorizing with az.
func New(st *store.Store, az *authz.Authorizer, opts ...Option) (*Service, error) {
	s := &Service{
		store:      st,
		authz:      az,
		ids:        model.UUIDv7Generator{},
		tokens:     randomTokens{},
		logger:     slog.Default(),
		leaseTTL:   DefaultLeaseTTL,
		bcryptCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.enforcer == nil {
		e, err := integrity.New(st.Registry(), integrity.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.enforcer = e
	}
	if s.leaseTTL <= 0 {
		return nil, fmt.Errorf("core: lease ttl must be positive, got %s", s.leaseTTL)
	}
	return s, nil
}

// txn is the state shared by the steps of one operation.
type txn struct {
	tx    *store.Tx
	actor string
}

// run resolves the actor and executes fn in one transaction.
func (s *Service) run(ctx context.Context, fn func(o *txn) error) error {
	actor, ok := principal.From(ctx)
	if !ok {
		s.metrics.Decision(false)
		return model.NewDeniedError(model.ReasonNoPrincipal, "", "", "", "")
	}
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		return fn(&txn{tx: tx, actor: actor})
	})
	s.observe(err)
	return err
}

func (s *Service) observe(err error) {
	switch {
	case err == nil:
	case model.IsConcurrencyConflict(err), model.IsCascadeConflict(err):
		s.metrics.Conflict(model.ReasonOf(err))
	}
}

// authorize checks that the actor holds any of actions on res.
func (s *Service) authorize(ctx context.Context, o *txn, res authz.Resource, actions ...model.Right) error {
	req := authz.Request{Actor: o.actor, Actions: actions, Resource: res}
	if rec, err := o.tx.Get(ctx, model.KindUser, o.actor); err == nil {
		req.ActorName = rec.Meta().Name
	}
	d, err := s.authz.Authorize(ctx, o.tx, req)
	if err != nil && !model.IsDenied(err) {
		return err
	}
	s.metrics.Decision(d.Allowed)
	return err
}

func (s *Service) authorizeOp(ctx context.Context, o *txn, action model.Op, kind model.Kind, id string) error {
	return s.authorize(ctx, o, authz.Resource{Kind: kind, ID: id}, model.ActionsFor(action, kind)...)
}

// Authorize reports whether the acting principal may perform any of
// actions on res. A denial is a Decision, not an error.
func (s *Service) Authorize(ctx context.Context, res authz.Resource, actions ...model.Right) (authz.Decision, error) {
	var d authz.Decision
	err := s.run(ctx, func(o *txn) error {
		req := authz.Request{Actor: o.actor, Actions: actions, Resource: res}
		if rec, err := o.tx.Get(ctx, model.KindUser, o.actor); err == nil {
			req.ActorName = rec.Meta().Name
		}
		var err error
		d, err = s.authz.Decide(ctx, o.tx, req)
		if err == nil {
			s.metrics.Decision(d.Allowed)
		}
		return err
	})
	return d, err
}
