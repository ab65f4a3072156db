package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/authz"
	"github.com/roach88/lattice/internal/config"
	"github.com/roach88/lattice/internal/core"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/principal"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/telemetry"
)

// session is an open database with a service over it, built from the
// configuration and global flags.
type session struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *store.Store
	svc     *core.Service
	metrics *prometheus.Registry
	verbose bool
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func openSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}
	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())

	azOpts := []authz.Option{authz.WithLogger(logger)}
	if cfg.Policy != "" {
		policy, err := authz.LoadPolicy(cfg.Policy)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, ErrCodeConfig, err)
		}
		azOpts = append(azOpts, authz.WithEvaluator(policy))
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeDatabase, err)
	}

	reg := prometheus.NewRegistry()
	m, err := telemetry.New(reg)
	if err != nil {
		st.Close()
		return nil, err
	}
	svc, err := core.New(st, authz.New(azOpts...),
		core.WithLogger(logger),
		core.WithMetrics(m),
		core.WithLeaseTTL(cfg.Checkpoints.LeaseTTL),
	)
	if err != nil {
		st.Close()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, store: st, svc: svc, metrics: reg, verbose: opts.Verbose}, nil
}

func (s *session) Close() error {
	if s.verbose {
		if err := telemetry.LogSummary(s.logger, s.metrics); err != nil {
			s.logger.Warn("metrics summary failed", "error", err)
		}
	}
	return s.store.Close()
}

// actAs returns a context acting as the user with the given name or id.
func (s *session) actAs(ctx context.Context, user string) (context.Context, error) {
	if user == "" {
		return nil, NewExitError(ExitCommandError, "--as is required")
	}
	var id string
	err := s.store.WithTx(ctx, func(tx *store.Tx) error {
		rec, err := tx.GetByName(ctx, model.KindUser, user)
		if model.IsNotFound(err) {
			rec, err = tx.Get(ctx, model.KindUser, user)
		}
		if err != nil {
			return err
		}
		id = rec.Meta().ID
		return nil
	})
	if err != nil {
		if model.IsNotFound(err) {
			return nil, WrapExitError(ExitCommandError, ErrCodeNotFound, fmt.Errorf("unknown user %q", user))
		}
		return nil, err
	}
	return principal.WithActor(ctx, id), nil
}
