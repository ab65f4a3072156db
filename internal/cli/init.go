package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/bootstrap"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database and seed identities",
		Long: `Create the database schema and seed it with one privilege per right
and the roles and users of a seed file. Seeding only runs on a database
without users.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(rootOpts, seedPath, cmd)
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed", "", "seed file (YAML, overrides config)")

	return cmd
}

func runInit(opts *RootOptions, seedPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := openSession(opts, cmd)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	if seedPath == "" {
		seedPath = s.cfg.Seed
	}
	if seedPath == "" {
		_ = formatter.Error(ErrCodeConfig, "no seed file: pass --seed or set seed in the config", nil)
		return NewExitError(ExitCommandError, ErrCodeConfig+": no seed file")
	}
	formatter.VerboseLog("Seeding %s from %s", s.cfg.Database, seedPath)

	seed, err := bootstrap.LoadSeed(seedPath)
	if err != nil {
		return formatter.Fail(err)
	}
	res, err := bootstrap.Apply(cmd.Context(), s.store, seed, bootstrap.WithLogger(s.logger))
	if errors.Is(err, bootstrap.ErrNotEmpty) {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "already initialised", err)
	}
	if err != nil {
		return formatter.Fail(err)
	}

	if formatter.Format == "json" {
		return formatter.Success(res)
	}
	fmt.Fprintf(formatter.Writer, "✓ Seeded %d privileges, %d roles, %d users (%s)\n",
		res.Privileges, res.Roles, len(res.Users), strings.Join(res.Users, ", "))
	return nil
}
