package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/model"
)

// NewRmCommand creates the rm command.
func NewRmCommand(rootOpts *RootOptions) *cobra.Command {
	var as, kind, name string

	cmd := &cobra.Command{
		Use:   "rm",
		Short: "Delete a record and its cascades",
		Long: `Delete a record by kind and name, acting as a user. Owned children are
deleted with it, optional references are cleared, and shared records whose
last holder disappears are released. Nothing is deleted if any step fails.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRm(rootOpts, as, kind, name, cmd)
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "acting user name or id (required)")
	cmd.Flags().StringVar(&kind, "kind", "", "record kind (required)")
	cmd.Flags().StringVar(&name, "name", "", "record name (required)")

	return cmd
}

func runRm(opts *RootOptions, as, kindName, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := openSession(opts, cmd)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	kind, err := s.store.Registry().ParseKind(kindName)
	if err != nil {
		return formatter.Fail(err)
	}
	ctx, err := s.actAs(cmd.Context(), as)
	if err != nil {
		return formatter.Fail(err)
	}
	rec, err := s.svc.Find(ctx, kind, name)
	if err != nil {
		return formatter.Fail(err)
	}
	report, err := s.svc.Delete(ctx, kind, rec.Meta().ID)
	if err != nil {
		return formatter.Fail(err)
	}

	if formatter.Format == "json" {
		return formatter.Success(report)
	}
	fmt.Fprintf(formatter.Writer, "✓ Deleted %s %s: %d record(s), %d reference(s) cleared, %d log(s)\n",
		kind, name, report.Count(), report.Nullified, report.Logs)
	kinds := make([]model.Kind, 0, len(report.Deleted))
	for k := range report.Deleted {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		fmt.Fprintf(formatter.Writer, "  %s: %d\n", k, len(report.Deleted[k]))
	}
	return nil
}
