package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// DueOutput describes one due checkpoint.
type DueOutput struct {
	Ref     string    `json:"ref"`
	NextRun time.Time `json:"next_run"`
	Trigger string    `json:"trigger,omitempty"`
	Runs    int64     `json:"runs"`
	LastRun time.Time `json:"last_run,omitzero"`
	Corrupt bool      `json:"corrupt,omitempty"`
}

// NewDueCommand creates the due command.
func NewDueCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		as    string
		limit int
	)

	cmd := &cobra.Command{
		Use:           "due",
		Short:         "List scheduler checkpoints due now",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDue(rootOpts, as, limit, cmd)
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "acting user name or id (required)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of checkpoints (0 = all)")

	return cmd
}

func runDue(opts *RootOptions, as string, limit int, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	s, err := openSession(opts, cmd)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	ctx, err := s.actAs(cmd.Context(), as)
	if err != nil {
		return formatter.Fail(err)
	}
	due, err := s.svc.DueCheckpoints(ctx, time.Now(), limit)
	if err != nil {
		return formatter.Fail(err)
	}

	out := make([]DueOutput, 0, len(due))
	for _, d := range due {
		out = append(out, DueOutput{
			Ref:     d.Checkpoint.Ref.String(),
			NextRun: d.Checkpoint.NextRun,
			Trigger: d.State.Trigger,
			Runs:    d.State.Runs,
			LastRun: d.State.LastRun,
			Corrupt: d.Corrupt,
		})
	}

	if formatter.Format == "json" {
		return formatter.Success(out)
	}
	if len(out) == 0 {
		fmt.Fprintln(formatter.Writer, "No checkpoints due")
		return nil
	}
	for _, d := range out {
		line := fmt.Sprintf("%s\tnext=%s\truns=%d", d.Ref, d.NextRun.Format(time.RFC3339), d.Runs)
		if d.Corrupt {
			line += "\tcorrupt"
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	return nil
}
