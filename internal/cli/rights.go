package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/model"
)

// NewRightsCommand creates the rights command.
func NewRightsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rights",
		Short:         "List the closed enumeration of rights",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := newFormatter(rootOpts, cmd)
			rights := model.Rights()
			if formatter.Format == "json" {
				return formatter.Success(rights)
			}
			for _, r := range rights {
				fmt.Fprintln(formatter.Writer, r)
			}
			return nil
		},
	}
}
