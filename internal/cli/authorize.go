package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lattice/internal/authz"
	"github.com/roach88/lattice/internal/model"
)

// DecisionOutput is the result of the authorize command.
type DecisionOutput struct {
	User    string      `json:"user"`
	Allowed bool        `json:"allowed"`
	Action  model.Right `json:"action"`
	Matched model.Right `json:"matched,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Kind    model.Kind  `json:"kind,omitempty"`
	ID      string      `json:"id,omitempty"`
}

// NewAuthorizeCommand creates the authorize command.
func NewAuthorizeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		user    string
		actions []string
		kind    string
		id      string
	)

	cmd := &cobra.Command{
		Use:   "authorize",
		Short: "Check whether a user may perform an action",
		Long: `Evaluate the authorization decision for a user: the effective grant set
(direct and role privileges minus revoked ones) and the configured policy.
Repeat --action to accept any of several rights. Exits 1 when denied.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthorize(rootOpts, user, actions, kind, id, cmd)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user name or id (required)")
	cmd.Flags().StringArrayVar(&actions, "action", nil, "right to check (repeatable, required)")
	cmd.Flags().StringVar(&kind, "kind", "", "resource kind")
	cmd.Flags().StringVar(&id, "id", "", "resource id")

	return cmd
}

func runAuthorize(opts *RootOptions, user string, actionNames []string, kindName, id string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	if len(actionNames) == 0 {
		_ = formatter.Error(ErrCodeGeneric, "--action is required", nil)
		return NewExitError(ExitCommandError, "--action is required")
	}
	actions := make([]model.Right, 0, len(actionNames))
	for _, n := range actionNames {
		r, err := model.ParseRight(n)
		if err != nil {
			return formatter.Fail(err)
		}
		actions = append(actions, r)
	}

	s, err := openSession(opts, cmd)
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	res := authz.Resource{ID: id}
	if kindName != "" {
		if res.Kind, err = s.store.Registry().ParseKind(kindName); err != nil {
			return formatter.Fail(err)
		}
	}
	ctx, err := s.actAs(cmd.Context(), user)
	if err != nil {
		return formatter.Fail(err)
	}
	d, err := s.svc.Authorize(ctx, res, actions...)
	if err != nil {
		return formatter.Fail(err)
	}

	out := DecisionOutput{User: user, Allowed: d.Allowed, Action: d.Action, Matched: d.Matched, Reason: d.Reason, Kind: res.Kind, ID: res.ID}
	if formatter.Format == "json" {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		target := "any resource"
		if res.Kind != "" {
			target = strings.TrimSpace(fmt.Sprintf("%s %s", res.Kind, res.ID))
		}
		if d.Allowed {
			fmt.Fprintf(formatter.Writer, "✓ %s may %s on %s (granted by %s)\n", user, d.Action, target, d.Matched)
		} else {
			fmt.Fprintf(formatter.Writer, "✗ %s may not %s on %s (%s)\n", user, joinRights(actions), target, d.Reason)
		}
	}
	if !d.Allowed {
		return NewExitError(ExitFailure, "denied: "+d.Reason)
	}
	return nil
}

func joinRights(rights []model.Right) string {
	parts := make([]string, len(rights))
	for i, r := range rights {
		parts[i] = string(r)
	}
	return strings.Join(parts, "|")
}
