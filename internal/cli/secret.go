package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewCheckSecretCommand creates the check-secret command.
func NewCheckSecretCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-secret <secret>",
		Short: "Report whether a secret exists and is unused",
		Long: `Report whether a secret exists and is still unused. Read-only.

Malformed and unknown secrets are reported as invalid rather than as errors.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			status, err := a.coord.CheckSecret(cmd.Context(), args[0])
			if err != nil {
				return a.out.Fail(err)
			}
			return a.out.Success(secretView(status))
		},
	}
}

// NewIssueSecretCommand creates the issue-secret command.
func NewIssueSecretCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "issue-secret <entity-id>",
		Short:         "Issue a new invitation secret authored by an entity",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntityID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			row, err := a.coord.IssueSecret(cmd.Context(), id)
			if err != nil {
				return a.out.Fail(err)
			}
			return a.out.Success(issuedView{Address: row.Address, OwnerID: row.OwnerID})
		},
	}
}

func parseEntityID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, "entity id must be a positive integer, got "+strconv.Quote(s))
	}
	return id, nil
}
