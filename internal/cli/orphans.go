package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/pathchain/internal/record"
)

// NewOrphansCommand creates the orphans command and its adopt subcommand.
func NewOrphansCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "List ledger entities missing from the projection",
		Long: `List consumed secrets whose consumer entity was minted in the ledger
but never reached the projection, usually because the registration
transaction failed after the mint.

Exit codes:
  0 - No orphans
  1 - Orphans found
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			orphans, err := a.coord.FindOrphans(cmd.Context())
			if err != nil {
				return a.out.Fail(err)
			}
			if err := a.out.Success(orphansView{Orphans: orphans}); err != nil {
				return err
			}
			if len(orphans) > 0 {
				return NewExitError(ExitFailure, "orphaned entities found")
			}
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "adopt <entity-address>",
		Short: "Mirror an orphaned ledger entity into the projection",
		Long: `Mirror an orphaned ledger entity into the projection so lineage
queries reach it. No credential is created.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _, err := record.ParseAddress(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid entity address", err)
			}
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			row, err := a.coord.AdoptOrphan(cmd.Context(), addr)
			if err != nil {
				return a.out.Fail(err)
			}
			return a.out.Success(adoptedView{ID: row.ID, Address: row.Address, AncestorID: row.AncestorID})
		},
	})

	return cmd
}
