package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/pathchain/internal/record"
)

// NewBootstrapCommand creates the bootstrap command.
func NewBootstrapCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the root entity if needed and show its unused secrets",
		Long: `Create the root entity if the ledger has none, mirror it into the
projection, and print the root's unused secrets.

Safe to run repeatedly: later runs print the same root and whatever root
secrets are still unused, so a lost first invitation can be recovered.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.coord.Bootstrap(cmd.Context())
			if err != nil {
				return a.out.Fail(err)
			}
			secrets := make([]record.Address, len(res.Secrets))
			for i, s := range res.Secrets {
				secrets[i] = s.Address
			}
			return a.out.Success(bootstrapView{
				RootID:      res.Root.ID,
				RootAddress: res.Root.Address,
				Created:     res.Created,
				Secrets:     secrets,
			})
		},
	}
}
