package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/pathchain/internal/config"
)

// NewConfigCommand creates the config command, which prints the effective
// configuration after defaults, file, environment and flags are applied.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "config",
		Short:         "Print the effective configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).Success(cfg)
			}
			out, err := config.Marshal(cfg)
			if err != nil {
				return WrapExitError(ExitCommandError, "render config", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
