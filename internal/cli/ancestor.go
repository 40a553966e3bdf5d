package cli

import (
	"github.com/spf13/cobra"
)

// AncestorOptions holds flags for the ancestor command.
type AncestorOptions struct {
	*RootOptions
	Lineage bool
}

// NewAncestorCommand creates the ancestor command.
func NewAncestorCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AncestorOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ancestor <entity-id>",
		Short: "Show the entity that invited an entity",
		Long: `Show the entity that invited an entity. The root is its own ancestor.

With --lineage, print the whole chain from the entity up to the root.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEntityID(args[0])
			if err != nil {
				return err
			}
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.Lineage {
				chain, err := a.resolver.Lineage(cmd.Context(), id)
				if err != nil {
					return a.out.Fail(err)
				}
				return a.out.Success(lineageView{Entities: chain})
			}

			info, err := a.resolver.ResolveAncestor(cmd.Context(), id)
			if err != nil {
				return a.out.Fail(err)
			}
			return a.out.Success(entityView(info))
		},
	}

	cmd.Flags().BoolVar(&opts.Lineage, "lineage", false, "print the full chain up to the root")
	return cmd
}
