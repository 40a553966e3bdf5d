package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/pathchain/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen    string
	Bootstrap bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the registration API over HTTP",
		Long: `Serve the registration API over HTTP until interrupted.

Routes:
  POST /v1/register                 register with a secret
  POST /v1/login                    exchange a password for a token
  GET  /v1/secrets/{secret}         check a secret
  POST /v1/entities/{id}/secrets    issue a secret (bearer token of that entity)
  GET  /v1/entities/{id}/ancestor   resolve an entity's ancestor
  GET  /v1/entities/{id}/lineage    walk an entity's chain to the root
  GET  /healthz                     liveness`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if opts.Bootstrap {
				res, err := a.coord.Bootstrap(ctx)
				if err != nil {
					return a.out.Fail(err)
				}
				a.logger.Info("root ready", "root_id", res.Root.ID, "address", res.Root.Address,
					"created", res.Created, "unused_secrets", len(res.Secrets))
			}

			addr := a.cfg.HTTP.ListenAddr
			if opts.Listen != "" {
				addr = opts.Listen
			}
			srv := httpapi.New(a.coord, a.resolver, a.signer,
				httpapi.WithRateLimit(a.cfg.HTTP.RateLimit, a.cfg.HTTP.Burst),
				httpapi.WithLogger(a.logger),
			)
			if err := srv.ListenAndServe(ctx, addr, a.cfg.ReadHeaderTimeout(), shutdownTimeout); err != nil {
				return WrapExitError(ExitCommandError, "serve", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides http.listen_addr)")
	cmd.Flags().BoolVar(&opts.Bootstrap, "bootstrap", true, "ensure the root exists before serving")
	return cmd
}
