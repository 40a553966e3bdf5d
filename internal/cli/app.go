package cli

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/pathchain/internal/config"
	"github.com/roach88/pathchain/internal/credential"
	"github.com/roach88/pathchain/internal/ledger"
	"github.com/roach88/pathchain/internal/lineage"
	"github.com/roach88/pathchain/internal/objectstore"
	"github.com/roach88/pathchain/internal/projection"
	"github.com/roach88/pathchain/internal/registration"
)

// app is the fully wired core for one command invocation.
type app struct {
	cfg      config.Config
	logger   *slog.Logger
	store    *objectstore.Store
	ledger   *ledger.Ledger
	proj     *projection.Store
	signer   *credential.Signer
	coord    *registration.Coordinator
	resolver *lineage.Resolver
	out      *OutputFormatter
}

// loadConfig reads --config (or defaults plus environment), applies
// --data-dir and validates the result.
func (o *RootOptions) loadConfig() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if o.ConfigPath != "" {
		cfg, err = config.Load(o.ConfigPath)
	} else {
		cfg, err = config.FromEnv()
	}
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "load config", err)
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
	}
	if err := config.Validate(cfg); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

// newLogger builds the slog handler configured by the log section.
// --verbose forces debug level.
func (o *RootOptions) newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	level := cfg.LogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openApp loads configuration and opens both stores.
func openApp(o *RootOptions, cmd *cobra.Command) (*app, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger := o.newLogger(cfg, cmd.ErrOrStderr())

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "create data directory", err)
	}

	store, err := objectstore.Open(cfg.Ledger.Backend, cfg.LedgerPath(),
		objectstore.WithCacheTTL(cfg.CacheTTL()),
		objectstore.WithLogger(logger),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open ledger", err)
	}

	proj, err := projection.Open(cfg.ProjectionPath(),
		projection.WithPoolTimeout(cfg.PoolTimeout()),
		projection.WithConnectRetries(cfg.Projection.ConnectRetries, cfg.RetryDelay()),
		projection.WithLogger(logger),
	)
	if err != nil {
		store.Close()
		return nil, WrapExitError(ExitCommandError, "open projection", err)
	}

	signer, err := newSigner(cfg, logger)
	if err != nil {
		proj.Close()
		store.Close()
		return nil, WrapExitError(ExitCommandError, "token signer", err)
	}

	ledgerOpts := []ledger.Option{ledger.WithLogger(logger)}
	if place := cfg.Place(); place != nil {
		ledgerOpts = append(ledgerOpts, ledger.WithPlace(place))
	}
	l := ledger.New(store, ledgerOpts...)

	hasher := credential.NewArgon2id(credential.Argon2Params{
		Time:    cfg.Credentials.Argon2.Time,
		Memory:  cfg.Credentials.Argon2.MemoryKiB,
		Threads: cfg.Credentials.Argon2.Threads,
		SaltLen: credential.DefaultArgon2Params.SaltLen,
		KeyLen:  credential.DefaultArgon2Params.KeyLen,
	})

	logger.Debug("stores opened",
		"ledger_backend", cfg.Ledger.Backend,
		"ledger_path", cfg.LedgerPath(),
		"projection_path", cfg.ProjectionPath(),
	)

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		ledger: l,
		proj:   proj,
		signer: signer,
		coord: registration.New(l, proj, hasher, signer,
			registration.WithMaxUsernameLength(cfg.Registration.MaxUsernameLength),
			registration.WithLogger(logger),
		),
		resolver: lineage.New(l, proj, lineage.WithLogger(logger)),
		out:      o.formatter(cmd),
	}, nil
}

// newSigner uses the configured seed, or an ephemeral one when unset.
func newSigner(cfg config.Config, logger *slog.Logger) (*credential.Signer, error) {
	seed := cfg.SigningSeed()
	if seed == nil {
		seed = make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generate signing seed: %w", err)
		}
		logger.Warn("no credentials.signing_seed configured; tokens will not verify after restart")
	}
	return credential.NewSigner(seed, cfg.TokenTTL())
}

func (a *app) Close() error {
	perr := a.proj.Close()
	serr := a.store.Close()
	if perr != nil {
		return perr
	}
	return serr
}
