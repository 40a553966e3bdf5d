package cli

import (
	"bufio"
	"strings"

	"github.com/spf13/cobra"
)

// credentialFlags are shared by register and login.
type credentialFlags struct {
	Password      string
	PasswordStdin bool
}

func (c *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.Password, "password", "", "password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&c.PasswordStdin, "password-stdin", false, "read the password from the first line of stdin")
}

func (c *credentialFlags) password(cmd *cobra.Command) (string, error) {
	if c.PasswordStdin {
		if c.Password != "" {
			return "", NewExitError(ExitCommandError, "--password and --password-stdin are mutually exclusive")
		}
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", WrapExitError(ExitCommandError, "read password from stdin", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	return c.Password, nil
}

// RegisterOptions holds flags for the register command.
type RegisterOptions struct {
	*RootOptions
	credentialFlags
	Secret string
}

// NewRegisterCommand creates the register command.
func NewRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RegisterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Register a new entity with an invitation secret",
		Long: `Register a new entity by consuming an invitation secret.

Without --secret the caller asks to become the root; that only succeeds
while no root exists.

Exit codes:
  0 - Registered
  1 - Refused (USED_SECRET, INVALID_SECRET, USERNAME_EXISTS, ...)
  2 - Command error

Examples:
  pathchain register alice --secret secrets/3f1c... --password-stdin
  pathchain register founder --password 'correct horse'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := opts.password(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.coord.Register(cmd.Context(), opts.Secret, args[0], pw)
			if err != nil {
				return a.out.Fail(err)
			}
			return a.out.Success(sessionView{Result: res, Action: "registered"})
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", "", "invitation secret (address or bare digest)")
	opts.bind(cmd)
	return cmd
}

// LoginOptions holds flags for the login command.
type LoginOptions struct {
	*RootOptions
	credentialFlags
}

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LoginOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "login <username>",
		Short:         "Verify a password and print a fresh token",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := opts.password(cmd)
			if err != nil {
				return err
			}
			a, err := openApp(opts.RootOptions, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.coord.Login(cmd.Context(), args[0], pw)
			if err != nil {
				return a.out.Fail(err)
			}
			return a.out.Success(sessionView{Result: res, Action: "logged in"})
		},
	}

	opts.bind(cmd)
	return cmd
}
