package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dev/bravebird/login-e2e-go/pkg/browser"
	"dev/bravebird/login-e2e-go/pkg/login"
)

type loginFlags struct {
	username      string
	password      string
	usernameField string
	passwordField string
}

func newLoginCommand(root *rootFlags) *cobra.Command {
	flags := &loginFlags{}
	cmd := &cobra.Command{
		Args:  cobra.NoArgs,
		Use:   "login",
		Short: "Log in once and print where the browser ends up",
	}

	cmd.Flags().StringVar(&flags.username, "username", "", "Username (default: the target's)")
	cmd.Flags().StringVar(&flags.password, "password", "", "Password (default: the target's)")
	cmd.Flags().StringVar(&flags.usernameField, "username-field", "username", "Name attribute of the username input")
	cmd.Flags().StringVar(&flags.passwordField, "password-field", "password", "Name attribute of the password input")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		e, err := root.load()
		if err != nil {
			return err
		}
		defer e.log.Sync()
		return runLogin(cmd, e, flags)
	}
	return cmd
}

func runLogin(cmd *cobra.Command, e *env, flags *loginFlags) error {
	ctx := cmd.Context()

	username, password := e.target.Username, e.target.Password
	if flags.username != "" {
		username = flags.username
	}
	if flags.password != "" {
		password = flags.password
	}

	client, err := login.New(ctx, browser.NewOpener(e.cfg.Browser, e.log), e.target.FrontendURL,
		login.WithFieldNames(flags.usernameField, flags.passwordField),
		login.WithLogger(e.log))
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Login(ctx, username, password); err != nil {
		return err
	}

	url, err := client.Session().URL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current url: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "submitted credentials for %s, now at %s\n", username, url)
	return nil
}
