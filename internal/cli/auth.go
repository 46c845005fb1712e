package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

func newLoginCmd(app *App) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return writeErr(cmd, errors.New("provide --email and --password"))
			}
			ctx := cmd.Context()
			be, err := openBackend(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer be.Close()
			sess, err := be.SignIn(ctx, email, password)
			if err != nil {
				return writeErr(cmd, err)
			}
			// The token stays in the credentials store; stdout only gets
			// the account.
			return writeOut(cmd, app, map[string]any{"data": sess.Account})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	return cmd
}

func newSignupCmd(app *App) *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account (and sign in when no confirmation is required)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" || password == "" {
				return writeErr(cmd, errors.New("provide --email and --password"))
			}
			ctx := cmd.Context()
			be, err := openBackend(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer be.Close()
			sess, err := be.SignUp(ctx, email, password)
			if err != nil {
				return writeErr(cmd, err)
			}
			if sess == nil {
				return writeOut(cmd, app, map[string]any{
					"data": map[string]any{
						"email":                email,
						"confirmationRequired": true,
					},
				})
			}
			return writeOut(cmd, app, map[string]any{"data": sess.Account})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password")
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and discard the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			be, err := openBackend(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer be.Close()
			if err := be.SignOut(ctx); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"signedOut": true}})
		},
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			be, err := openBackend(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer be.Close()
			sess, err := be.Session(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			if sess == nil {
				return writeErr(cmd, errors.New("not signed in"))
			}
			return writeOut(cmd, app, map[string]any{"data": sess.Account})
		},
	}
}
