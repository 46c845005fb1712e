package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"trolley/internal/backend"
	"trolley/internal/backend/local"
	"trolley/internal/backend/remote"
	"trolley/internal/engine"
	"trolley/internal/format"
	"trolley/internal/tui"
)

// App carries the persistent flag state shared by every command.
type App struct {
	Dir        string
	Server     string
	Format     string
	PrettyJSON bool
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "trolley",
		Short:        "Shared shopping and to-do lists (TUI + CLI)",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  trolley

  # Scriptable commands
  trolley lists
  trolley items --list lst-abc123 add "oat milk"

  # Run against a sync server instead of the local store
  trolley --server https://trolley.example.com login --email me@example.com --password ...
`),
		RunE: func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd.Context(), app)
			}
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.Dir, "dir", envOr("TROLLEY_DIR", ""), "Data directory (default ~/.trolley)")
	cmd.PersistentFlags().StringVar(&app.Server, "server", envOr("TROLLEY_SERVER", ""), "Sync server base URL; empty runs against the local store")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("TROLLEY_FORMAT", "json"), "Output format (json)")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newSignupCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newListsCmd(app))
	cmd.AddCommand(newItemsCmd(app))
	cmd.AddCommand(newDocsCmd(app))
	cmd.AddCommand(newServeCmd())

	return cmd
}

func runTUI(ctx context.Context, app *App) error {
	be, err := openBackend(ctx, app)
	if err != nil {
		return err
	}
	defer be.Close()
	return tui.Run(be)
}

func (app *App) dataDir() (string, error) {
	if app.Dir != "" {
		return app.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".trolley"), nil
}

// openBackend connects the configured backend: the sync server when
// --server (or TROLLEY_SERVER) is set, the local single-user store
// otherwise.
func openBackend(ctx context.Context, app *App) (backend.Backend, error) {
	dir, err := app.dataDir()
	if err != nil {
		return nil, err
	}
	if app.Server != "" {
		return remote.Open(remote.Config{BaseURL: app.Server, Dir: dir})
	}
	return local.Open(ctx, dir)
}

// loadLists opens the backend and fetches the lists collection. The
// returned close func releases the backend.
func loadLists(ctx context.Context, app *App) (*engine.Lists, func(), error) {
	be, err := openBackend(ctx, app)
	if err != nil {
		return nil, nil, err
	}
	ctrl := engine.NewLists(be)
	if err := ctrl.Refresh(ctx); err != nil {
		_ = be.Close()
		return nil, nil, err
	}
	return ctrl, func() { _ = be.Close() }, nil
}

// loadItems opens the backend and fetches one list's items.
func loadItems(ctx context.Context, app *App, listID string) (*engine.Items, func(), error) {
	be, err := openBackend(ctx, app)
	if err != nil {
		return nil, nil, err
	}
	ctrl := engine.NewItems(be, listID)
	if err := ctrl.Refresh(ctx); err != nil {
		_ = be.Close()
		return nil, nil, err
	}
	return ctrl, func() { _ = be.Close() }, nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
