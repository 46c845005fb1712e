package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"trolley/internal/engine"
	"trolley/internal/export"
	"trolley/internal/model"
)

// listRow is the CLI projection of a list: the record flattened with its
// item counts.
type listRow struct {
	model.List
	Total     int `json:"total"`
	Unchecked int `json:"unchecked"`
}

func newListsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Manage your lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListsList(cmd, app)
		},
	}
	cmd.AddCommand(newListsListCmd(app))
	cmd.AddCommand(newListsCreateCmd(app))
	cmd.AddCommand(newListsRenameCmd(app))
	cmd.AddCommand(newListsDeleteCmd(app))
	cmd.AddCommand(newListsMoveCmd(app))
	cmd.AddCommand(newListsShareCmd(app))
	cmd.AddCommand(newListsIconCmd(app))
	cmd.AddCommand(newListsBgCmd(app))
	cmd.AddCommand(newListsExportCmd(app))
	return cmd
}

func newListsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show your lists in render order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListsList(cmd, app)
		},
	}
}

func runListsList(cmd *cobra.Command, app *App) error {
	ctrl, done, err := loadLists(cmd.Context(), app)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer done()
	lists, counts := ctrl.Snapshot()
	rows := make([]listRow, 0, len(lists))
	for _, l := range lists {
		n := counts[l.ID]
		rows = append(rows, listRow{List: l, Total: n.Total, Unchecked: n.Unchecked})
	}
	return writeOut(cmd, app, map[string]any{"data": rows})
}

func newListsCreateCmd(app *App) *cobra.Command {
	var icon string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a list (you become its first member)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			be, err := openBackend(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer be.Close()
			created, err := engine.NewLists(be).Create(ctx, args[0], icon)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": created})
		},
	}
	cmd.Flags().StringVar(&icon, "icon", "", "Emoji shown next to the name")
	return cmd
}

func newListsRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <list-id> <name>",
		Short: "Rename a list",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, done, err := loadLists(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := ctrl.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return writeErr(cmd, err)
			}
			l, _ := ctrl.Get(args[0])
			return writeOut(cmd, app, map[string]any{"data": l})
		},
	}
}

func newListsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <list-id>",
		Short: "Delete a list with all its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, done, err := loadLists(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := ctrl.Delete(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"deleted": args[0]}})
		},
	}
}

func newListsMoveCmd(app *App) *cobra.Command {
	var up, down bool
	cmd := &cobra.Command{
		Use:   "move <list-id>",
		Short: "Move a list one slot up or down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if up == down {
				return writeErr(cmd, errors.New("provide exactly one of --up or --down"))
			}
			ctrl, done, err := loadLists(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			delta := 1
			if up {
				delta = -1
			}
			if err := ctrl.MoveStep(cmd.Context(), args[0], delta); err != nil {
				return writeErr(cmd, err)
			}
			lists, _ := ctrl.Snapshot()
			return writeOut(cmd, app, map[string]any{"data": lists})
		},
	}
	cmd.Flags().BoolVar(&up, "up", false, "Move one slot up")
	cmd.Flags().BoolVar(&down, "down", false, "Move one slot down")
	return cmd
}

func newListsShareCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "share <list-id> <email>",
		Short: "Share a list with the account registered under an email",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, done, err := loadLists(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := ctrl.Share(cmd.Context(), args[0], args[1]); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{
				"data": map[string]any{"listId": args[0], "sharedWith": args[1]},
			})
		},
	}
}

func newListsIconCmd(app *App) *cobra.Command {
	var emoji, file string
	var reset bool
	cmd := &cobra.Command{
		Use:   "icon <list-id>",
		Short: "Set a list's icon: an emoji, an uploaded image, or back to default",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if countSet(emoji != "", file != "", reset) != 1 {
				return writeErr(cmd, errors.New("provide exactly one of --emoji, --file or --reset"))
			}
			ctrl, done, err := loadLists(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			ctx := cmd.Context()
			id := args[0]
			switch {
			case emoji != "":
				err = ctrl.SetIcon(ctx, id, emoji)
			case reset:
				err = ctrl.ResetImage(ctx, id, engine.MediaIcon)
			default:
				err = attachFile(ctx, ctrl, id, engine.MediaIcon, file)
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			l, _ := ctrl.Get(id)
			return writeOut(cmd, app, map[string]any{"data": l})
		},
	}
	cmd.Flags().StringVar(&emoji, "emoji", "", "Emoji glyph")
	cmd.Flags().StringVar(&file, "file", "", "Image file to upload")
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the custom icon image")
	return cmd
}

func newListsBgCmd(app *App) *cobra.Command {
	var file string
	var reset bool
	cmd := &cobra.Command{
		Use:   "bg <list-id>",
		Short: "Set or clear a list's background image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if countSet(file != "", reset) != 1 {
				return writeErr(cmd, errors.New("provide exactly one of --file or --reset"))
			}
			ctrl, done, err := loadLists(cmd.Context(), app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			ctx := cmd.Context()
			id := args[0]
			if reset {
				err = ctrl.ResetImage(ctx, id, engine.MediaBackground)
			} else {
				err = attachFile(ctx, ctrl, id, engine.MediaBackground, file)
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			l, _ := ctrl.Get(id)
			return writeOut(cmd, app, map[string]any{"data": l})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Image file to upload")
	cmd.Flags().BoolVar(&reset, "reset", false, "Clear the background image")
	return cmd
}

func newListsExportCmd(app *App) *cobra.Command {
	var out string
	var force bool
	cmd := &cobra.Command{
		Use:   "export <list-id>",
		Short: "Render a list as a markdown checklist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			be, err := openBackend(ctx, app)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer be.Close()

			lists := engine.NewLists(be)
			if err := lists.Refresh(ctx); err != nil {
				return writeErr(cmd, err)
			}
			l, ok := lists.Get(args[0])
			if !ok {
				return writeErr(cmd, fmt.Errorf("unknown list: %q", args[0]))
			}
			items := engine.NewItems(be, l.ID)
			if err := items.Refresh(ctx); err != nil {
				return writeErr(cmd, err)
			}

			md := export.RenderListMarkdown(l, items.Snapshot())
			if out == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), md)
				return err
			}
			if err := export.WriteFile(out, []byte(md), force); err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"written": out}})
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "Write to a file instead of stdout")
	cmd.Flags().BoolVar(&force, "force", false, "Replace the file if it exists")
	return cmd
}

func attachFile(ctx context.Context, ctrl *engine.Lists, id string, kind engine.MediaKind, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return ctrl.AttachImage(ctx, id, kind, filepath.Base(file), f)
}

func countSet(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
