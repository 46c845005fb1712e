package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"trolley/internal/engine"
)

func newItemsCmd(app *App) *cobra.Command {
	var listID string
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Manage the items of one list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItemsList(cmd, app, listID)
		},
	}
	cmd.PersistentFlags().StringVar(&listID, "list", "", "List ID the command operates on")
	cmd.AddCommand(newItemsListCmd(app, &listID))
	cmd.AddCommand(newItemsAddCmd(app, &listID))
	cmd.AddCommand(newItemsToggleCmd(app, &listID))
	cmd.AddCommand(newItemsEditCmd(app, &listID))
	cmd.AddCommand(newItemsMoveCmd(app, &listID))
	cmd.AddCommand(newItemsDeleteCmd(app, &listID))
	cmd.AddCommand(newItemsClearCheckedCmd(app, &listID))
	return cmd
}

// itemsCtrl resolves --list and loads the controller for it. Every items
// subcommand starts here.
func itemsCtrl(cmd *cobra.Command, app *App, listID string) (*engine.Items, func(), error) {
	if listID == "" {
		return nil, nil, errors.New("provide --list <list-id>")
	}
	return loadItems(cmd.Context(), app, listID)
}

func runItemsList(cmd *cobra.Command, app *App, listID string) error {
	ctrl, done, err := itemsCtrl(cmd, app, listID)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer done()
	return writeOut(cmd, app, map[string]any{"data": ctrl.Snapshot()})
}

func newItemsListCmd(app *App, listID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the list's items in render order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runItemsList(cmd, app, *listID)
		},
	}
}

func newItemsAddCmd(app *App, listID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <text>...",
		Short: "Add an item (new items land on top, unchecked)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, done, err := itemsCtrl(cmd, app, *listID)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			created, err := ctrl.Add(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": created})
		},
	}
}

func newItemsToggleCmd(app *App, listID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle <item-id>",
		Short: "Flip an item between unchecked and checked",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, done, err := itemsCtrl(cmd, app, *listID)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			if err := ctrl.Toggle(cmd.Context(), args[0]); err != nil {
				return writeErr(cmd, err)
			}
			it, _ := ctrl.Get(args[0])
			return writeOut(cmd, app, map[string]any{"data": it})
		},
	}
}

func newItemsEditCmd(app *App, listID *string) *cobra.Command {
	var text, url string
	cmd := &cobra.Command{
		Use:   "edit <item-id>",
		Short: "Change an item's text or link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("text") && !cmd.Flags().Changed("url") {
				return writeErr(cmd, errors.New("provide --text or --url"))
			}
			ctrl, done, err := itemsCtrl(cmd, app, *listID)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			cur, ok := ctrl.Get(args[0])
			if !ok {
				return writeErr(cmd, errors.New("item not found"))
			}
			// Flags left unset keep the current value.
			if !cmd.Flags().Changed("text") {
				text = cur.Text
			}
			if !cmd.Flags().Changed("url") {
				url = cur.URL
			}
			if err := ctrl.Edit(cmd.Context(), args[0], text, url); err != nil {
				return writeErr(cmd, err)
			}
			it, _ := ctrl.Get(args[0])
			return writeOut(cmd, app, map[string]any{"data": it})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "New item text")
	cmd.Flags().StringVar(&url, "url", "", "Link attached to the item (empty clears it)")
	return cmd
}

func newItemsMoveCmd(app *App, listID *string) *cobra.Command {
	var up, down bool
	cmd := &cobra.Command{
		Use:   "move <item-id>",
		Short: "Move an item one slot within its partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if up == down {
				return writeErr(cmd, errors.New("provide exactly one of --up or --down"))
			}
			ctrl, done, err := itemsCtrl(cmd, app, *listID)
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
			return writeOut(cmd, app, map[string]any{"data": ctrl.Snapshot()})
		},
	}
	cmd.Flags().BoolVar(&up, "up", false, "Move one slot up")
	cmd.Flags().BoolVar(&down, "down", false, "Move one slot down")
	return cmd
}

func newItemsDeleteCmd(app *App, listID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <item-id>...",
		Short: "Delete items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, done, err := itemsCtrl(cmd, app, *listID)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			for _, id := range args {
				if err := ctrl.Delete(cmd.Context(), id); err != nil {
					return writeErr(cmd, err)
				}
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"deleted": args}})
		},
	}
}

func newItemsClearCheckedCmd(app *App, listID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-checked",
		Short: "Delete every checked item in the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, done, err := itemsCtrl(cmd, app, *listID)
			if err != nil {
				return writeErr(cmd, err)
			}
			defer done()
			n, err := ctrl.ClearChecked(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeOut(cmd, app, map[string]any{"data": map[string]any{"deleted": n}})
		},
	}
}
