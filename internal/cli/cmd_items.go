package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newItemsCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "items [collection]",
		Short: "List the newest stored items of a collection",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			collection := app.cfg.DefaultCollection
			if len(args) == 1 {
				collection = args[0]
			}
			items, err := app.reader.Latest(cmd.Context(), collection, limit)
			if err != nil {
				return fmt.Errorf("list items: %w", err)
			}
			switch getOutput() {
			case OutputJSON:
				return writeJSON(cmd.OutOrStdout(), items)
			case OutputWide:
				writeItemsTable(cmd.OutOrStdout(), items, true)
			default:
				writeItemsTable(cmd.OutOrStdout(), items, false)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Result limit (default from config)")
	return cmd
}
