package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/logger"
)

func newStatusCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last execution time of each configured feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			gate := app.pipeline.Gate()
			rows := make([]FeedStatus, 0, len(app.cfg.Feeds))
			for _, slot := range app.cfg.Feeds {
				row := FeedStatus{Name: slot.Name, Collection: slot.Source.Collection, URL: slot.Source.URL}
				marker, err := gate.Marker(cmd.Context(), slot.Source.Collection)
				switch {
				case errors.Is(err, docstore.ErrNotFound):
				case err != nil:
					logger.Warn("reading execution marker", "collection", slot.Source.Collection, "error", err)
					row.Error = err.Error()
				default:
					last := marker.LastExecutionTime
					next := last.Add(gate.Interval())
					row.LastRun = &last
					row.NextAllowed = &next
				}
				rows = append(rows, row)
			}
			if getOutput() == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			writeStatusTable(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}
