package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/model"
)

func newFetchCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	var collection string
	var all bool

	cmd := &cobra.Command{
		Use:   "fetch [url]",
		Short: "Ingest one feed URL, or every configured feed with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if all || len(args) == 0 {
				if len(args) == 1 {
					return fmt.Errorf("%w: --all does not take a url", docstore.ErrInvalidInput)
				}
				rep := app.orchestrator.RunAll(cmd.Context())
				for _, r := range rep.Results {
					if r.Error != "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s -> error: %s\n", r.Collection, r.Error)
						continue
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "%s -> %d saved\n", r.Collection, r.SavedCount)
				}
				if getOutput() == OutputJSON {
					return writeJSON(out, rep)
				}
				writeResultsTable(out, rep.Results)
				if !rep.Success && anyFailed(rep.Results) {
					return errors.New("no feed saved any items")
				}
				return nil
			}

			if collection == "" {
				collection = app.cfg.DefaultCollection
			}
			res, err := app.pipeline.Run(cmd.Context(), model.FeedSource{URL: args[0], Collection: collection})
			if err != nil {
				return fmt.Errorf("fetch %s: %w", args[0], err)
			}
			if getOutput() == OutputJSON {
				return writeJSON(out, FetchResponse{
					SavedCount:     res.SavedCount,
					CollectionName: res.Collection,
					Trimmed:        res.Trimmed,
					Skipped:        res.Skipped,
				})
			}
			writeResultsTable(out, []FeedResult{res})
			return nil
		},
	}
	cmd.Flags().StringVar(&collection, "collection", "", "Target collection (default from config)")
	cmd.Flags().BoolVar(&all, "all", false, "Run every configured feed")
	return cmd
}

func anyFailed(results []FeedResult) bool {
	for _, r := range results {
		if r.Error != "" {
			return true
		}
	}
	return false
}
