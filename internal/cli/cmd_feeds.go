package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/odysseus0/campusfeed/internal/model"
	"github.com/odysseus0/campusfeed/internal/opml"
)

type feedsConfigSnippet struct {
	Feeds []model.FeedSource `toml:"feeds"`
}

func newFeedsCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "List, export or import configured feed sources",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured feed slots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			if getOutput() == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), app.cfg.Feeds)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tCOLLECTION\tURL")
			for _, s := range app.cfg.Feeds {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, s.Source.Collection, fallback(s.Source.URL, "(unset)"))
			}
			return tw.Flush()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "export",
		Short: "Write configured feeds as OPML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			return opml.WriteSlots(cmd.OutOrStdout(), app.cfg.Feeds)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file-or-url>",
		Short: "Convert an OPML file into [[feeds]] config entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slots, err := opml.ReadSlots(args[0])
			if err != nil {
				return fmt.Errorf("import opml: %w", err)
			}
			snippet := feedsConfigSnippet{Feeds: make([]model.FeedSource, 0, len(slots))}
			for _, s := range slots {
				snippet.Feeds = append(snippet.Feeds, s.Source)
			}
			if getOutput() == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), snippet.Feeds)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d feeds read; paste into config.toml\n", len(snippet.Feeds))
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(snippet)
		},
	})
	return cmd
}
