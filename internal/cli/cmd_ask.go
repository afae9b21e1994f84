package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odysseus0/campusfeed/internal/talk"
)

func newAskCmd(getApp func() *App, getOutput func() OutputFormat) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the campus assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			ans, err := app.talk.Ask(cmd.Context(), talk.Question{Text: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			if getOutput() == OutputJSON {
				return writeJSON(cmd.OutOrStdout(), ans)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ans.Text)
			if !ans.Success {
				return fmt.Errorf("assistant: %s", ans.Error)
			}
			return nil
		},
	}
}
