package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odysseus0/campusfeed/internal/config"
	"github.com/odysseus0/campusfeed/internal/logger"
)

// Execute loads configuration and runs the root command.
func Execute() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	return NewRootCmd(cfg).Execute()
}

func NewRootCmd(cfg config.Config) *cobra.Command {
	var output string
	var outFmt OutputFormat
	var app *App
	var logCloser io.Closer

	output = string(OutputTable)

	getApp := func() *App { return app }
	getOutput := func() OutputFormat { return outFmt }

	cmd := &cobra.Command{
		Use:           "campusfeed",
		Short:         "Campus feed ingestion, posts and assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			parsedFmt, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			outFmt = parsedFmt
			if !requiresApp(cmd) {
				return nil
			}
			if logCloser == nil {
				c, err := logger.Init(cfg.LogLevel, cfg.LogFile)
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
				logCloser = c
			}
			if app != nil {
				return nil
			}
			a, err := NewApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			app = a
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				_ = app.Close()
				app = nil
			}
			if logCloser != nil {
				_ = logCloser.Close()
				logCloser = nil
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	cmd.PersistentFlags().StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "Store driver: sqlite, postgres, mongo, memory")
	cmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", output, "Output format: table, json, wide")

	cmd.AddCommand(newServeCmd(getApp))
	cmd.AddCommand(newFetchCmd(getApp, getOutput))
	cmd.AddCommand(newItemsCmd(getApp, getOutput))
	cmd.AddCommand(newPostsCmd(getApp, getOutput))
	cmd.AddCommand(newAskCmd(getApp, getOutput))
	cmd.AddCommand(newStatusCmd(getApp, getOutput))
	cmd.AddCommand(newFeedsCmd(getApp, getOutput))

	return cmd
}

func parseOutputFormat(raw string) (OutputFormat, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch OutputFormat(s) {
	case OutputTable, OutputJSON, OutputWide:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("invalid output format %q (expected table|json|wide)", raw)
	}
}

func requiresApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		name := c.Name()
		if name == "help" || name == "completion" {
			return false
		}
	}
	return true
}
