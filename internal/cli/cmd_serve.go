package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/odysseus0/campusfeed/internal/ingest"
	"github.com/odysseus0/campusfeed/internal/logger"
	"github.com/odysseus0/campusfeed/internal/model"
	"github.com/odysseus0/campusfeed/internal/server"
)

func newServeCmd(getApp func() *App) *cobra.Command {
	var addr string
	var schedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(getApp)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = app.cfg.ListenAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if schedule {
				sched := ingest.NewScheduler(app.orchestrator, app.cfg.RefreshInterval)
				sched.OnRun(func(rep model.IngestReport) {
					logger.Info("scheduled refresh finished", "success", rep.Success, "feeds", len(rep.Results))
				})
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()
			}

			if !app.talk.Configured() {
				logger.Warn("GROQ_API_KEY is not set, /api/talk will answer with the not-configured message")
			}
			srv := server.New(server.Deps{
				Pipeline:          app.pipeline,
				Orchestrator:      app.orchestrator,
				Items:             app.reader,
				Posts:             app.posts,
				Talk:              app.talk,
				DefaultCollection: app.cfg.DefaultCollection,
				TalkPerMinute:     app.cfg.TalkPerMin,
			})
			return srv.ListenAndServe(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&schedule, "schedule", false, "Refresh configured feeds on the refresh interval")
	return cmd
}
