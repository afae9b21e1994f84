package cli

import (
	"context"

	"github.com/odysseus0/campusfeed/internal/config"
	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/ingest"
	"github.com/odysseus0/campusfeed/internal/posts"
	"github.com/odysseus0/campusfeed/internal/talk"
)

// App owns the store and every service built on it for one command run.
type App struct {
	cfg          config.Config
	store        docstore.Store
	pipeline     *ingest.Pipeline
	orchestrator *ingest.Orchestrator
	reader       *ingest.Reader
	posts        *posts.Service
	talk         *talk.Service
}

func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	store, err := docstore.Open(ctx, docstore.Options{
		Driver:            cfg.StoreDriver,
		Path:              cfg.DBPath,
		PostgresDSN:       cfg.PostgresDSN,
		MongoURI:          cfg.MongoURI,
		MongoDatabase:     cfg.MongoDatabase,
		MongoTransactions: cfg.MongoTransactions,
	})
	if err != nil {
		return nil, err
	}
	return newAppWithStore(cfg, store), nil
}

func newAppWithStore(cfg config.Config, store docstore.Store) *App {
	fetcher := ingest.NewFetcher(ingest.FetcherConfig{
		Timeout:      cfg.HTTPTimeout,
		MaxRedirects: cfg.MaxRedirects,
		MaxItems:     cfg.MaxItems,
		UserAgent:    cfg.UserAgent,
		AllowedHosts: cfg.AllowedHosts,
	}, ingest.NewRenderer())
	pipeline := ingest.NewPipeline(store, fetcher, ingest.PipelineConfig{
		AllowedHosts:    cfg.AllowedHosts,
		RefreshInterval: cfg.RefreshInterval,
		BatchSize:       cfg.BatchSize,
		MaxRetained:     cfg.MaxRetained,
		MaxItems:        cfg.MaxItems,
	})
	orchestrator := ingest.NewOrchestrator(pipeline, cfg.Feeds, cfg.IngestConcurrency)
	reader := ingest.NewReader(store, cfg.RSSLatestLimit)
	postSvc := posts.NewService(store, cfg.PostsLatestLimit)

	opts := talk.DefaultOptions()
	opts.PostsLimit = cfg.PostsLatestLimit
	opts.StudentLimit = cfg.RSSItemsFetchLimit
	opts.NewsLimit = cfg.RSSItems2FetchLimit
	completer := talk.NewOpenAICompleter(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModel)
	talkSvc := talk.NewService(completer, postSvc, reader, orchestrator, store, opts)

	return &App{
		cfg:          cfg,
		store:        store,
		pipeline:     pipeline,
		orchestrator: orchestrator,
		reader:       reader,
		posts:        postSvc,
		talk:         talkSvc,
	}
}

// Close waits for background refreshes started by talk before closing the
// store they write to.
func (a *App) Close() error {
	if a.talk != nil {
		a.talk.Wait()
	}
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
