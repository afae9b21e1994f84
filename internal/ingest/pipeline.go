package ingest

import (
	"context"
	"time"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/logger"
	"github.com/odysseus0/campusfeed/internal/model"
)

// Runner runs the ingest pipeline for one feed.
type Runner interface {
	Run(ctx context.Context, src model.FeedSource) (model.FeedResult, error)
}

type PipelineConfig struct {
	AllowedHosts    []string
	RefreshInterval time.Duration
	BatchSize       int
	MaxRetained     int
	MaxItems        int
}

// Pipeline ingests one feed: validate, lock, gate, fetch, upsert, trim and
// finally advance the execution marker.
type Pipeline struct {
	hosts    *HostValidator
	fetcher  FeedFetcher
	gate     *Gate
	upserter *Upserter
	trimmer  *Trimmer
	locks    *collectionLocks
	now      func() time.Time
}

func NewPipeline(store docstore.Store, fetcher FeedFetcher, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		hosts:    NewHostValidator(cfg.AllowedHosts),
		fetcher:  fetcher,
		gate:     NewGate(store, cfg.RefreshInterval),
		upserter: NewUpserter(store, cfg.BatchSize, cfg.MaxItems),
		trimmer:  NewTrimmer(store, cfg.MaxRetained, cfg.BatchSize),
		locks:    newCollectionLocks(),
		now:      time.Now,
	}
}

func (p *Pipeline) Gate() *Gate {
	return p.gate
}

func (p *Pipeline) Run(ctx context.Context, src model.FeedSource) (model.FeedResult, error) {
	result := model.FeedResult{Collection: src.Collection}
	if !docstore.ValidCollectionName(src.Collection) {
		return result, validationErrorf(ErrInvalidCollection, "%q", src.Collection)
	}
	u, err := p.hosts.Validate(src.URL)
	if err != nil {
		return result, err
	}

	unlock := p.locks.lock(src.Collection)
	defer unlock()

	decision, err := p.gate.Check(ctx, src, p.now())
	if err != nil {
		logger.Warn("execution marker unreadable, treating feed as never run", "collection", src.Collection, "error", err)
	}
	if !decision.Allowed() {
		logger.Info("feed cooling down, skipping fetch", "collection", src.Collection, "last_run", decision.LastRun)
		result.Skipped = true
		return result, nil
	}

	items, err := p.fetcher.Fetch(ctx, u)
	if err != nil {
		return result, err
	}
	logger.Debug("feed fetched", "collection", src.Collection, "items", len(items), "gate", decision.State.String())

	saved, err := p.upserter.Upsert(ctx, src.Collection, items, decision.LastRun)
	result.SavedCount = saved
	if err != nil {
		return result, err
	}

	trimmed, err := p.trimmer.Trim(ctx, src.Collection)
	result.Trimmed = trimmed
	if err != nil {
		return result, err
	}

	if err := p.gate.Mark(ctx, src, p.now()); err != nil {
		logger.Warn("execution marker not persisted", "collection", src.Collection, "error", err)
	}
	logger.Info("feed ingested", "collection", src.Collection, "saved", saved, "trimmed", trimmed)
	return result, nil
}
