package ingest

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odysseus0/campusfeed/internal/logger"
	"github.com/odysseus0/campusfeed/internal/model"
)

// Orchestrator runs every configured feed slot through the pipeline. One
// feed's failure is recorded in its result and never aborts the others.
type Orchestrator struct {
	runner      Runner
	slots       []model.FeedSlot
	concurrency int
	now         func() time.Time
}

func NewOrchestrator(runner Runner, slots []model.FeedSlot, concurrency int) *Orchestrator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Orchestrator{
		runner:      runner,
		slots:       append([]model.FeedSlot(nil), slots...),
		concurrency: concurrency,
		now:         time.Now,
	}
}

// Sources returns the configured sources that have a URL, in slot order.
func (o *Orchestrator) Sources() []model.FeedSource {
	out := make([]model.FeedSource, 0, len(o.slots))
	for _, slot := range o.slots {
		if strings.TrimSpace(slot.Source.URL) != "" {
			out = append(out, slot.Source)
		}
	}
	return out
}

// RunAll reports Success when at least one feed saved an item. Results keep
// slot order regardless of concurrency.
func (o *Orchestrator) RunAll(ctx context.Context) model.IngestReport {
	report := model.IngestReport{StartedAt: o.now()}

	for _, slot := range o.slots {
		if strings.TrimSpace(slot.Source.URL) == "" {
			logger.Warn("feed slot has no url configured, skipping", "slot", slot.Name, "collection", slot.Source.Collection)
		}
	}
	sources := o.Sources()
	results := make([]model.FeedResult, len(sources))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, src := range sources {
		g.Go(func() error {
			results[i] = o.runOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	for _, r := range results {
		if r.SavedCount > 0 {
			report.Success = true
			break
		}
	}
	report.EndedAt = o.now()
	return report
}

func (o *Orchestrator) runOne(ctx context.Context, src model.FeedSource) model.FeedResult {
	logger.Info("ingesting feed", "collection", src.Collection, "url", src.URL)
	res, err := o.runner.Run(ctx, src)
	if err != nil {
		logger.Error("feed ingest failed", "collection", src.Collection, "error", err)
		return model.FeedResult{Collection: src.Collection, SavedCount: 0, Error: err.Error()}
	}
	return res
}
