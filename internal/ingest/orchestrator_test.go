package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/model"
)

type scriptedRunner struct {
	mu      sync.Mutex
	results map[string]model.FeedResult
	errs    map[string]error
	calls   []string
}

func (r *scriptedRunner) Run(ctx context.Context, src model.FeedSource) (model.FeedResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, src.Collection)
	r.mu.Unlock()
	if err := r.errs[src.Collection]; err != nil {
		return model.FeedResult{Collection: src.Collection, SavedCount: 3}, err
	}
	return r.results[src.Collection], nil
}

func TestOrchestrator_IsolatesFailures(t *testing.T) {
	runner := &scriptedRunner{
		results: map[string]model.FeedResult{"rss_items_2": {Collection: "rss_items_2", SavedCount: 5}},
		errs:    map[string]error{"rss_items": newError(KindFetch, "fetch", errStoreDown)},
	}
	o := NewOrchestrator(runner, []model.FeedSlot{
		{Name: "RSS_URL_1", Source: model.FeedSource{URL: "https://a.example.org/rss", Collection: "rss_items"}},
		{Name: "RSS_URL_2", Source: model.FeedSource{URL: "https://b.example.org/rss", Collection: "rss_items_2"}},
	}, 1)

	report := o.RunAll(context.Background())
	if !report.Success {
		t.Fatalf("report = %+v, want success", report)
	}
	if len(report.Results) != 2 {
		t.Fatalf("results = %+v", report.Results)
	}
	failed, ok := report.Results[0], report.Results[1]
	if failed.Collection != "rss_items" || failed.SavedCount != 0 || failed.Error == "" {
		t.Fatalf("failed entry = %+v", failed)
	}
	if ok.Collection != "rss_items_2" || ok.SavedCount != 5 || ok.Error != "" {
		t.Fatalf("ok entry = %+v", ok)
	}
	if report.EndedAt.Before(report.StartedAt) {
		t.Fatalf("times = %v .. %v", report.StartedAt, report.EndedAt)
	}
}

func TestOrchestrator_SkipsUnconfiguredSlots(t *testing.T) {
	runner := &scriptedRunner{}
	o := NewOrchestrator(runner, []model.FeedSlot{
		{Name: "RSS_URL_1", Source: model.FeedSource{Collection: "rss_items"}},
		{Name: "RSS_URL_2", Source: model.FeedSource{URL: "https://b.example.org/rss", Collection: "rss_items_2"}},
	}, 1)

	report := o.RunAll(context.Background())
	if len(runner.calls) != 1 || runner.calls[0] != "rss_items_2" {
		t.Fatalf("calls = %v", runner.calls)
	}
	if len(report.Results) != 1 {
		t.Fatalf("results = %+v, want only the configured slot", report.Results)
	}
	if report.Success {
		t.Fatal("success with zero saved items")
	}
}

type slowRunner struct {
	inFlight, peak int32
}

func (r *slowRunner) Run(ctx context.Context, src model.FeedSource) (model.FeedResult, error) {
	n := atomic.AddInt32(&r.inFlight, 1)
	for {
		p := atomic.LoadInt32(&r.peak)
		if n <= p || atomic.CompareAndSwapInt32(&r.peak, p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&r.inFlight, -1)
	return model.FeedResult{Collection: src.Collection, SavedCount: 1}, nil
}

func TestOrchestrator_ParallelKeepsSlotOrder(t *testing.T) {
	slots := make([]model.FeedSlot, 0, 6)
	for _, c := range []string{"a", "b", "c", "d", "e", "f"} {
		slots = append(slots, model.FeedSlot{Name: c, Source: model.FeedSource{URL: "https://x.example.org/" + c, Collection: c}})
	}
	runner := &slowRunner{}
	report := NewOrchestrator(runner, slots, 3).RunAll(context.Background())

	for i, r := range report.Results {
		if r.Collection != slots[i].Source.Collection {
			t.Fatalf("results[%d] = %s, want %s", i, r.Collection, slots[i].Source.Collection)
		}
	}
	if peak := atomic.LoadInt32(&runner.peak); peak > 3 || peak < 2 {
		t.Fatalf("peak concurrency = %d, want 2..3", peak)
	}
}

func TestOrchestrator_EndToEndWithPipeline(t *testing.T) {
	good, _ := feedServer(t, rssXML(datedItems(5, baseTime)))
	store := docstore.NewMemoryStore()
	p := newTestPipeline(store, []string{"127.0.0.1"}, &fakeClock{now: baseTime})

	o := NewOrchestrator(p, []model.FeedSlot{
		{Name: "RSS_URL_1", Source: model.FeedSource{URL: "http://127.0.0.1:1/unreachable", Collection: "rss_items"}},
		{Name: "RSS_URL_2", Source: model.FeedSource{URL: good.URL, Collection: "rss_items_2"}},
	}, 1)
	report := o.RunAll(context.Background())

	if !report.Success || len(report.Results) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if report.Results[0].Error == "" || report.Results[1].SavedCount != 5 {
		t.Fatalf("results = %+v", report.Results)
	}
}
