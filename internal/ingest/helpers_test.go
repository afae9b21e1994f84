package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/model"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testItem struct {
	guid    string
	title   string
	pubDate *time.Time
}

func datedItems(n int, newest time.Time) []testItem {
	items := make([]testItem, 0, n)
	for i := 0; i < n; i++ {
		ts := newest.Add(-time.Duration(i) * time.Minute)
		items = append(items, testItem{guid: fmt.Sprintf("item-%03d", i), title: fmt.Sprintf("Entry %d", i), pubDate: &ts})
	}
	return items
}

func rssXML(items []testItem) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/"><channel>
<title>Test Feed</title><link>https://example.com</link><description>desc</description>
`)
	for _, it := range items {
		b.WriteString("<item>")
		if it.guid != "" {
			b.WriteString("<guid>" + it.guid + "</guid>")
		}
		b.WriteString("<title>" + it.title + "</title>")
		b.WriteString("<link>https://example.com/" + it.guid + "</link>")
		if it.pubDate != nil {
			b.WriteString("<pubDate>" + it.pubDate.Format(time.RFC1123Z) + "</pubDate>")
		}
		b.WriteString("<description>" + it.title + " body</description>")
		b.WriteString("</item>\n")
	}
	b.WriteString("</channel></rss>")
	return b.String()
}

// feedServer serves body and counts requests.
func feedServer(t *testing.T, body string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestFetcher() *Fetcher {
	return NewFetcher(FetcherConfig{
		Timeout:      5 * time.Second,
		MaxRedirects: 5,
		MaxItems:     200,
		UserAgent:    "campusfeed-test/1.0",
		AllowedHosts: []string{"127.0.0.1"},
	}, NewRenderer())
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url %q: %v", raw, err)
	}
	return u
}

// fakeClock is advanced by tests to drive the gate.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestPipeline(store docstore.Store, hosts []string, clock *fakeClock) *Pipeline {
	p := NewPipeline(store, newTestFetcher(), PipelineConfig{
		AllowedHosts:    hosts,
		RefreshInterval: 30 * time.Minute,
		BatchSize:       500,
		MaxRetained:     200,
		MaxItems:        200,
	})
	p.now = clock.Now
	p.upserter.now = clock.Now
	return p
}

// countingStore records every batch commit made through it.
type countingStore struct {
	*docstore.MemoryStore
	mu        sync.Mutex
	commits   []int
	failAfter int // commits allowed before failing; 0 disables
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: docstore.NewMemoryStore()}
}

func (s *countingStore) NewBatch() docstore.Batch {
	return &countingBatch{Batch: s.MemoryStore.NewBatch(), store: s}
}

func (s *countingStore) Commits() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.commits...)
}

type countingBatch struct {
	docstore.Batch
	store *countingStore
}

var errInjected = errors.New("injected commit failure")

func (b *countingBatch) Commit(ctx context.Context) error {
	b.store.mu.Lock()
	if b.store.failAfter > 0 && len(b.store.commits) >= b.store.failAfter {
		b.store.mu.Unlock()
		return errInjected
	}
	b.store.commits = append(b.store.commits, b.Len())
	b.store.mu.Unlock()
	return b.Batch.Commit(ctx)
}

// failingStore fails every operation on one collection.
type failingStore struct {
	docstore.Store
	collection string
}

var errStoreDown = errors.New("store unavailable")

func (s *failingStore) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if collection == s.collection {
		return nil, errStoreDown
	}
	return s.Store.Get(ctx, collection, id)
}

func (s *failingStore) Set(ctx context.Context, collection, id string, data docstore.Document) error {
	if collection == s.collection {
		return errStoreDown
	}
	return s.Store.Set(ctx, collection, id, data)
}

func feedItems(n int, newest time.Time) []model.FeedItem {
	items := make([]model.FeedItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, model.FeedItem{
			Title:       fmt.Sprintf("Entry %d", i),
			Link:        fmt.Sprintf("https://example.com/%d", i),
			GUID:        fmt.Sprintf("guid-%d", i),
			PublishedAt: newest.Add(-time.Duration(i) * time.Second),
		})
	}
	return items
}
