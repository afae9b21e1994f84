package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/ingest"
	"github.com/odysseus0/campusfeed/internal/model"
	"github.com/odysseus0/campusfeed/internal/posts"
	"github.com/odysseus0/campusfeed/internal/talk"
)

const testFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title><link>https://example.com</link><description>d</description>
<item><guid>a</guid><title>First</title><link>https://example.com/a</link><pubDate>Mon, 01 Apr 2024 09:00:00 +0000</pubDate><description>one</description></item>
<item><guid>b</guid><title>Second</title><link>https://example.com/b</link><pubDate>Mon, 01 Apr 2024 10:00:00 +0000</pubDate><description>two</description></item>
</channel></rss>`

type stubRunner struct {
	got    model.FeedSource
	res    model.FeedResult
	err    error
	ctxErr error
}

func (s *stubRunner) Run(ctx context.Context, src model.FeedSource) (model.FeedResult, error) {
	s.got = src
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return model.FeedResult{Collection: src.Collection}, s.err
	}
	res := s.res
	res.Collection = src.Collection
	return res, nil
}

type stubOrchestrator struct {
	report model.IngestReport
}

func (s stubOrchestrator) RunAll(ctx context.Context) model.IngestReport {
	return s.report
}

type stubAsker struct {
	calls int
}

func (s *stubAsker) Ask(ctx context.Context, q talk.Question) (model.Answer, error) {
	s.calls++
	if strings.TrimSpace(q.Text) == "" {
		return model.Answer{}, talk.ErrEmptyQuestion
	}
	return model.Answer{Text: "echo: " + q.Text, Success: true}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.1:4321"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	decode(t, rec, &body)
	return body["error"]
}

func TestHealth(t *testing.T) {
	rec := do(t, New(Deps{}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}
}

func TestIngest_RequestErrors(t *testing.T) {
	runner := &stubRunner{}
	s := New(Deps{Pipeline: runner})

	rec := do(t, s, http.MethodPost, "/api/rss", "{not json")
	if rec.Code != http.StatusBadRequest || errorMessage(t, rec) != "invalid JSON body" {
		t.Fatalf("malformed body = %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, s, http.MethodPost, "/api/rss", `{"collectionName":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing rssUrl = %d, want 400", rec.Code)
	}
}

func TestIngest_DefaultCollectionAndResponse(t *testing.T) {
	runner := &stubRunner{res: model.FeedResult{SavedCount: 7}}
	s := New(Deps{Pipeline: runner, DefaultCollection: "rss_items"})

	rec := do(t, s, http.MethodPost, "/api/rss", `{"rssUrl":"https://nitter.example.org/rss"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		SavedCount     int    `json:"savedCount"`
		CollectionName string `json:"collectionName"`
	}
	decode(t, rec, &body)
	if body.SavedCount != 7 || body.CollectionName != "rss_items" {
		t.Fatalf("body = %+v", body)
	}
	if runner.got.Collection != "rss_items" || runner.got.URL != "https://nitter.example.org/rss" {
		t.Fatalf("pipeline got %+v", runner.got)
	}
}

func TestIngest_ErrorStatusMapping(t *testing.T) {
	store := docstore.NewMemoryStore()
	fetcher := ingest.NewFetcher(ingest.FetcherConfig{Timeout: time.Second}, ingest.NewRenderer())
	pipeline := ingest.NewPipeline(store, fetcher, ingest.PipelineConfig{AllowedHosts: []string{"nitter.example.org"}})
	s := New(Deps{Pipeline: pipeline})

	rec := do(t, s, http.MethodPost, "/api/rss", `{"rssUrl":"https://evil.example.com/rss"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("disallowed host = %d, want 400", rec.Code)
	}
	if msg := errorMessage(t, rec); msg == "" {
		t.Fatal("validation failure has no error message")
	}

	failing := New(Deps{Pipeline: &stubRunner{err: errors.New("connection refused")}})
	rec = do(t, failing, http.MethodPost, "/api/rss", `{"rssUrl":"https://nitter.example.org/rss"}`)
	if rec.Code != http.StatusInternalServerError || errorMessage(t, rec) != "connection refused" {
		t.Fatalf("pipeline failure = %d %s", rec.Code, rec.Body.String())
	}
}

func TestIngest_EndToEnd(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	defer feed.Close()

	store := docstore.NewMemoryStore()
	fetcher := ingest.NewFetcher(ingest.FetcherConfig{Timeout: 5 * time.Second, MaxRedirects: 5}, ingest.NewRenderer())
	pipeline := ingest.NewPipeline(store, fetcher, ingest.PipelineConfig{AllowedHosts: []string{"127.0.0.1"}})
	s := New(Deps{Pipeline: pipeline, Items: ingest.NewReader(store, 0)})

	rec := do(t, s, http.MethodPost, "/api/rss", `{"rssUrl":"`+feed.URL+`/rss","collectionName":"club_feed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest = %d %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		SavedCount int `json:"savedCount"`
	}
	decode(t, rec, &saved)
	if saved.SavedCount != 2 {
		t.Fatalf("savedCount = %d, want 2", saved.SavedCount)
	}

	rec = do(t, s, http.MethodGet, "/api/rss/club_feed?limit=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("items = %d %s", rec.Code, rec.Body.String())
	}
	var listed struct {
		Items []model.StoredItem `json:"items"`
	}
	decode(t, rec, &listed)
	if len(listed.Items) != 1 || listed.Items[0].Title != "Second" {
		t.Fatalf("items = %+v, want newest only", listed.Items)
	}
}

func TestIngest_FetchAll(t *testing.T) {
	orch := stubOrchestrator{report: model.IngestReport{Success: true, Results: []model.FeedResult{
		{Collection: "rss_items", Error: "boom"},
		{Collection: "rss_items_2", SavedCount: 5},
	}}}
	s := New(Deps{Orchestrator: orch})

	rec := do(t, s, http.MethodPost, "/api/rss", `{"fetchAll":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetchAll = %d %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool               `json:"success"`
		Results []model.FeedResult `json:"results"`
	}
	decode(t, rec, &body)
	if !body.Success || len(body.Results) != 2 || body.Results[0].Error != "boom" || body.Results[1].SavedCount != 5 {
		t.Fatalf("body = %+v", body)
	}
}

type ctxOrchestrator struct {
	ctxErr error
}

func (o *ctxOrchestrator) RunAll(ctx context.Context) model.IngestReport {
	o.ctxErr = ctx.Err()
	return model.IngestReport{Success: true}
}

func TestIngest_ClientDisconnectDoesNotCancelRun(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	send := func(h http.Handler, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/rss", strings.NewReader(body)).WithContext(cancelled)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	runner := &stubRunner{}
	if rec := send(New(Deps{Pipeline: runner, DefaultCollection: "rss_items"}), `{"rssUrl":"https://nitter.example.org/rss"}`); rec.Code != http.StatusOK {
		t.Fatalf("single = %d %s", rec.Code, rec.Body.String())
	}
	if runner.ctxErr != nil {
		t.Fatalf("pipeline saw ctx error %v", runner.ctxErr)
	}

	orch := &ctxOrchestrator{}
	if rec := send(New(Deps{Orchestrator: orch}), `{"fetchAll":true}`); rec.Code != http.StatusOK {
		t.Fatalf("fetchAll = %d %s", rec.Code, rec.Body.String())
	}
	if orch.ctxErr != nil {
		t.Fatalf("orchestrator saw ctx error %v", orch.ctxErr)
	}
}

func TestItems_BadInput(t *testing.T) {
	s := New(Deps{Items: ingest.NewReader(docstore.NewMemoryStore(), 0)})
	for _, path := range []string{"/api/rss/bad$name", "/api/rss/rss_items?limit=0", "/api/rss/rss_items?limit=abc"} {
		if rec := do(t, s, http.MethodGet, path, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("GET %s = %d, want 400", path, rec.Code)
		}
	}
}

func TestPosts_CreateAndList(t *testing.T) {
	s := New(Deps{Posts: posts.NewService(docstore.NewMemoryStore(), 0)})

	for _, content := range []string{"one", "two", "three"} {
		rec := do(t, s, http.MethodPost, "/api/posts", `{"content":"`+content+`","authorName":"kai"}`)
		if rec.Code != http.StatusCreated {
			t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
		}
	}

	rec := do(t, s, http.MethodPost, "/api/posts", `{"content":"","authorName":"kai"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid post = %d, want 400", rec.Code)
	}

	rec = do(t, s, http.MethodGet, "/api/posts?limit=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d %s", rec.Code, rec.Body.String())
	}
	var page model.PostPage
	decode(t, rec, &page)
	if len(page.Posts) != 2 || !page.HasMore {
		t.Fatalf("page = %+v, want 2 posts and more", page)
	}

	if rec := do(t, s, http.MethodGet, "/api/posts?limit=101", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("limit 101 = %d, want 400", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/api/posts?startAfter=missing", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown startAfter = %d, want 400", rec.Code)
	}
}

func TestTalk_RateLimited(t *testing.T) {
	asker := &stubAsker{}
	s := New(Deps{Talk: asker, TalkPerMinute: 2})

	for i := 0; i < 2; i++ {
		rec := do(t, s, http.MethodPost, "/api/talk", `{"question":"hi"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("talk %d = %d %s", i, rec.Code, rec.Body.String())
		}
	}
	rec := do(t, s, http.MethodPost, "/api/talk", `{"question":"hi"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third talk = %d, want 429", rec.Code)
	}
	if asker.calls != 2 {
		t.Fatalf("asker calls = %d, want 2", asker.calls)
	}
}

func TestTalk_EmptyQuestion(t *testing.T) {
	s := New(Deps{Talk: &stubAsker{}})
	rec := do(t, s, http.MethodPost, "/api/talk", `{"question":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty question = %d, want 400", rec.Code)
	}
}

func TestClientLimiter_SweepsIdleClients(t *testing.T) {
	l := newClientLimiter(1)
	clock := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	for i := 0; i < limiterSweepSize; i++ {
		l.allow(string(rune('a'+i%26)) + time.Duration(i).String())
	}
	clock = clock.Add(limiterIdleTTL + time.Minute)
	if !l.allow("fresh") {
		t.Fatal("new client was limited")
	}
	if got := len(l.clients); got != 1 {
		t.Fatalf("clients after sweep = %d, want 1", got)
	}
}
