package talk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/model"
	"github.com/odysseus0/campusfeed/internal/posts"
)

var baseTime = time.Date(2024, 4, 1, 0, 30, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }

type stubCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   Completion
	err     error
}

func (c *stubCompleter) Complete(ctx context.Context, prompt string) (Completion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return Completion{}, c.err
	}
	return c.reply, nil
}

func (c *stubCompleter) lastPrompt(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.prompts) == 0 {
		t.Fatal("completer was not called")
	}
	return c.prompts[len(c.prompts)-1]
}

type stubItems struct {
	items map[string][]model.StoredItem
	err   map[string]error
}

func (s stubItems) Latest(ctx context.Context, collection string, limit int) ([]model.StoredItem, error) {
	if err := s.err[collection]; err != nil {
		return nil, err
	}
	items := s.items[collection]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type countingRefresher struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRefresher) RunAll(ctx context.Context) model.IngestReport {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return model.IngestReport{Success: true}
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type failingLogStore struct {
	*docstore.MemoryStore
}

func (failingLogStore) Add(ctx context.Context, collection string, data docstore.Document) (string, error) {
	return "", errors.New("disk full")
}

type fixture struct {
	svc       *Service
	completer *stubCompleter
	refresher *countingRefresher
	store     *docstore.MemoryStore
}

func newFixture(t *testing.T, items stubItems) fixture {
	t.Helper()
	store := docstore.NewMemoryStore()
	postSvc := posts.NewService(store, 0)
	if _, err := postSvc.Create(context.Background(), posts.NewPost{Content: "Lab 3 moved to room 204", AuthorName: "mika", Category: "class"}); err != nil {
		t.Fatalf("seed post: %v", err)
	}
	completer := &stubCompleter{reply: Completion{Text: "Room 204.", Model: "m", RequestID: "req-1", Usage: &model.Usage{TotalTokens: 42}}}
	refresher := &countingRefresher{}
	svc := NewService(completer, postSvc, items, refresher, store, DefaultOptions())
	svc.now = func() time.Time { return baseTime }
	return fixture{svc: svc, completer: completer, refresher: refresher, store: store}
}

func TestPostsList(t *testing.T) {
	got := PostsList([]model.Post{
		{Content: "exam\n  tomorrow", AuthorName: "ken", Category: model.CategoryClass, CreatedAt: baseTime},
		{Content: "lunch?", CreatedAt: baseTime},
	})
	want := "- ken [class] (04/01 09:30): exam tomorrow\n- @unknown (04/01 09:30): lunch?"
	if got != want {
		t.Fatalf("PostsList = %q, want %q", got, want)
	}
	if got := PostsList(nil); got != noPostsText {
		t.Fatalf("empty PostsList = %q", got)
	}
}

func TestStudentRSSList_DropsRepliesAndReposts(t *testing.T) {
	items := []model.StoredItem{
		{FeedItem: model.FeedItem{Title: "R to @bob: sure", PublishedAt: baseTime}},
		{FeedItem: model.FeedItem{Title: "RT by @amy: festival", PublishedAt: baseTime}},
		{FeedItem: model.FeedItem{Title: "Library closes early", Author: strPtr("@lib"), PublishedAt: baseTime}},
		{FeedItem: model.FeedItem{Description: "no title here", PublishedAt: baseTime}},
	}
	got := StudentRSSList(items)
	want := "- @lib (04/01 09:30): Library closes early\n- @unknown (04/01 09:30): no title here"
	if got != want {
		t.Fatalf("StudentRSSList = %q, want %q", got, want)
	}
	if got := StudentRSSList(items[:2]); got != noStudentRSSText {
		t.Fatalf("filtered-out list = %q, want placeholder", got)
	}
}

func TestOfficialNewsList(t *testing.T) {
	got := OfficialNewsList([]model.StoredItem{
		{FeedItem: model.FeedItem{Title: "Enrollment opens", PublishedAt: baseTime}},
		{FeedItem: model.FeedItem{Title: "Undated"}},
	})
	want := "- [04/01] Enrollment opens\n- Undated"
	if got != want {
		t.Fatalf("OfficialNewsList = %q, want %q", got, want)
	}
	if got := OfficialNewsList(nil); got != noOfficialNewsText {
		t.Fatalf("empty OfficialNewsList = %q", got)
	}
}

func TestBuildPrompt_KeepsOnlyLastAnswer(t *testing.T) {
	prompt, err := BuildPrompt(Sections{
		Now: baseTime,
		History: []model.Exchange{
			{Question: "first?", Answer: "old answer"},
			{Question: "second?", Answer: "latest answer"},
		},
		Question: "  third?  ",
	})
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if strings.Contains(prompt, "old answer") {
		t.Fatalf("prompt kept an earlier answer:\n%s", prompt)
	}
	for _, want := range []string{"Q: first?\nA: " + omittedAnswer, "A: latest answer", "<user_question>\nthird?\n</user_question>", "2024-04-01 09:30 (Mon) JST"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}

	prompt, err = BuildPrompt(Sections{Now: baseTime, Question: "q"})
	if err != nil {
		t.Fatalf("BuildPrompt: %v", err)
	}
	if !strings.Contains(prompt, noHistoryText) {
		t.Fatalf("prompt without history missing placeholder:\n%s", prompt)
	}
}

func TestAsk_NotConfigured(t *testing.T) {
	refresher := &countingRefresher{}
	var nilCompleter *OpenAICompleter
	svc := NewService(nilCompleter, posts.NewService(docstore.NewMemoryStore(), 0), stubItems{}, refresher, nil, DefaultOptions())

	if svc.Configured() {
		t.Fatal("service with nil completer reports configured")
	}
	ans, err := svc.Ask(context.Background(), Question{Text: "hello"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Success || ans.Error != notConfiguredErr {
		t.Fatalf("answer = %+v, want not configured", ans)
	}
	svc.Wait()
	if refresher.count() != 0 {
		t.Fatalf("refresh ran %d times without a completer", refresher.count())
	}
}

func TestNewOpenAICompleter_EmptyKey(t *testing.T) {
	if c := NewOpenAICompleter("", "", ""); c != nil {
		t.Fatalf("completer without key = %+v, want nil", c)
	}
	c := NewOpenAICompleter("key", "", "")
	if c.Model() != DefaultModel {
		t.Fatalf("model = %q, want %q", c.Model(), DefaultModel)
	}
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(t, stubItems{})
	if _, err := f.svc.Ask(context.Background(), Question{Text: "  "}); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("Ask err = %v, want ErrEmptyQuestion", err)
	}
}

func TestAsk_Success(t *testing.T) {
	f := newFixture(t, stubItems{items: map[string][]model.StoredItem{
		"rss_items":   {{FeedItem: model.FeedItem{Title: "Club fair today", Author: strPtr("cs_club"), PublishedAt: baseTime}}},
		"rss_items_2": {{FeedItem: model.FeedItem{Title: "Campus closed on Friday", PublishedAt: baseTime}}},
	}})
	ctx := context.Background()

	ans, err := f.svc.Ask(ctx, Question{Text: "Where is lab 3?"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if !ans.Success || ans.Text != "Room 204." || ans.Error != "" {
		t.Fatalf("answer = %+v", ans)
	}

	prompt := f.completer.lastPrompt(t)
	for _, want := range []string{"mika [class]", "Lab 3 moved to room 204", "@cs_club", "[04/01] Campus closed on Friday", "Where is lab 3?"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}

	f.svc.Wait()
	if got := f.refresher.count(); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}

	records, err := f.store.Find(ctx, LogCollection, docstore.Query{})
	if err != nil {
		t.Fatalf("find logs: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("talk logs = %d, want 1", len(records))
	}
	doc := records[0].Data
	if !doc.Bool("success") || doc.String("requestId") != "req-1" || doc.String("answer") != "Room 204." {
		t.Fatalf("talk log = %v", doc)
	}
	if doc.String("prompt") != prompt {
		t.Fatal("talk log prompt does not match the prompt sent")
	}
}

func TestAsk_CompletionFailure(t *testing.T) {
	f := newFixture(t, stubItems{})
	f.completer.err = errors.New("503 from upstream")
	ctx := context.Background()

	ans, err := f.svc.Ask(ctx, Question{Text: "anything"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Success || ans.Error != fallbackErr || ans.Text != fallbackText {
		t.Fatalf("answer = %+v, want fallback", ans)
	}
	f.svc.Wait()

	records, err := f.store.Find(ctx, LogCollection, docstore.Query{})
	if err != nil {
		t.Fatalf("find logs: %v", err)
	}
	if len(records) != 1 || records[0].Data.Bool("success") {
		t.Fatalf("talk logs = %+v, want one failed entry", records)
	}
	if got := records[0].Data.String("error"); got != "503 from upstream" {
		t.Fatalf("logged error = %q", got)
	}
}

func TestAsk_SourceFailuresDegrade(t *testing.T) {
	f := newFixture(t, stubItems{err: map[string]error{
		"rss_items":   errors.New("boom"),
		"rss_items_2": errors.New("boom"),
	}})
	ans, err := f.svc.Ask(context.Background(), Question{Text: "news?"})
	if err != nil || !ans.Success {
		t.Fatalf("Ask = %+v, %v", ans, err)
	}
	f.svc.Wait()
	prompt := f.completer.lastPrompt(t)
	if !strings.Contains(prompt, noStudentRSSText) || !strings.Contains(prompt, noOfficialNewsText) {
		t.Fatalf("prompt missing placeholders:\n%s", prompt)
	}
}

func TestAsk_LogWriteFailureSwallowed(t *testing.T) {
	store := docstore.NewMemoryStore()
	completer := &stubCompleter{reply: Completion{Text: "ok"}}
	svc := NewService(completer, posts.NewService(store, 0), stubItems{}, nil, failingLogStore{store}, DefaultOptions())

	ans, err := svc.Ask(context.Background(), Question{Text: "hi"})
	if err != nil || !ans.Success || ans.Text != "ok" {
		t.Fatalf("Ask = %+v, %v", ans, err)
	}
}
