// Package talk answers student questions with a chat model, grounded on the
// latest posts and feed items.
package talk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/ingest"
	"github.com/odysseus0/campusfeed/internal/logger"
	"github.com/odysseus0/campusfeed/internal/model"
	"github.com/odysseus0/campusfeed/internal/posts"
)

const (
	LogCollection = "talk_logs"

	notConfiguredText = "The assistant is not configured yet. Please try again later."
	notConfiguredErr  = "LLM API key is not configured"
	fallbackText      = "Sorry, something went wrong while answering. Please try again in a moment."
	fallbackErr       = "AI API Error"
)

var ErrEmptyQuestion = errors.New("question is required")

type Question struct {
	Text    string
	History []model.Exchange
}

type PostSource interface {
	Latest(ctx context.Context, opts posts.ListOptions) (model.PostPage, error)
}

type ItemSource interface {
	Latest(ctx context.Context, collection string, limit int) ([]model.StoredItem, error)
}

// Options sizes the context pulled into every prompt.
type Options struct {
	PostsLimit        int
	StudentCollection string
	StudentLimit      int
	NewsCollection    string
	NewsLimit         int
}

func DefaultOptions() Options {
	return Options{
		PostsLimit:        posts.DefaultLimit,
		StudentCollection: "rss_items",
		StudentLimit:      200,
		NewsCollection:    "rss_items_2",
		NewsLimit:         20,
	}
}

type Service struct {
	completer Completer
	posts     PostSource
	items     ItemSource
	refresher ingest.AllRunner
	logs      docstore.Store
	opts      Options
	now       func() time.Time

	refreshes sync.WaitGroup
}

// NewService wires the answerer. A nil completer makes every Ask return the
// not-configured answer; a nil refresher disables background refreshes.
func NewService(completer Completer, postSrc PostSource, items ItemSource, refresher ingest.AllRunner, logs docstore.Store, opts Options) *Service {
	def := DefaultOptions()
	if opts.PostsLimit <= 0 {
		opts.PostsLimit = def.PostsLimit
	}
	if opts.StudentCollection == "" {
		opts.StudentCollection = def.StudentCollection
	}
	if opts.StudentLimit <= 0 {
		opts.StudentLimit = def.StudentLimit
	}
	if opts.NewsCollection == "" {
		opts.NewsCollection = def.NewsCollection
	}
	if opts.NewsLimit <= 0 {
		opts.NewsLimit = def.NewsLimit
	}
	s := &Service{
		posts:     postSrc,
		items:     items,
		refresher: refresher,
		logs:      logs,
		opts:      opts,
		now:       time.Now,
	}
	// Keep a typed nil pointer out of the interface.
	if c, ok := completer.(*OpenAICompleter); !ok || c != nil {
		s.completer = completer
	}
	return s
}

func (s *Service) Configured() bool {
	return s.completer != nil
}

// Ask answers one question. Failures are reported inside the Answer; the
// only returned error is ErrEmptyQuestion.
func (s *Service) Ask(ctx context.Context, q Question) (model.Answer, error) {
	if strings.TrimSpace(q.Text) == "" {
		return model.Answer{}, ErrEmptyQuestion
	}
	if s.completer == nil {
		logger.Warn("talk request without a configured LLM")
		return model.Answer{Text: notConfiguredText, Success: false, Error: notConfiguredErr}, nil
	}

	s.refreshInBackground(ctx)

	sections := s.gatherContext(ctx)
	sections.Now = s.now()
	sections.History = q.History
	sections.Question = q.Text

	prompt, err := BuildPrompt(sections)
	if err != nil {
		logger.Error("building talk prompt", "error", err)
		return model.Answer{Text: fallbackText, Success: false, Error: fallbackErr}, nil
	}

	entry := model.TalkLog{Question: q.Text, Prompt: prompt, CreatedAt: s.now()}
	completion, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		entry.Answer = fallbackText
		entry.Error = err.Error()
		s.saveLog(ctx, entry)
		return model.Answer{Text: fallbackText, Success: false, Error: fallbackErr}, nil
	}

	entry.Answer = completion.Text
	entry.Model = completion.Model
	entry.RequestID = completion.RequestID
	entry.Usage = completion.Usage
	entry.Success = true
	s.saveLog(ctx, entry)
	return model.Answer{Text: completion.Text, Success: true}, nil
}

// Wait blocks until background refreshes started by Ask have finished.
func (s *Service) Wait() {
	s.refreshes.Wait()
}

func (s *Service) refreshInBackground(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	bg := context.WithoutCancel(ctx)
	s.refreshes.Add(1)
	go func() {
		defer s.refreshes.Done()
		report := s.refresher.RunAll(bg)
		for _, r := range report.Results {
			if r.Error != "" {
				logger.Warn("background refresh failed", "collection", r.Collection, "error", r.Error)
			}
		}
	}()
}

func (s *Service) gatherContext(ctx context.Context) Sections {
	var (
		postList []model.Post
		student  []model.StoredItem
		news     []model.StoredItem
	)
	// Each source degrades to an empty list, so the group never fails.
	var g errgroup.Group
	g.Go(func() error {
		page, err := s.posts.Latest(ctx, posts.ListOptions{Limit: s.opts.PostsLimit})
		if err != nil {
			logger.Warn("loading posts for talk", "error", err)
			return nil
		}
		postList = page.Posts
		return nil
	})
	g.Go(func() error {
		items, err := s.items.Latest(ctx, s.opts.StudentCollection, s.opts.StudentLimit)
		if err != nil {
			logger.Warn("loading feed items for talk", "collection", s.opts.StudentCollection, "error", err)
			return nil
		}
		student = items
		return nil
	})
	g.Go(func() error {
		items, err := s.items.Latest(ctx, s.opts.NewsCollection, s.opts.NewsLimit)
		if err != nil {
			logger.Warn("loading feed items for talk", "collection", s.opts.NewsCollection, "error", err)
			return nil
		}
		news = items
		return nil
	})
	_ = g.Wait()

	return Sections{
		StudentPosts: PostsList(postList),
		StudentRSS:   StudentRSSList(student),
		OfficialNews: OfficialNewsList(news),
	}
}

func (s *Service) saveLog(ctx context.Context, entry model.TalkLog) {
	if s.logs == nil {
		return
	}
	if _, err := s.logs.Add(ctx, LogCollection, talkLogDocument(entry)); err != nil {
		logger.Warn("saving talk log", "error", err)
	}
}

func talkLogDocument(l model.TalkLog) docstore.Document {
	doc := docstore.Document{
		"question":  l.Question,
		"answer":    l.Answer,
		"prompt":    l.Prompt,
		"model":     l.Model,
		"requestId": l.RequestID,
		"success":   l.Success,
		"error":     l.Error,
		"createdAt": l.CreatedAt,
	}
	if l.Usage != nil {
		doc["usage"] = docstore.Document{
			"promptTokens":     l.Usage.PromptTokens,
			"completionTokens": l.Usage.CompletionTokens,
			"totalTokens":      l.Usage.TotalTokens,
		}
	}
	return docstore.Compact(doc)
}
