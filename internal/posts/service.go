// Package posts stores and lists short community posts.
package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/model"
)

const (
	Collection = "posts"

	DefaultLimit    = 50
	MaxLimit        = 100
	MaxContentRunes = 500
	MaxAuthorRunes  = 50
	maxTargetYear   = 6
	createdAtField  = "createdAt"
)

var ErrInvalidInput = errors.New("invalid input")

var validMajors = map[string]struct{}{"I": {}, "II": {}, "III": {}}

type NewPost struct {
	Content     string  `json:"content"`
	AuthorName  string  `json:"authorName"`
	Category    string  `json:"category,omitempty"`
	TargetYear  *int    `json:"targetYear,omitempty"`
	TargetMajor *string `json:"targetMajor,omitempty"`
	TargetClass *string `json:"targetClass,omitempty"`
}

type ListOptions struct {
	Limit      int
	StartAfter string
}

type Service struct {
	store        docstore.Store
	defaultLimit int
	now          func() time.Time
}

// NewService uses defaultLimit when a listing asks for no explicit limit.
func NewService(store docstore.Store, defaultLimit int) *Service {
	if defaultLimit <= 0 || defaultLimit > MaxLimit {
		defaultLimit = DefaultLimit
	}
	return &Service{store: store, defaultLimit: defaultLimit, now: time.Now}
}

func (s *Service) Create(ctx context.Context, in NewPost) (model.Post, error) {
	post, err := validateNewPost(in)
	if err != nil {
		return model.Post{}, err
	}
	post.CreatedAt = s.now().UTC()

	id, err := s.store.Add(ctx, Collection, postDocument(post))
	if err != nil {
		return model.Post{}, fmt.Errorf("save post: %w", err)
	}
	post.ID = id
	return post, nil
}

func (s *Service) Get(ctx context.Context, id string) (model.Post, error) {
	doc, err := s.store.Get(ctx, Collection, id)
	if err != nil {
		return model.Post{}, err
	}
	return postFromRecord(docstore.Record{ID: id, Data: doc}), nil
}

// Latest lists posts newest first. HasMore is set when another page exists.
func (s *Service) Latest(ctx context.Context, opts ListOptions) (model.PostPage, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit < 1 || limit > MaxLimit {
		return model.PostPage{}, fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidInput, MaxLimit)
	}

	q := docstore.Query{OrderBy: createdAtField, Descending: true, Limit: limit + 1}
	if id := strings.TrimSpace(opts.StartAfter); id != "" {
		doc, err := s.store.Get(ctx, Collection, id)
		if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidInput) {
			return model.PostPage{}, fmt.Errorf("%w: startAfter post %q not found", ErrInvalidInput, id)
		}
		if err != nil {
			return model.PostPage{}, err
		}
		created, ok := doc.Time(createdAtField)
		if !ok {
			return model.PostPage{}, fmt.Errorf("%w: startAfter post %q has no createdAt", ErrInvalidInput, id)
		}
		q.After = &docstore.Cursor{Value: created, ID: id}
	}

	records, err := s.store.Find(ctx, Collection, q)
	if err != nil {
		return model.PostPage{}, err
	}
	page := model.PostPage{Posts: make([]model.Post, 0, limit)}
	if len(records) > limit {
		page.HasMore = true
		records = records[:limit]
	}
	for _, rec := range records {
		page.Posts = append(page.Posts, postFromRecord(rec))
	}
	return page, nil
}

func validateNewPost(in NewPost) (model.Post, error) {
	content := strings.TrimSpace(in.Content)
	if n := utf8.RuneCountInString(content); n == 0 || n > MaxContentRunes {
		return model.Post{}, fmt.Errorf("%w: content must be 1 to %d characters", ErrInvalidInput, MaxContentRunes)
	}
	author := strings.TrimSpace(in.AuthorName)
	if n := utf8.RuneCountInString(author); n == 0 || n > MaxAuthorRunes {
		return model.Post{}, fmt.Errorf("%w: authorName must be 1 to %d characters", ErrInvalidInput, MaxAuthorRunes)
	}

	post := model.Post{Content: content, AuthorName: author, Category: model.CategoryOther}
	switch model.PostCategory(strings.TrimSpace(in.Category)) {
	case "", model.CategoryOther:
	case model.CategoryClass:
		post.Category = model.CategoryClass
	default:
		return model.Post{}, fmt.Errorf("%w: category must be class or other", ErrInvalidInput)
	}

	if in.TargetYear != nil {
		if *in.TargetYear < 1 || *in.TargetYear > maxTargetYear {
			return model.Post{}, fmt.Errorf("%w: targetYear must be between 1 and %d", ErrInvalidInput, maxTargetYear)
		}
		y := *in.TargetYear
		post.TargetYear = &y
	}
	if in.TargetMajor != nil {
		major := strings.TrimSpace(*in.TargetMajor)
		if _, ok := validMajors[major]; !ok {
			return model.Post{}, fmt.Errorf("%w: targetMajor must be I, II or III", ErrInvalidInput)
		}
		post.TargetMajor = &major
	}
	if in.TargetClass != nil {
		if class := strings.TrimSpace(*in.TargetClass); class != "" {
			post.TargetClass = &class
		}
	}
	return post, nil
}

func postDocument(p model.Post) docstore.Document {
	return docstore.Compact(docstore.Document{
		"content":      p.Content,
		"authorName":   p.AuthorName,
		"category":     string(p.Category),
		"targetYear":   p.TargetYear,
		"targetMajor":  p.TargetMajor,
		"targetClass":  p.TargetClass,
		"likeCount":    p.LikeCount,
		createdAtField: p.CreatedAt,
	})
}

func postFromRecord(rec docstore.Record) model.Post {
	d := rec.Data
	p := model.Post{
		ID:          rec.ID,
		Content:     d.String("content"),
		AuthorName:  d.String("authorName"),
		Category:    model.PostCategory(d.String("category")),
		TargetMajor: d.StringPtr("targetMajor"),
		TargetClass: d.StringPtr("targetClass"),
	}
	if p.Category == "" {
		p.Category = model.CategoryOther
	}
	if y, ok := d.Int("targetYear"); ok {
		p.TargetYear = &y
	}
	if n, ok := d.Int("likeCount"); ok {
		p.LikeCount = n
	}
	if t, ok := d.Time(createdAtField); ok {
		p.CreatedAt = t
	}
	return p
}
