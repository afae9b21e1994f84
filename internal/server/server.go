// Package server exposes ingestion, items, posts and talk over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/odysseus0/campusfeed/internal/ingest"
	"github.com/odysseus0/campusfeed/internal/logger"
	"github.com/odysseus0/campusfeed/internal/model"
	"github.com/odysseus0/campusfeed/internal/posts"
	"github.com/odysseus0/campusfeed/internal/talk"
)

type ItemLister interface {
	Latest(ctx context.Context, collection string, limit int) ([]model.StoredItem, error)
}

type PostService interface {
	Create(ctx context.Context, in posts.NewPost) (model.Post, error)
	Latest(ctx context.Context, opts posts.ListOptions) (model.PostPage, error)
}

type Asker interface {
	Ask(ctx context.Context, q talk.Question) (model.Answer, error)
}

// Deps are the services behind the routes. Nil services leave their routes
// answering 503.
type Deps struct {
	Pipeline          ingest.Runner
	Orchestrator      ingest.AllRunner
	Items             ItemLister
	Posts             PostService
	Talk              Asker
	DefaultCollection string
	TalkPerMinute     int
}

type Server struct {
	deps    Deps
	mux     *http.ServeMux
	limiter *clientLimiter
}

func New(deps Deps) *Server {
	if deps.DefaultCollection == "" {
		deps.DefaultCollection = "rss_items"
	}
	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		limiter: newClientLimiter(deps.TalkPerMinute),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/rss", s.handleIngest)
	s.mux.HandleFunc("GET /api/rss/{collection}", s.handleItems)
	s.mux.HandleFunc("POST /api/posts", s.handleCreatePost)
	s.mux.HandleFunc("GET /api/posts", s.handleListPosts)
	s.mux.HandleFunc("POST /api/talk", s.handleTalk)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("http server listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
