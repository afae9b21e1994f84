package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/odysseus0/campusfeed/internal/docstore"
	"github.com/odysseus0/campusfeed/internal/ingest"
	"github.com/odysseus0/campusfeed/internal/logger"
	"github.com/odysseus0/campusfeed/internal/model"
	"github.com/odysseus0/campusfeed/internal/posts"
	"github.com/odysseus0/campusfeed/internal/talk"
)

const (
	maxBodyBytes  = 1 << 20
	maxItemsLimit = 1000
)

type ingestRequest struct {
	RSSURL         string `json:"rssUrl"`
	CollectionName string `json:"collectionName"`
	FetchAll       bool   `json:"fetchAll"`
}

type ingestResponse struct {
	SavedCount     int    `json:"savedCount"`
	CollectionName string `json:"collectionName"`
}

type fetchAllResponse struct {
	Success bool               `json:"success"`
	Results []model.FeedResult `json:"results"`
}

type talkRequest struct {
	Question string           `json:"question"`
	TalkLogs []model.Exchange `json:"talkLogs"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// A dropped client must not abort a run midway through upsert and trim.
	ctx := context.WithoutCancel(r.Context())
	if req.FetchAll {
		if s.deps.Orchestrator == nil {
			writeError(w, http.StatusServiceUnavailable, "feed ingestion is not configured")
			return
		}
		report := s.deps.Orchestrator.RunAll(ctx)
		writeJSON(w, http.StatusOK, fetchAllResponse{Success: report.Success, Results: report.Results})
		return
	}

	if req.RSSURL == "" {
		writeError(w, http.StatusBadRequest, "rssUrl is required")
		return
	}
	if s.deps.Pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "feed ingestion is not configured")
		return
	}
	collection := req.CollectionName
	if collection == "" {
		collection = s.deps.DefaultCollection
	}

	res, err := s.deps.Pipeline.Run(ctx, model.FeedSource{URL: req.RSSURL, Collection: collection})
	if err != nil {
		status := http.StatusInternalServerError
		if ingest.IsValidation(err) {
			status = http.StatusBadRequest
		}
		logger.Warn("ingest request failed", "url", req.RSSURL, "collection", collection, "error", err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{SavedCount: res.SavedCount, CollectionName: res.Collection})
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if s.deps.Items == nil {
		writeError(w, http.StatusServiceUnavailable, "items are not available")
		return
	}
	collection := r.PathValue("collection")
	if !docstore.ValidCollectionName(collection) {
		writeError(w, http.StatusBadRequest, "invalid collection name")
		return
	}
	limit, ok := queryInt(w, r, "limit", maxItemsLimit)
	if !ok {
		return
	}
	items, err := s.deps.Items.Latest(r.Context(), collection, limit)
	if err != nil {
		logger.Error("listing items", "collection", collection, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if s.deps.Posts == nil {
		writeError(w, http.StatusServiceUnavailable, "posts are not available")
		return
	}
	var in posts.NewPost
	if err := decodeBody(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	post, err := s.deps.Posts.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"post": post})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Posts == nil {
		writeError(w, http.StatusServiceUnavailable, "posts are not available")
		return
	}
	limit, ok := queryInt(w, r, "limit", posts.MaxLimit)
	if !ok {
		return
	}
	page, err := s.deps.Posts.Latest(r.Context(), posts.ListOptions{
		Limit:      limit,
		StartAfter: r.URL.Query().Get("startAfter"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleTalk(w http.ResponseWriter, r *http.Request) {
	if s.deps.Talk == nil {
		writeError(w, http.StatusServiceUnavailable, "talk is not available")
		return
	}
	if !s.limiter.allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	var req talkRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ans, err := s.deps.Talk.Ask(r.Context(), talk.Question{Text: req.Question, History: req.TalkLogs})
	if err != nil {
		if errors.Is(err, talk.ErrEmptyQuestion) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// queryInt reads an optional positive integer parameter. It writes the 400
// response itself and reports false when the value is unusable.
func queryInt(w http.ResponseWriter, r *http.Request, name string, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		writeError(w, http.StatusBadRequest, name+" must be an integer between 1 and "+strconv.Itoa(max))
		return 0, false
	}
	return n, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, posts.ErrInvalidInput), errors.Is(err, docstore.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
