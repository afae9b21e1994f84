package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/odysseus0/campusfeed/internal/model"
)

const (
	defaultFetchTimeout  = 10 * time.Second
	defaultMaxRedirects  = 5
	defaultMaxFetchItems = 200
	maxFeedBodyBytes     = 16 << 20
)

// FeedFetcher retrieves and normalizes one feed document.
type FeedFetcher interface {
	Fetch(ctx context.Context, u *url.URL) ([]model.FeedItem, error)
}

type FetcherConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	MaxItems     int
	UserAgent    string
	// AllowedHosts, when set, is re-checked against every redirect target.
	AllowedHosts []string
}

type Fetcher struct {
	cfg      FetcherConfig
	client   *http.Client
	renderer *Renderer
	now      func() time.Time
}

func NewFetcher(cfg FetcherConfig, renderer *Renderer) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxFetchItems
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "campusfeed/0.1"
	}
	if renderer == nil {
		renderer = NewRenderer()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     30 * time.Second,
	}

	var hosts *HostValidator
	if len(cfg.AllowedHosts) > 0 {
		hosts = NewHostValidator(cfg.AllowedHosts)
	}
	maxRedirects := cfg.MaxRedirects
	return &Fetcher{
		cfg:      cfg,
		renderer: renderer,
		now:      time.Now,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				if hosts != nil {
					if _, err := hosts.Validate(req.URL.String()); err != nil {
						return fmt.Errorf("redirect refused: %w", err)
					}
				}
				return nil
			},
		},
	}
}

// Fetch downloads u, parses it as RSS, Atom or JSON Feed and returns at most
// MaxItems normalized entries in document order.
func (f *Fetcher) Fetch(ctx context.Context, u *url.URL) ([]model.FeedItem, error) {
	if u == nil {
		return nil, newError(KindFetch, "fetch", errors.New("nil url"))
	}
	req, err := f.newFeedRequest(ctx, u.String())
	if err != nil {
		return nil, newError(KindFetch, "fetch", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, newError(KindFetch, "fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newError(KindFetch, "fetch", fmt.Errorf("http %d from %s", resp.StatusCode, u.Host))
	}

	parsed, err := parseFeedResponse(resp.Body)
	if err != nil {
		return nil, newError(KindFetch, "parse", err)
	}

	entries := parsed.Items
	if len(entries) > f.cfg.MaxItems {
		entries = entries[:f.cfg.MaxItems]
	}
	now := f.now()
	items := make([]model.FeedItem, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}
		items = append(items, normalizeItem(entry, f.renderer, now))
	}
	return items, nil
}

func (f *Fetcher) newFeedRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "application/xml, application/atom+xml, application/rss+xml, application/feed+json, text/xml, text/html, */*;q=0.8")
	return req, nil
}

func parseFeedResponse(body io.Reader) (*gofeed.Feed, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxFeedBodyBytes))
	if err != nil {
		return nil, err
	}
	return gofeed.NewParser().Parse(bytes.NewReader(data))
}
