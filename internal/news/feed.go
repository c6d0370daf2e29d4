// Package news ingests ocean news, matches items to regions and turns their
// sentiment into price moves.
package news

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/metrics"
	"github.com/tidewater/ocean-engine/internal/model"
)

// Item is one news article as delivered by the feed.
type Item struct {
	Title       string
	Description string
	URL         string
}

// Feed returns the latest batch of news items.
type Feed interface {
	Fetch(ctx context.Context) ([]Item, error)
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context) ([]Item, error)

func (f FeedFunc) Fetch(ctx context.Context) ([]Item, error) { return f(ctx) }

// HTTPFeed queries a NewsAPI-compatible "everything" endpoint.
type HTTPFeed struct {
	cfg  config.NewsConfig
	http *http.Client
}

func NewHTTPFeed(cfg config.NewsConfig, timeout time.Duration) *HTTPFeed {
	return &HTTPFeed{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

func (f *HTTPFeed) Fetch(ctx context.Context) ([]Item, error) {
	items, err := f.fetch(ctx)
	if err != nil {
		metrics.ExternalCalls.WithLabelValues("news", "error").Inc()
		return nil, fmt.Errorf("%w: news feed: %v", model.ErrExternalService, err)
	}
	metrics.ExternalCalls.WithLabelValues("news", "ok").Inc()
	return items, nil
}

func (f *HTTPFeed) fetch(ctx context.Context) ([]Item, error) {
	q := url.Values{}
	q.Set("apiKey", f.cfg.APIKey)
	q.Set("q", f.cfg.Query)
	q.Set("language", f.cfg.Language)
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(f.cfg.PageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return parseArticles(body)
}

func parseArticles(body []byte) ([]Item, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON response")
	}
	var items []Item
	gjson.GetBytes(body, "articles").ForEach(func(_, a gjson.Result) bool {
		items = append(items, Item{
			Title:       strings.TrimSpace(a.Get("title").String()),
			Description: strings.TrimSpace(a.Get("description").String()),
			URL:         strings.TrimSpace(a.Get("url").String()),
		})
		return true
	})
	return items, nil
}
