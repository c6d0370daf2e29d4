// Package telemetry matches ocean observation stations to regions, reprices
// regions by the class of their nearest station and keeps a per-region
// water-quality snapshot.
package telemetry

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

// Station is one observation station from the feed.
type Station struct {
	Lat  float64
	Lon  float64
	Type string
	Name string
	Code string
}

// Feed returns the full station list.
type Feed interface {
	Stations(ctx context.Context) ([]Station, error)
}

// FeedFunc adapts a function to Feed.
type FeedFunc func(ctx context.Context) ([]Station, error)

func (f FeedFunc) Stations(ctx context.Context) ([]Station, error) { return f(ctx) }

// HTTPFeed pages through a public-data style station listing
// (page/perPage/serviceKey, records under "data").
type HTTPFeed struct {
	cfg  config.TelemetryConfig
	http *http.Client
}

func NewHTTPFeed(cfg config.TelemetryConfig, timeout time.Duration) *HTTPFeed {
	return &HTTPFeed{cfg: cfg, http: &http.Client{Timeout: timeout}}
}

func (f *HTTPFeed) Stations(ctx context.Context) ([]Station, error) {
	stations, err := f.fetchAll(ctx)
	if err != nil {
		metrics.ExternalCalls.WithLabelValues("stations", "error").Inc()
		return nil, fmt.Errorf("%w: station feed: %v", model.ErrExternalService, err)
	}
	metrics.ExternalCalls.WithLabelValues("stations", "ok").Inc()
	return stations, nil
}

func (f *HTTPFeed) fetchAll(ctx context.Context) ([]Station, error) {
	perPage := f.cfg.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	maxPages := f.cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}

	var all []Station
	for page := 1; page <= maxPages; page++ {
		body, err := f.fetchPage(ctx, page, perPage)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		records := gjson.GetBytes(body, "data")
		if !records.IsArray() || len(records.Array()) == 0 {
			break
		}
		all = append(all, parseStations(records)...)

		total := gjson.GetBytes(body, "totalCount").Int()
		if total > 0 && int64(page*perPage) >= total {
			break
		}
	}
	return all, nil
}

func (f *HTTPFeed) fetchPage(ctx context.Context, page, perPage int) ([]byte, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("perPage", strconv.Itoa(perPage))
	q.Set("serviceKey", f.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON response")
	}
	return body, nil
}

// parseStations decodes records keyed either in Korean (as published) or in
// English. Records without usable coordinates are dropped.
func parseStations(records gjson.Result) []Station {
	var out []Station
	records.ForEach(func(_, rec gjson.Result) bool {
		lat, okLat := coord(rec, "위도", "latitude")
		lon, okLon := coord(rec, "경도", "longitude")
		if !okLat || !okLon {
			return true
		}
		out = append(out, Station{
			Lat:  lat,
			Lon:  lon,
			Type: field(rec, "관측소 유형", "station_type"),
			Name: field(rec, "관측소 명", "station_name"),
			Code: field(rec, "관측소 코드명", "station_code"),
		})
		return true
	})
	return out
}

func lookup(rec gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		// Keys contain spaces, so go through the map rather than a path.
		if v, ok := rec.Map()[k]; ok && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

func field(rec gjson.Result, keys ...string) string {
	return strings.TrimSpace(lookup(rec, keys...).String())
}

func coord(rec gjson.Result, keys ...string) (float64, bool) {
	v := lookup(rec, keys...)
	switch v.Type {
	case gjson.Number:
		return v.Float(), true
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		return f, err == nil
	}
	return 0, false
}
