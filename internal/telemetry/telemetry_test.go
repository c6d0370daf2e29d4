package telemetry_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/pricing"
	"github.com/tidewater/ocean-engine/internal/store"
	"github.com/tidewater/ocean-engine/internal/telemetry"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func TestClassifyTierAndDelta(t *testing.T) {
	cfg := config.Default().Telemetry
	tests := []struct {
		stationType string
		tier        telemetry.Tier
		delta       int64
	}{
		{"종합해양과학기지", telemetry.TierResearch, 200},
		{"해양관측부이", telemetry.TierBuoy, 150},
		{"조위관측소", telemetry.TierTideGauge, 100},
		{"해수유동관측소", telemetry.TierOther, 50},
		{"", telemetry.TierOther, 50},
	}
	for _, tt := range tests {
		tier := telemetry.ClassifyTier(tt.stationType)
		if tier != tt.tier {
			t.Errorf("%q: expected %s, got %s", tt.stationType, tt.tier, tier)
		}
		if got := tier.Delta(cfg); !got.Equal(d(tt.delta)) {
			t.Errorf("%q: expected delta %d, got %s", tt.stationType, tt.delta, got)
		}
	}
}

func TestFlatDistance(t *testing.T) {
	dist := telemetry.FlatDistance(111)
	if got := dist(35, 129, 36, 129); math.Abs(got-111) > 1e-9 {
		t.Errorf("one degree of latitude should be 111km, got %f", got)
	}
	if got := dist(35, 129, 35, 130); math.Abs(got-111) > 1e-9 {
		t.Errorf("one degree of longitude should be 111km on the flat plane, got %f", got)
	}
}

func TestHaversineDistance(t *testing.T) {
	// Busan to Jeju is roughly 290km.
	got := telemetry.HaversineDistance(35.1796, 129.0756, 33.4996, 126.5312)
	if got < 280 || got > 300 {
		t.Errorf("unexpected Busan-Jeju distance %f", got)
	}
}

func TestNearest(t *testing.T) {
	stations := []telemetry.Station{
		{Code: "far", Lat: 37, Lon: 129},
		{Code: "near", Lat: 35.1, Lon: 129.1},
		{Code: "near-dup", Lat: 35.1, Lon: 129.1},
	}
	dist := telemetry.FlatDistance(111)

	st, km, ok := telemetry.Nearest(stations, 35, 129, 200, dist)
	if !ok || st.Code != "near" {
		t.Fatalf("expected 'near', got %+v ok=%v", st, ok)
	}
	if km <= 0 || km > 20 {
		t.Errorf("unexpected distance %f", km)
	}

	if _, _, ok := telemetry.Nearest(stations[:1], 35, 129, 200, dist); ok {
		t.Error("station 222km away must be out of range")
	}
	if _, _, ok := telemetry.Nearest(nil, 35, 129, 200, dist); ok {
		t.Error("no stations must not match")
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	st := telemetry.Station{Type: "해양관측부이", Name: "부산항", Code: "KG0101"}
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	a := telemetry.Synthesize("r1", st, 12.5, 200, at)
	b := telemetry.Synthesize("r1", st, 12.5, 200, at)
	if a != b {
		t.Errorf("identical inputs must produce identical snapshots:\n%+v\n%+v", a, b)
	}

	c := telemetry.Synthesize("r2", st, 12.5, 200, at)
	if a.PH == c.PH && a.DissolvedOxygen == c.DissolvedOxygen && a.Turbidity == c.Turbidity {
		t.Error("different regions should jitter differently")
	}
	if a.StationTier != string(telemetry.TierBuoy) || a.StationCode != "KG0101" {
		t.Errorf("unexpected station metadata %+v", a)
	}
}

func TestSynthesize_QualityTracksDistance(t *testing.T) {
	st := telemetry.Station{Type: "종합해양과학기지"}
	onSite := telemetry.Synthesize("r1", st, 0, 200, time.Time{})
	edge := telemetry.Synthesize("r1", st, 199, 200, time.Time{})

	if onSite.DissolvedOxygen.Status != model.QualityNormal || onSite.Turbidity.Status != model.QualityNormal {
		t.Errorf("a research station on site should read normal, got %+v", onSite)
	}
	if edge.Nitrogen.Status != model.QualityWarning || edge.Turbidity.Status != model.QualityWarning {
		t.Errorf("a region at the edge of range should read warning, got %+v", edge)
	}
}

func TestHTTPFeed_Pages(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		pages = append(pages, page)
		if r.URL.Query().Get("serviceKey") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch page {
		case "1":
			io.WriteString(w, `{"totalCount":3,"data":[
				{"위도":"35.1","경도":"129.1","관측소 유형":"조위관측소","관측소 명":"부산","관측소 코드명":"DT_0005"},
				{"위도":"bad","경도":"129.1","관측소 유형":"조위관측소","관측소 명":"broken","관측소 코드명":"X"}
			]}`)
		case "2":
			io.WriteString(w, `{"totalCount":3,"data":[
				{"latitude":33.5,"longitude":126.5,"station_type":"해양관측부이","station_name":"제주","station_code":"KG0102"}
			]}`)
		default:
			t.Errorf("unexpected page %s", page)
		}
	}))
	defer srv.Close()

	cfg := config.Default().Telemetry
	cfg.URL = srv.URL
	cfg.APIKey = "secret"
	cfg.PerPage = 2

	stations, err := telemetry.NewHTTPFeed(cfg, time.Second).Stations(context.Background())
	if err != nil {
		t.Fatalf("stations: %v", err)
	}
	if len(pages) != 2 {
		t.Errorf("expected 2 page requests, got %v", pages)
	}
	if len(stations) != 2 {
		t.Fatalf("expected 2 usable stations, got %+v", stations)
	}
	if stations[0].Code != "DT_0005" || stations[0].Lat != 35.1 {
		t.Errorf("unexpected first station %+v", stations[0])
	}
	if stations[1].Name != "제주" || stations[1].Type != "해양관측부이" {
		t.Errorf("unexpected second station %+v", stations[1])
	}
}

func TestHTTPFeed_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := config.Default().Telemetry
	cfg.URL = srv.URL
	_, err := telemetry.NewHTTPFeed(cfg, time.Second).Stations(context.Background())
	if !errors.Is(err, model.ErrExternalService) {
		t.Errorf("expected ErrExternalService, got %v", err)
	}
}

func TestIngester_Run(t *testing.T) {
	ms := store.NewMemoryStore()
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	err := ms.InTx(ctx, func(tx store.Repository) error {
		for i, r := range []model.Region{
			{ID: "busan", Name: "부산", Lat: 35.1, Lon: 129.0},
			{ID: "dokdo", Name: "독도", Lat: 37.24, Lon: 131.86},
		} {
			r.BasePrice, r.CurrentPrice = d(1000), d(1000)
			if err := tx.CreateRegion(ctx, &r); err != nil {
				return fmt.Errorf("region %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	feed := telemetry.FeedFunc(func(context.Context) ([]telemetry.Station, error) {
		return []telemetry.Station{
			{Lat: 35.0, Lon: 129.1, Type: "종합해양과학기지", Name: "부산 기지", Code: "B1"},
		}, nil
	})
	cfg := config.Default()
	eng := pricing.NewEngine(ms, cfg.Pricing, clk, nil, nil)
	in := telemetry.NewIngester(ms, feed, eng, cfg.Telemetry, clk, nil)

	if err := in.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	busan, _ := ms.GetRegion(ctx, "busan")
	if !busan.CurrentPrice.Equal(d(1200)) {
		t.Errorf("busan: expected 1200, got %s", busan.CurrentPrice)
	}
	wq, err := ms.GetWaterQuality(ctx, "busan")
	if err != nil {
		t.Fatalf("water quality: %v", err)
	}
	if wq.StationCode != "B1" || !wq.MeasuredAt.Equal(clk.Now()) {
		t.Errorf("unexpected snapshot %+v", wq)
	}

	dokdo, _ := ms.GetRegion(ctx, "dokdo")
	if !dokdo.CurrentPrice.Equal(d(1000)) {
		t.Errorf("dokdo is out of range and must not move, got %s", dokdo.CurrentPrice)
	}
	if _, err := ms.GetWaterQuality(ctx, "dokdo"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("dokdo must have no snapshot, got %v", err)
	}
}
