package mission_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tidewater/ocean-engine/internal/ai"
	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/mission"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

func d(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

var t0 = time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)

var photo = []byte("\x89PNG\r\n\x1a\nfake")

func newStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ms := store.NewMemoryStore()
	ctx := context.Background()
	err := ms.InTx(ctx, func(tx store.Repository) error {
		if err := tx.CreateRegion(ctx, &model.Region{
			ID: "r1", Name: "Jeju Coast", BasePrice: d(1000), CurrentPrice: d(1000),
			TotalShares: 100, AvailableShares: 100, CreatedAt: t0, UpdatedAt: t0,
		}); err != nil {
			return err
		}
		return tx.CreateAccount(ctx, &model.Account{UserID: "u1", Balance: d(50), CreatedAt: t0})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return ms
}

func newCollector(ms *store.MemoryStore, oracle ai.Oracle) *mission.Collector {
	return mission.NewCollector(ms, oracle, config.Default().Mission, clock.NewFakeClock(t0), nil)
}

func TestCollect_Accepted(t *testing.T) {
	ms := newStore(t)
	ctx := context.Background()
	var expected string
	c := newCollector(ms, ai.OracleFunc(func(_ context.Context, image []byte, exp string) (bool, error) {
		expected = exp
		return bytes.Equal(image, photo), nil
	}))

	res, err := c.Collect(ctx, "u1", "r1", photo)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if expected == "" {
		t.Error("oracle should receive the expected context")
	}
	if !res.Reward.Equal(d(100)) || !res.Balance.Equal(d(150)) || res.CollectionCount != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	if _, err := c.Collect(ctx, "u1", "r1", photo); err != nil {
		t.Fatalf("second collect: %v", err)
	}
	r, _ := ms.GetRegion(ctx, "r1")
	if r.CollectionCount != 2 {
		t.Errorf("expected counter 2, got %d", r.CollectionCount)
	}
	events := ms.CollectionEvents()
	if len(events) != 2 || events[0].UserID != "u1" || !events[0].Reward.Equal(d(100)) {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestCollect_RejectedLeavesNoTrace(t *testing.T) {
	tests := []struct {
		name   string
		oracle ai.Oracle
	}{
		{"not litter", ai.StaticOracle(false)},
		{"oracle down", ai.OracleFunc(func(context.Context, []byte, string) (bool, error) {
			return false, model.ErrExternalService
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := newStore(t)
			ctx := context.Background()
			c := newCollector(ms, tt.oracle)

			_, err := c.Collect(ctx, "u1", "r1", photo)
			if !errors.Is(err, mission.ErrNotVerified) || !errors.Is(err, model.ErrInvalidArgument) {
				t.Fatalf("expected ErrNotVerified, got %v", err)
			}
			r, _ := ms.GetRegion(ctx, "r1")
			acct, _ := ms.GetAccount(ctx, "u1")
			if r.CollectionCount != 0 || !acct.Balance.Equal(d(50)) || len(ms.CollectionEvents()) != 0 {
				t.Errorf("rejection must not mutate state: count=%d balance=%s", r.CollectionCount, acct.Balance)
			}
		})
	}
}

func TestCollect_UnknownTargets(t *testing.T) {
	ms := newStore(t)
	ctx := context.Background()
	c := newCollector(ms, ai.StaticOracle(true))

	if _, err := c.Collect(ctx, "u1", "nowhere", photo); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown region: expected ErrNotFound, got %v", err)
	}
	if _, err := c.Collect(ctx, "ghost", "r1", photo); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown user: expected ErrNotFound, got %v", err)
	}
	if _, err := c.Collect(ctx, "u1", "r1", nil); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("empty image: expected ErrInvalidArgument, got %v", err)
	}
	r, _ := ms.GetRegion(ctx, "r1")
	if r.CollectionCount != 0 {
		t.Errorf("failed collections must not count, got %d", r.CollectionCount)
	}
}

func TestHandleCollect(t *testing.T) {
	ms := newStore(t)
	c := newCollector(ms, ai.StaticOracle(true))
	r := chi.NewRouter()
	c.Routes(r)

	body, _ := json.Marshal(mission.CollectRequest{UserID: "u1", Image: photo})
	req := httptest.NewRequest(http.MethodPost, "/regions/r1/collections", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var res mission.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.RegionName != "Jeju Coast" || res.CollectionCount != 1 {
		t.Errorf("unexpected response %+v", res)
	}

	reject := mission.NewCollector(ms, ai.StaticOracle(false), config.Default().Mission, clock.Real(), nil)
	r2 := chi.NewRouter()
	reject.Routes(r2)
	req = httptest.NewRequest(http.MethodPost, "/regions/r1/collections", bytes.NewReader(body))
	w = httptest.NewRecorder()
	r2.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("rejected photo: expected 400, got %d", w.Code)
	}
}

func TestLocate(t *testing.T) {
	regions := []model.Region{
		{ID: "haeundae", Lat: 35.1587, Lon: 129.1604},
		{ID: "gwangalli", Lat: 35.1532, Lon: 129.1186},
		{ID: "jeju", Lat: 33.3940, Lon: 126.2397},
	}
	tests := []struct {
		name     string
		lat, lon float64
		want     string
	}{
		{"on the beach", 35.1587, 129.1604, "haeundae"},
		{"closer to gwangalli", 35.1540, 129.1250, "gwangalli"},
		{"inside the box only", 35.2500, 129.2500, "haeundae"},
		{"open sea", 34.5000, 128.5000, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mission.Locate(regions, tt.lat, tt.lon, 0.1)
			if ok != (tt.want != "") || got.ID != tt.want {
				t.Errorf("Locate(%g, %g) = %q, %v; want %q", tt.lat, tt.lon, got.ID, ok, tt.want)
			}
		})
	}
}

func TestCollectAt(t *testing.T) {
	ms := newStore(t)
	ctx := context.Background()
	err := ms.InTx(ctx, func(tx store.Repository) error {
		return tx.CreateRegion(ctx, &model.Region{
			ID: "busan", Name: "Haeundae", Lat: 35.1587, Lon: 129.1604,
			BasePrice: d(1000), CurrentPrice: d(1000), TotalShares: 100, AvailableShares: 100,
			CreatedAt: t0, UpdatedAt: t0,
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	c := newCollector(ms, ai.StaticOracle(true))

	res, err := c.CollectAt(ctx, "u1", 35.16, 129.15, photo)
	if err != nil {
		t.Fatalf("collect at: %v", err)
	}
	if res.RegionID != "busan" || res.CollectionCount != 1 {
		t.Errorf("unexpected result %+v", res)
	}

	if _, err := c.CollectAt(ctx, "u1", 37.5, 127.0, photo); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("far from every region: expected ErrNotFound, got %v", err)
	}

	r := chi.NewRouter()
	c.Routes(r)
	body, _ := json.Marshal(mission.CollectAtRequest{UserID: "u1", Lat: 35.16, Lon: 129.15, Image: photo})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/collections", bytes.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	got, _ := ms.GetRegion(ctx, "busan")
	if got.CollectionCount != 2 {
		t.Errorf("expected counter 2, got %d", got.CollectionCount)
	}
}
