package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidewater/ocean-engine/internal/app"
	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/mission"
	"github.com/tidewater/ocean-engine/internal/model"
)

func newApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), config.Default(), nil)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestNew_MemoryDefaults(t *testing.T) {
	a := newApp(t)

	regions, err := a.Store.ListRegions(context.Background())
	if err != nil || len(regions) == 0 {
		t.Fatalf("memory store should be seeded, got %d regions (err %v)", len(regions), err)
	}

	// Feeds without URLs are not scheduled.
	names := a.Scheduler.Names()
	want := map[string]bool{app.JobAuctions: true, app.JobCollection: true, app.JobIncome: true}
	if len(names) != len(want) {
		t.Fatalf("unexpected jobs %v", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected job %q", n)
		}
		if err := a.Scheduler.RunOnce(context.Background(), n); err != nil {
			t.Errorf("job %s: %v", n, err)
		}
	}
}

func TestRouter(t *testing.T) {
	a := newApp(t)
	h := a.Router()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", w.Code)
	}

	body, _ := json.Marshal(map[string]string{"user_id": "diver"})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/accounts", bytes.NewReader(body)))
	if w.Code != http.StatusCreated {
		t.Fatalf("open account: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/regions", nil))
	var regions []model.Region
	if err := json.Unmarshal(w.Body.Bytes(), &regions); err != nil || len(regions) == 0 {
		t.Fatalf("list regions: %v (%s)", err, w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/missions?user_id=diver", nil))
	var missions []mission.MissionStatus
	if err := json.Unmarshal(w.Body.Bytes(), &missions); err != nil || len(missions) == 0 {
		t.Fatalf("list missions: %v (%s)", err, w.Body.String())
	}

	// The default oracle accepts every photo.
	body, _ = json.Marshal(mission.CompleteRequest{UserID: "diver", Image: []byte("photo")})
	path := "/api/v1/missions/" + missions[0].ID + "/complete"
	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
		if w.Code != want {
			t.Fatalf("complete mission attempt %d: expected %d, got %d: %s", i+1, want, w.Code, w.Body.String())
		}
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", w.Code)
	}
}
