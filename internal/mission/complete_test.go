package mission_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tidewater/ocean-engine/internal/ai"
	"github.com/tidewater/ocean-engine/internal/clock"
	"github.com/tidewater/ocean-engine/internal/mission"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

const seaPhotoTodo = "바다 가서 사진 찍기"

// newMissionStore extends newStore with one 300-credit mission, m1.
func newMissionStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	ms := newStore(t)
	ctx := context.Background()
	err := ms.InTx(ctx, func(tx store.Repository) error {
		return tx.CreateMission(ctx, &model.Mission{
			ID: "m1", Todo: seaPhotoTodo, Credits: d(300), Kind: model.MissionDaily, CreatedAt: t0,
		})
	})
	if err != nil {
		t.Fatalf("seed mission: %v", err)
	}
	return ms
}

func newCompleter(ms *store.MemoryStore, oracle ai.Oracle) *mission.Completer {
	return mission.NewCompleter(ms, oracle, clock.NewFakeClock(t0), nil)
}

func TestComplete_CreditsOnce(t *testing.T) {
	ms := newMissionStore(t)
	ctx := context.Background()
	var expected string
	c := newCompleter(ms, ai.OracleFunc(func(_ context.Context, _ []byte, exp string) (bool, error) {
		expected = exp
		return true, nil
	}))

	res, err := c.Complete(ctx, "u1", "m1", photo)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if expected != seaPhotoTodo {
		t.Errorf("oracle should check the photo against the mission todo, got %q", expected)
	}
	if !res.Reward.Equal(d(300)) || !res.Balance.Equal(d(350)) || !res.CompletedAt.Equal(t0) {
		t.Errorf("unexpected result %+v", res)
	}

	expected = ""
	if _, err := c.Complete(ctx, "u1", "m1", photo); !errors.Is(err, model.ErrInvalidState) {
		t.Fatalf("second completion: expected ErrInvalidState, got %v", err)
	}
	if expected != "" {
		t.Error("a completed mission must be rejected before the oracle is asked")
	}
	acct, _ := ms.GetAccount(ctx, "u1")
	if !acct.Balance.Equal(d(350)) {
		t.Errorf("reward must be paid once, balance %s", acct.Balance)
	}
	um, err := ms.GetUserMission(ctx, "u1", "m1")
	if err != nil || !um.Credits.Equal(d(300)) {
		t.Errorf("expected completion record, got %+v (err %v)", um, err)
	}
}

func TestComplete_ConcurrentPaysOnce(t *testing.T) {
	ms := newMissionStore(t)
	ctx := context.Background()
	c := newCompleter(ms, ai.StaticOracle(true))

	errs := make([]error, 8)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Complete(ctx, "u1", "m1", photo)
		}(i)
	}
	wg.Wait()

	paid := 0
	for i, err := range errs {
		switch {
		case err == nil:
			paid++
		case !errors.Is(err, model.ErrInvalidState):
			t.Errorf("attempt %d: unexpected error %v", i, err)
		}
	}
	if paid != 1 {
		t.Fatalf("expected exactly one completion, got %d", paid)
	}
	acct, _ := ms.GetAccount(ctx, "u1")
	if !acct.Balance.Equal(d(350)) {
		t.Errorf("expected balance 350, got %s", acct.Balance)
	}
}

func TestComplete_RejectedLeavesNoTrace(t *testing.T) {
	tests := []struct {
		name   string
		oracle ai.Oracle
	}{
		{"wrong photo", ai.StaticOracle(false)},
		{"oracle down", ai.OracleFunc(func(context.Context, []byte, string) (bool, error) {
			return false, model.ErrExternalService
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := newMissionStore(t)
			ctx := context.Background()
			c := newCompleter(ms, tt.oracle)

			_, err := c.Complete(ctx, "u1", "m1", photo)
			if !errors.Is(err, mission.ErrTaskNotShown) || !errors.Is(err, model.ErrInvalidArgument) {
				t.Fatalf("expected ErrTaskNotShown, got %v", err)
			}
			acct, _ := ms.GetAccount(ctx, "u1")
			if !acct.Balance.Equal(d(50)) {
				t.Errorf("rejection must not pay, balance %s", acct.Balance)
			}
			if _, err := ms.GetUserMission(ctx, "u1", "m1"); !errors.Is(err, model.ErrNotFound) {
				t.Errorf("rejection must not record a completion, got %v", err)
			}
		})
	}
}

func TestComplete_UnknownTargets(t *testing.T) {
	ms := newMissionStore(t)
	ctx := context.Background()
	c := newCompleter(ms, ai.StaticOracle(true))

	if _, err := c.Complete(ctx, "u1", "nope", photo); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown mission: expected ErrNotFound, got %v", err)
	}
	if _, err := c.Complete(ctx, "ghost", "m1", photo); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("unknown user: expected ErrNotFound, got %v", err)
	}
	if _, err := c.Complete(ctx, "u1", "m1", nil); !errors.Is(err, model.ErrInvalidArgument) {
		t.Errorf("empty image: expected ErrInvalidArgument, got %v", err)
	}
}

func TestMissions_MarksCompleted(t *testing.T) {
	ms := newMissionStore(t)
	ctx := context.Background()
	err := ms.InTx(ctx, func(tx store.Repository) error {
		return tx.CreateMission(ctx, &model.Mission{
			ID: "m2", Todo: "해양 생물 관찰하기", Credits: d(150), Kind: model.MissionSpecial, CreatedAt: t0,
		})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	c := newCompleter(ms, ai.StaticOracle(true))
	if _, err := c.Complete(ctx, "u1", "m1", photo); err != nil {
		t.Fatalf("complete: %v", err)
	}

	list, err := c.Missions(ctx, "u1")
	if err != nil || len(list) != 2 {
		t.Fatalf("missions: %v (%d)", err, len(list))
	}
	if !list[0].Completed || list[1].Completed {
		t.Errorf("expected only m1 completed, got %+v", list)
	}

	anon, _ := c.Missions(ctx, "")
	for _, m := range anon {
		if m.Completed {
			t.Errorf("no user given, %s should not be marked", m.ID)
		}
	}
}

func TestHandleComplete(t *testing.T) {
	ms := newMissionStore(t)
	c := newCompleter(ms, ai.StaticOracle(true))
	r := chi.NewRouter()
	c.Routes(r)

	post := func(path string, body any) *httptest.ResponseRecorder {
		b, _ := json.Marshal(body)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b)))
		return w
	}

	tests := []struct {
		name   string
		path   string
		body   mission.CompleteRequest
		status int
	}{
		{"completed", "/missions/m1/complete", mission.CompleteRequest{UserID: "u1", Image: photo}, http.StatusCreated},
		{"again", "/missions/m1/complete", mission.CompleteRequest{UserID: "u1", Image: photo}, http.StatusConflict},
		{"unknown mission", "/missions/zzz/complete", mission.CompleteRequest{UserID: "u1", Image: photo}, http.StatusNotFound},
		{"no image", "/missions/m1/complete", mission.CompleteRequest{UserID: "u1"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := post(tt.path, tt.body); w.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missions?user_id=u1", nil))
	var list []mission.MissionStatus
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil || len(list) != 1 || !list[0].Completed {
		t.Errorf("unexpected mission list %s (err %v)", w.Body.String(), err)
	}
}
