package httpx_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidewater/ocean-engine/internal/httpx"
	"github.com/tidewater/ocean-engine/internal/model"
	"github.com/tidewater/ocean-engine/internal/store"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: auction a1", model.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: closed", model.ErrInvalidState), http.StatusConflict},
		{store.ErrVersionConflict, http.StatusConflict},
		{fmt.Errorf("%w: broke", model.ErrInsufficientFunds), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: none", model.ErrInsufficientShares), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: shares", model.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("%w: oracle", model.ErrExternalService), http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpx.StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFail_HidesInternalErrors(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	httpx.Fail(w, r, errors.New("pq: password authentication failed"))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if body := w.Body.String(); body != "{\"error\":\"internal error\"}\n" {
		t.Errorf("internal detail leaked: %q", body)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := httpx.NewRateLimiter(0.001, 2)
	h := rl.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr string) int {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := call("10.0.0.1"); code != http.StatusNoContent {
			t.Fatalf("request %d within burst: got %d", i, code)
		}
	}
	if code := call("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("over burst: expected 429, got %d", code)
	}
	if code := call("10.0.0.2"); code != http.StatusNoContent {
		t.Errorf("other client should have its own budget, got %d", code)
	}
}
