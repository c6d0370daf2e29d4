package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tidewater/ocean-engine/internal/scheduler"
)

func TestRunOnce(t *testing.T) {
	s := scheduler.New(time.Second, nil)
	var calls int
	boom := errors.New("boom")

	if err := s.Add(scheduler.Job{Name: "income", Run: func(context.Context) error {
		calls++
		return nil
	}}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(scheduler.Job{Name: "news", Run: func(context.Context) error { return boom }}); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.RunOnce(context.Background(), "income"); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if err := s.RunOnce(context.Background(), "news"); !errors.Is(err, boom) {
		t.Errorf("expected job error, got %v", err)
	}
	if err := s.RunOnce(context.Background(), "nope"); !errors.Is(err, scheduler.ErrUnknownJob) {
		t.Errorf("expected ErrUnknownJob, got %v", err)
	}

	got := s.Names()
	if len(got) != 2 || got[0] != "income" || got[1] != "news" {
		t.Errorf("unexpected names %v", got)
	}
}

func TestAdd_Rejects(t *testing.T) {
	s := scheduler.New(time.Second, nil)
	noop := func(context.Context) error { return nil }
	if err := s.Add(scheduler.Job{Name: "a", Run: noop}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(scheduler.Job{Name: "a", Run: noop}); err == nil {
		t.Error("duplicate name should be rejected")
	}
	if err := s.Add(scheduler.Job{Name: "b"}); err == nil {
		t.Error("missing func should be rejected")
	}
}

func TestRunOnce_Timeout(t *testing.T) {
	s := scheduler.New(20*time.Millisecond, nil)
	s.Add(scheduler.Job{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	start := time.Now()
	err := s.RunOnce(context.Background(), "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("job should have been cut off by the timeout")
	}
}

func TestRun_FiresAndSurvivesPanics(t *testing.T) {
	s := scheduler.New(time.Second, nil)
	var ticks, panics atomic.Int32
	fired := make(chan struct{}, 8)

	s.Add(scheduler.Job{Name: "tick", Every: time.Second, Run: func(context.Context) error {
		ticks.Add(1)
		fired <- struct{}{}
		return nil
	}})
	s.Add(scheduler.Job{Name: "panic", Every: time.Second, Run: func(context.Context) error {
		panics.Add(1)
		panic("sweep blew up")
	}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(5 * time.Second):
			t.Fatalf("job did not fire (tick %d)", i)
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	if panics.Load() == 0 {
		t.Error("panicking job should still have been scheduled")
	}
}
