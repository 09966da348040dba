package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newMemoryTracker(now time.Time) *Tracker {
	tracker := NewTracker(nil, zerolog.Nop())
	tracker.now = func() time.Time { return now }
	return tracker
}

func TestTracker_DefaultStateAllows(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())

	decision, err := tracker.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !decision.Allowed {
		t.Error("empty tracker should allow requests")
	}
}

func TestTracker_RecordTooManyRequests(t *testing.T) {
	now := time.Now()
	tracker := newMemoryTracker(now)
	ctx := context.Background()

	headers := http.Header{}
	headers.Set("Retry-After", "20")

	block, err := tracker.RecordTooManyRequests(ctx, headers)
	if err != nil {
		t.Fatalf("RecordTooManyRequests() error = %v", err)
	}
	if block != 20*time.Second {
		t.Errorf("block = %v, want 20s", block)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if state.Hits != 1 {
		t.Errorf("Hits = %d, want 1", state.Hits)
	}
	if !state.Blocked(now) {
		t.Error("state should be blocked after a 429")
	}

	decision, err := tracker.Check(ctx)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if decision.Allowed {
		t.Error("Check() should not allow requests while blocked")
	}
	if decision.Wait != 20*time.Second {
		t.Errorf("Wait = %v, want 20s", decision.Wait)
	}
}

func TestTracker_ShorterRetryAfterKeepsLongerBlock(t *testing.T) {
	now := time.Now()
	tracker := newMemoryTracker(now)
	ctx := context.Background()

	long := http.Header{}
	long.Set("Retry-After", "60")
	short := http.Header{}
	short.Set("Retry-After", "5")

	if _, err := tracker.RecordTooManyRequests(ctx, long); err != nil {
		t.Fatal(err)
	}
	if _, err := tracker.RecordTooManyRequests(ctx, short); err != nil {
		t.Fatal(err)
	}

	state, _ := tracker.GetState(ctx)
	if got := state.Remaining(now); got != 60*time.Second {
		t.Errorf("Remaining() = %v, want 60s", got)
	}
	if state.Hits != 2 {
		t.Errorf("Hits = %d, want 2", state.Hits)
	}
}

func TestTracker_WaitTooLong(t *testing.T) {
	tracker := newMemoryTracker(time.Now())
	headers := http.Header{}
	headers.Set("Retry-After", "120")
	if _, err := tracker.RecordTooManyRequests(context.Background(), headers); err != nil {
		t.Fatal(err)
	}

	err := tracker.Wait(context.Background(), 10*time.Second)
	if !errors.Is(err, ErrBlocked) {
		t.Errorf("Wait() error = %v, want ErrBlocked", err)
	}
}

func TestTracker_WaitShortWindow(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())
	tracker.mu.Lock()
	tracker.local.BlockedUntil = time.Now().Add(50 * time.Millisecond)
	tracker.mu.Unlock()

	start := time.Now()
	if err := tracker.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("Wait() returned after %v, expected to wait for the window", elapsed)
	}
}

func TestTracker_WaitContextCancelled(t *testing.T) {
	tracker := NewTracker(nil, zerolog.Nop())
	tracker.mu.Lock()
	tracker.local.BlockedUntil = time.Now().Add(5 * time.Second)
	tracker.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tracker.Wait(ctx, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want context.DeadlineExceeded", err)
	}
}
