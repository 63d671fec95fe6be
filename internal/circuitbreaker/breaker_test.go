package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New("test", threshold, time.Minute).WithClock(clock.now), clock
}

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b, _ := newTestBreaker(3)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected closed circuit to allow, got %v", err)
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)

	b.Record(errUpstream)
	b.Record(errUpstream)
	if err := b.Allow(); err != nil {
		t.Fatal("should still allow before threshold")
	}

	b.Record(errUpstream)
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen after 3 failures, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State())
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3)

	b.Record(errUpstream)
	b.Record(errUpstream)
	b.Record(nil)
	b.Record(errUpstream)
	b.Record(errUpstream)

	if b.State() != StateClosed {
		t.Fatalf("failures are consecutive; expected StateClosed, got %v", b.State())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b, clock := newTestBreaker(2)

	b.Record(errUpstream)
	b.Record(errUpstream)
	if b.Allow() == nil {
		t.Fatal("should be open")
	}

	clock.advance(time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("should allow probe after cooldown, got %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State())
	}
	if b.Allow() == nil {
		t.Fatal("should reject a second call while probing")
	}

	b.Record(nil)
	if b.State() != StateClosed {
		t.Fatalf("successful probe should close, got %v", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b, clock := newTestBreaker(2)

	b.Record(errUpstream)
	b.Record(errUpstream)
	clock.advance(time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatal(err)
	}

	b.Record(errUpstream)
	if b.State() != StateOpen {
		t.Fatalf("failed probe should reopen, got %v", b.State())
	}

	clock.advance(30 * time.Second)
	if b.Allow() == nil {
		t.Fatal("cooldown restarts when the probe fails")
	}
}

func TestBreaker_WaitHonorsContext(t *testing.T) {
	b, _ := newTestBreaker(1)
	b.Record(errUpstream)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := b.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while open, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State())
	}
}

func TestBreaker_WaitReturnsAfterCooldown(t *testing.T) {
	b := New("wait", 1, 30*time.Millisecond)
	b.Record(errUpstream)

	start := time.Now()
	if err := b.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Fatalf("Wait returned after %v, before the cooldown", elapsed)
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State())
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := New("defaults", 0, 0)
	if b.threshold != 5 || b.cooldown != 30*time.Second {
		t.Fatalf("unexpected defaults: threshold=%d cooldown=%v", b.threshold, b.cooldown)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestBreaker_Concurrent(t *testing.T) {
	b := New("concurrent", 10, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if b.Allow() == nil {
				if n%2 == 0 {
					b.Record(errUpstream)
				} else {
					b.Record(nil)
				}
			}
			_ = b.State()
		}(i)
	}
	wg.Wait()
}
