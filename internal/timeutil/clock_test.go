package timeutil

import (
	"context"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	c := RealClock{}
	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestRealClock_WaitElapses(t *testing.T) {
	c := RealClock{}
	start := time.Now()
	if err := c.Wait(context.Background(), 5*time.Millisecond); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("Wait returned after %v, want >= 5ms", elapsed)
	}
}

func TestRealClock_WaitCancelled(t *testing.T) {
	c := RealClock{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Wait(ctx, time.Hour); err != context.Canceled {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestRealClock_WaitZero(t *testing.T) {
	if err := (RealClock{}).Wait(context.Background(), 0); err != nil {
		t.Errorf("Wait(0) error = %v", err)
	}
}

func TestMockClock_Now(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(fixed)

	if got := c.Now(); !got.Equal(fixed) {
		t.Errorf("Now() = %v, want %v", got, fixed)
	}
}

func TestMockClock_SetAndAdvance(t *testing.T) {
	c := NewMockClock(time.Time{})
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c.Set(fixed)
	c.Advance(time.Minute)

	if got := c.Since(fixed); got != time.Minute {
		t.Errorf("Since() = %v, want 1m", got)
	}
}

func TestMockClock_WaitRecordsAndAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	for _, d := range []time.Duration{time.Second, 2 * time.Second} {
		if err := c.Wait(context.Background(), d); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}

	waits := c.Waits()
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Errorf("Waits() = %v, want [1s 2s]", waits)
	}
	if got := c.Since(start); got != 3*time.Second {
		t.Errorf("clock advanced %v, want 3s", got)
	}
}

func TestMockClock_WaitCancelled(t *testing.T) {
	c := NewMockClock(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Wait(ctx, time.Second); err != context.Canceled {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
	if len(c.Waits()) != 0 {
		t.Error("cancelled wait should not be recorded")
	}
}
