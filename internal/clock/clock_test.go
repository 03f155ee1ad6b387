package clock

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clk := &RealClock{}
	before := time.Now()
	actual := clk.Now()
	after := time.Now()

	if actual.Before(before) || actual.After(after) {
		t.Errorf("RealClock.Now() = %v, want between %v and %v", actual, before, after)
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	clk := NewFakeClock(start)

	if !clk.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", clk.Now(), start)
	}

	clk.Advance(90 * time.Second)
	if got := Since(clk, start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}

	later := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(later)
	if !clk.Now().Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", clk.Now(), later)
	}
}

func TestFakeClock_ConcurrentAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := NewFakeClock(start)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clk.Advance(time.Second)
			_ = clk.Now()
		}()
	}
	wg.Wait()

	if got := Since(clk, start); got != 50*time.Second {
		t.Errorf("expected 50s after concurrent advances, got %v", got)
	}
}
