package sim

import (
	"log/slog"
	"testing"
	"time"
)

func newTestClock(t *testing.T) *Clock {
	t.Helper()
	return NewClock(slog.Default(), DefaultConfig())
}

func TestClockTickOnStartsAtZero(t *testing.T) {
	c := newTestClock(t)
	if c.TickOn() != 0 {
		t.Fatalf("TickOn() = %d, want 0", c.TickOn())
	}
}

func TestClockEndTickAdvancesTickOn(t *testing.T) {
	c := newTestClock(t)
	c.EndTick(time.Millisecond)
	if c.TickOn() != 1 {
		t.Fatalf("TickOn() = %d, want 1", c.TickOn())
	}
}

func TestClockEmitsStatsOnceRingIsFull(t *testing.T) {
	c := newTestClock(t)
	var lastEmit bool
	for i := 0; i < DefaultMsptHistorySize; i++ {
		_, emit := c.EndTick(10 * time.Millisecond)
		lastEmit = emit
		if i < DefaultMsptHistorySize-1 && emit {
			t.Fatalf("EndTick emitted a StatsEvent before the ring was full (iteration %d)", i)
		}
	}
	if !lastEmit {
		t.Fatal("EndTick did not emit a StatsEvent once the ring was full")
	}
}

func TestClockMeanReflectsRecordedDurations(t *testing.T) {
	c := newTestClock(t)
	for i := 0; i < DefaultMsptHistorySize-1; i++ {
		c.EndTick(10 * time.Millisecond)
	}
	ev, emit := c.EndTick(30 * time.Millisecond)
	if !emit {
		t.Fatal("expected StatsEvent on the last fill of the ring")
	}
	// (99 * 10 + 30) / 100 = 10.2
	want := 10.2
	if diff := ev.Mean5s - want; diff > 0.001 || diff < -0.001 {
		t.Fatalf("Mean5s = %v, want %v", ev.Mean5s, want)
	}
}

func TestClockWaitDurationEmptyHistory(t *testing.T) {
	c := newTestClock(t)
	if _, ok := c.WaitDuration(time.Now()); ok {
		t.Fatal("WaitDuration with no recorded tick-starts should return ok=false")
	}
}

func TestClockWaitDurationCapsAtSlackCap(t *testing.T) {
	c := newTestClock(t)
	start := time.Now()
	c.BeginTick(start)
	c.BeginTick(start)
	// Two tick starts at the same instant put the target two full budgets
	// (100 ms) ahead, so slackFactor*remaining (80 ms) exceeds slackCap and
	// must be clamped.
	wait, ok := c.WaitDuration(start)
	if !ok {
		t.Fatal("WaitDuration returned ok=false unexpectedly")
	}
	if wait != slackCap {
		t.Fatalf("wait = %v, want capped at %v", wait, slackCap)
	}
}

func TestClockWaitDurationFalseWhenBudgetExhausted(t *testing.T) {
	c := newTestClock(t)
	start := time.Now()
	c.BeginTick(start)
	past := start.Add(2 * fullTickBudget)
	if _, ok := c.WaitDuration(past); ok {
		t.Fatal("WaitDuration should return ok=false once the tick budget has elapsed")
	}
}
