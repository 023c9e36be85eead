package sim

import (
	"log/slog"
	"time"
)

// tickTarget is the nominal simulation rate (spec.md §4.1).
const tickTarget = 20

// fullTickBudget is the duration of a single tick at 20 Hz. WaitDuration
// targets one budget per recorded tick start after the oldest one, and warns
// "tick took full 50 ms" once that target has already passed.
const fullTickBudget = time.Second / tickTarget

// warnThreshold is the per-tick duration above which a tick emits a warning
// without altering pacing (spec.md §4.1).
const warnThreshold = 60 * time.Millisecond

// slackFactor and slackCap implement the conservative-slack heuristic from
// spec.md §4.1 and §9: oversleeping is worse to avoid than undersleeping, so
// the pacer only ever sleeps 0.8 of the remaining budget, capped at 47 ms.
const (
	slackFactor = 0.8
	slackCap    = 47 * time.Millisecond
)

// Clock drives the fixed-rate game loop. It tracks up to tickHistorySize
// recent tick-start instants for wait_duration, and up to msptHistorySize
// recent tick durations for the moving-average stats event.
type Clock struct {
	log *slog.Logger

	tickHistorySize int
	msptHistorySize int

	// starts is a ring of recent tick-start instants, oldest first.
	starts []time.Time

	// durations is a ring of recent tick durations in milliseconds.
	durations []float64
	durPos    int
	durFull   bool

	tickOn int64
}

// NewClock constructs a Clock using the history sizes from cfg, defaulting to
// spec.md §6's values (100) when cfg supplies zero.
func NewClock(log *slog.Logger, cfg Config) *Clock {
	tickHistory := cfg.TickHistorySize
	if tickHistory <= 0 {
		tickHistory = DefaultTickHistorySize
	}
	msptHistory := cfg.MsptHistorySize
	if msptHistory <= 0 {
		msptHistory = DefaultMsptHistorySize
	}
	if log == nil {
		log = slog.Default()
	}
	return &Clock{
		log:             log,
		tickHistorySize: tickHistory,
		msptHistorySize: msptHistory,
		durations:       make([]float64, msptHistory),
	}
}

// TickOn returns the strictly monotonic tick counter, incremented once per
// tick after stats are recorded (spec.md §4.1).
func (c *Clock) TickOn() int64 { return c.tickOn }

// StatsEvent carries the 1 s and 5 s moving averages emitted once the mspt
// ring is full, per spec.md §4.1.
type StatsEvent struct {
	Mean1s float64
	Mean5s float64
}

// BeginTick records the start instant of a new tick, evicting the oldest
// entry from the history window once it is full.
func (c *Clock) BeginTick(now time.Time) {
	if len(c.starts) >= c.tickHistorySize {
		c.starts = c.starts[1:]
	}
	c.starts = append(c.starts, now)
}

// EndTick records the wall-clock duration of the tick that just completed,
// emits a StatsEvent once the mspt ring is full, warns on slow ticks, and
// advances the tick counter. It must be called exactly once per tick, after
// BeginTick and after all stages have run.
func (c *Clock) EndTick(duration time.Duration) (StatsEvent, bool) {
	if duration > warnThreshold {
		c.log.Warn("tick exceeded budget", "duration_ms", duration.Milliseconds())
	}

	c.durations[c.durPos] = float64(duration.Nanoseconds()) / 1e6
	c.durPos = (c.durPos + 1) % len(c.durations)
	if c.durPos == 0 {
		c.durFull = true
	}

	var (
		ev   StatsEvent
		emit bool
	)
	if c.durFull {
		ev = StatsEvent{
			Mean1s: c.mean(20),
			Mean5s: c.mean(len(c.durations)),
		}
		emit = true
	}

	c.tickOn++
	return ev, emit
}

// mean averages the last n recorded tick durations (n capped at the ring
// size), walking backwards from the most recently written sample.
func (c *Clock) mean(n int) float64 {
	size := len(c.durations)
	if n > size {
		n = size
	}
	sum := 0.0
	idx := c.durPos
	for i := 0; i < n; i++ {
		idx = (idx - 1 + size) % size
		sum += c.durations[idx]
	}
	return sum / float64(n)
}

// WaitDuration implements spec.md §4.1's pacing contract: given the window
// of recent tick-start instants, it returns the duration to sleep before the
// next tick, or (0, false) if the pacer should skip sleeping entirely
// because the target instant has already passed.
func (c *Clock) WaitDuration(now time.Time) (time.Duration, bool) {
	if len(c.starts) == 0 {
		return 0, false
	}
	first := c.starts[0]
	count := len(c.starts)
	target := first.Add(time.Duration(count) * fullTickBudget)

	remaining := target.Sub(now)
	if remaining <= 0 {
		c.log.Warn("tick took full 50 ms")
		return 0, false
	}

	wait := time.Duration(float64(remaining) * slackFactor)
	if wait > slackCap {
		wait = slackCap
	}
	return wait, true
}
