package sim

import (
	"context"
	"log/slog"
	"time"
)

// Server drives Clock, Pipeline, and Global together into the fixed-rate
// game loop of spec.md §4.1 and §4.7, the same role the teacher's
// ticker.tickLoop plays for *world.World, adapted to the conservative-slack
// pacer of §4.1 rather than a plain time.Ticker: WaitDuration is asked fresh
// every tick instead of relying on a ticker channel to self-correct drift.
type Server struct {
	log *slog.Logger

	clock    *Clock
	pipeline *Pipeline
	global   *Global

	stats        func(StatsEvent)
	tickDuration func(time.Duration)
}

// NewServer wires a Server from its already-constructed collaborators. stats,
// if non-nil, receives every StatsEvent the Clock emits (spec.md §4.1); pass
// nil to discard them, or a metrics adapter's ObserveTick method (see
// server/sim/metrics.go) in production wiring.
func NewServer(log *slog.Logger, clock *Clock, pipeline *Pipeline, global *Global, stats func(StatsEvent)) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{log: log, clock: clock, pipeline: pipeline, global: global, stats: stats}
}

// WithTickDurationObserver attaches a callback invoked with the wall-clock
// duration of every tick, independent of the 1s/5s StatsEvent window; wired
// to a metrics adapter's ObserveTickDuration for per-tick Prometheus
// histogram buckets.
func (s *Server) WithTickDurationObserver(fn func(time.Duration)) *Server {
	s.tickDuration = fn
	return s
}

// Run drives ticks until ctx is cancelled or Shutdown is called on the
// Server's Global. Exactly one tick is ever in flight; a tick already in
// progress always finishes before Run observes cancellation, matching
// spec.md §4.7's "finish current tick, then stop" contract.
func (s *Server) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil || s.global.ShuttingDown() {
			s.log.Info("simulation loop stopping", "tick", s.global.Tick())
			return
		}

		now := time.Now()
		s.clock.BeginTick(now)

		tickStart := now
		s.pipeline.RunTick(Instant(now.UnixMilli()))
		duration := time.Since(tickStart)
		if s.tickDuration != nil {
			s.tickDuration(duration)
		}

		if ev, emit := s.clock.EndTick(duration); emit && s.stats != nil {
			s.stats(ev)
		}

		wait, ok := s.clock.WaitDuration(time.Now())
		if !ok {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// Shutdown requests the loop stop after the in-flight tick, if any, finishes.
func (s *Server) Shutdown() { s.global.Shutdown() }
