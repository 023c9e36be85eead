package sim

import "sync/atomic"

// Global is the process-wide shared context of spec.md §3: current tick,
// atomic player count, a snapshot of the tunables relevant to per-tick
// logic, and the shutdown flag. Exactly one instance exists per driver,
// mirroring the single atomic TPS/tick bookkeeping the teacher keeps on its
// *World (server/world/world.go's w.tps atomic.Uint64, w.set.CurrentTick).
type Global struct {
	// tick is written exactly once per tick, by the clock/time-update stage
	// (spec.md §4.5 stage 2). Read with Tick().
	tick atomic.Int64

	// playerCount is readable without synchronization from any goroutine.
	playerCount atomic.Int64

	// shutdown is polled by the driver between ticks (spec.md §4.7). Only
	// external collaborators (signal handling) or an unrecoverable
	// invariant violation may set it.
	shutdown atomic.Bool

	CompressionThreshold int
	MaxHurtResistantTime int64
	RespawnDelayTicks    int64
}

// NewGlobal constructs a Global from the given Config snapshot.
func NewGlobal(cfg Config) *Global {
	g := &Global{
		CompressionThreshold: cfg.CompressionThreshold,
		MaxHurtResistantTime: cfg.MaxHurtResistantTime,
		RespawnDelayTicks:    cfg.RespawnDelayTicksCfg,
	}
	return g
}

// Tick returns the current tick counter.
func (g *Global) Tick() int64 { return g.tick.Load() }

// advanceTick increments the tick counter. Called exactly once per tick by
// the clock/time-update stage.
func (g *Global) advanceTick() int64 { return g.tick.Add(1) }

// PlayerCount returns the current number of connected players.
func (g *Global) PlayerCount() int64 { return g.playerCount.Load() }

// addPlayer adjusts the player count by delta (positive on join, negative on
// disconnect).
func (g *Global) addPlayer(delta int64) { g.playerCount.Add(delta) }

// ShuttingDown reports whether the shutdown flag has been set.
func (g *Global) ShuttingDown() bool { return g.shutdown.Load() }

// Shutdown sets the shutdown flag. Safe to call from any goroutine,
// including an external signal handler; the driver polls it between ticks
// and always finishes the tick in progress first (spec.md §4.7).
func (g *Global) Shutdown() { g.shutdown.Store(true) }
