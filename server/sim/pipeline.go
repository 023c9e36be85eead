package sim

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// IngressSource hands the pipeline a batch of decoded packet events at the
// start of a tick (spec.md §6's ingress contract). The network boundary
// implements this; the core never reads a socket directly.
type IngressSource interface {
	Drain() []IngressEvent
}

// EgressSink receives the packet batch and keep-alive actions produced by a
// tick, and hands them to the network boundary (spec.md §4.5 stage 10).
type EgressSink interface {
	Send(batch []EgressPacket)
	KeepAlive(actions []KeepAliveAction)
}

// MobAI computes a velocity delta for a single mob from its AI and running
// speed (spec.md §4.5 stage 4). Implementations read only shared immutable
// poses and the mob's own records, so Pipeline may call many of them
// concurrently across mobs.
type MobAI interface {
	Compute(store *Store, id EntityId) (Vec3Delta, bool)
}

// Vec3Delta is a velocity delta expressed in the same single-precision space
// as Pose, kept as a distinct name from mgl32.Vec3 so stage code reads as
// "a delta", not "a position".
type Vec3Delta = [3]float32

// Pipeline is the Tick Pipeline / Stage Orchestrator of spec.md §4.5: it
// drives the fixed stage order once per tick, fanning out stages 4 and 6
// across entities with a bounded errgroup the way the teacher's
// redstone.Scheduler fans out per-chunk work, adapted to a single-tick,
// not cross-tick, parallel batch (see DESIGN.md).
type Pipeline struct {
	log *slog.Logger

	Store    *Store
	Global   *Global
	Registry *Registry

	Ingress IngressSource
	Egress  EgressSink

	AI MobAI

	// Analytics receives every Died transition the vitals stage produces, if
	// set. Publishing never blocks the tick: RecordTransition is handed the
	// transition and must return without the stage waiting on network I/O
	// (spec.md §7's "errors never cross the tick boundary" policy).
	Analytics AnalyticsSink

	maxParallel int

	spatial *SpatialIndex

	lastEgress      []EgressPacket
	lastKeepAlive   []KeepAliveAction
	lastTransitions []VitalsTransition
}

// NewPipeline wires a Pipeline from its collaborators. maxParallel bounds
// the errgroup fan-out for stages 4 and 6; 0 means "let errgroup use an
// unbounded number of goroutines bounded only by entity count".
func NewPipeline(log *slog.Logger, store *Store, global *Global, registry *Registry, ai MobAI, maxParallel int) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		log:         log,
		Store:       store,
		Global:      global,
		Registry:    registry,
		AI:          ai,
		maxParallel: maxParallel,
		spatial:     emptySpatialIndex,
	}
}

// WithAnalytics attaches a sink to receive Died transitions from the vitals
// stage (server/sim/analytics.go). Returns p for chaining at construction
// time, the same fluent shape as Server.WithTickDurationObserver.
func (p *Pipeline) WithAnalytics(sink AnalyticsSink) *Pipeline {
	p.Analytics = sink
	return p
}

// Spatial returns the BVH as of the last rebuild (stage 5), frozen for the
// remainder of the tick per spec.md §4.4 and §5.
func (p *Pipeline) Spatial() *SpatialIndex { return p.spatial }

// RunTick executes the fixed stage order of spec.md §4.5 once. now is the
// Instant to stamp keep-alive bookkeeping with. A panic escaping a stage is
// recovered here: the rest of the tick is skipped and the shutdown flag is
// set, so the driver stops before the next tick.
func (p *Pipeline) RunTick(now Instant) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("stage panicked, shutting down", "panic", r)
			p.Global.Shutdown()
		}
	}()
	tx := newTx(p.Store, p.Global)

	p.stageIngress(tx)
	p.stageClock()
	p.lastKeepAlive = append(tx.keepAlive, RunKeepAlive(tx, now)...)
	p.stageMoveLogic(tx)
	p.stageRebuildSpatialIndex()
	p.stageCollision(tx)
	p.stageApplyReactions()
	p.lastTransitions = p.stageVitals(tx)
	p.stageGenerateEgress(tx)
	p.stageEgress(tx)
}

// stageIngress drains the network boundary's queue and dispatches each event
// to its registered handler (spec.md §4.5 stage 1).
func (p *Pipeline) stageIngress(tx *Tx) {
	if p.Ingress == nil {
		return
	}
	for _, ev := range p.Ingress.Drain() {
		p.Registry.Dispatch(tx, ev)
	}
}

// stageClock advances the global tick counter (spec.md §4.5 stage 2). The
// wall-clock pacing itself lives in Clock/the driver loop, not here: this
// stage only owns the logical tick counter that other stages read.
func (p *Pipeline) stageClock() {
	p.Global.advanceTick()
}

// stageMoveLogic updates mob velocities from AI and running speed (spec.md
// §4.5 stage 4), writing only into each mob's own Reaction record so the
// fan-out is safe per the disjoint-mutable-access rule of spec.md §9.
func (p *Pipeline) stageMoveLogic(tx *Tx) {
	if p.AI == nil {
		return
	}
	var mobs []EntityId
	p.Store.QueryMobs(func(id EntityId) { mobs = append(mobs, id) })
	if len(mobs) == 0 {
		return
	}

	deltas := p.parallelCompute(mobs, func(id EntityId) (Vec3Delta, bool) {
		return p.AI.Compute(p.Store, id)
	})
	// Go map writes are not safe for concurrent access even across disjoint
	// keys, so the parallel fan-out above only computes; applying the
	// results back into the Store happens single-threaded here. The
	// "disjoint mutable access" property of spec.md §9 still holds for the
	// expensive part of the stage (AI evaluation), which is what actually
	// benefits from parallelism.
	for i, id := range mobs {
		if deltas[i].ok {
			p.Store.MutateReactionAdd(id, deltas[i].value)
		}
	}
}

// stageRebuildSpatialIndex reconstructs the BVH from every player's current
// pose (spec.md §4.5 stage 5), with no LoginState filter: see DESIGN.md's
// resolution of the matching Open Question in spec.md §9, which follows
// rebuild_player_location.rs's With<Player> query (no login-state gate)
// rather than narrowing to Play-state connections.
func (p *Pipeline) stageRebuildSpatialIndex() {
	var items []SpatialItem
	p.Store.QueryPlayers(func(id EntityId) {
		pose, ok := p.Store.Pose(id)
		if !ok {
			return
		}
		items = append(items, SpatialItem{ID: id, Box: pose.AABB()})
	})
	p.spatial = Build(items)
}

// stageCollision queries the frozen BVH for each mob's AABB and writes the
// resulting push-out delta into that mob's own Reaction record (spec.md
// §4.5 stage 6). Reads are shared/immutable (poses, the BVH); writes are
// per-entity, so this fans out the same way stageMoveLogic does.
func (p *Pipeline) stageCollision(tx *Tx) {
	var mobs []EntityId
	p.Store.QueryMobs(func(id EntityId) { mobs = append(mobs, id) })
	if len(mobs) == 0 {
		return
	}

	spatial := p.spatial
	deltas := p.parallelCompute(mobs, func(id EntityId) (Vec3Delta, bool) {
		pose, ok := p.Store.Pose(id)
		if !ok {
			return Vec3Delta{}, false
		}
		hits := spatial.Query(pose.AABB())
		if len(hits) == 0 {
			return Vec3Delta{}, false
		}
		var delta Vec3Delta
		for _, hit := range hits {
			if hit.ID == id {
				continue
			}
			delta = resolvePushOut(delta, pose.AABB(), hit.Box)
		}
		return delta, true
	})
	for i, id := range mobs {
		if deltas[i].ok {
			p.Store.MutateReactionAdd(id, deltas[i].value)
		}
	}
}

// resolvePushOut computes a simple separating-axis push-out velocity delta
// between self and other, accumulating into delta. This is a minimal
// collision response: the spec only requires that stage 6 "write
// collision-induced velocity deltas", not a specific resolution algorithm.
func resolvePushOut(delta Vec3Delta, self, other AABB) Vec3Delta {
	overlapX := min32(self.Max.X(), other.Max.X()) - max32(self.Min.X(), other.Min.X())
	overlapZ := min32(self.Max.Z(), other.Max.Z()) - max32(self.Min.Z(), other.Min.Z())
	if overlapX <= 0 || overlapZ <= 0 {
		return delta
	}
	centerSelfX := (self.Min.X() + self.Max.X()) / 2
	centerOtherX := (other.Min.X() + other.Max.X()) / 2
	centerSelfZ := (self.Min.Z() + self.Max.Z()) / 2
	centerOtherZ := (other.Min.Z() + other.Max.Z()) / 2

	if overlapX < overlapZ {
		if centerSelfX < centerOtherX {
			delta[0] -= overlapX
		} else {
			delta[0] += overlapX
		}
	} else {
		if centerSelfZ < centerOtherZ {
			delta[2] -= overlapZ
		} else {
			delta[2] += overlapZ
		}
	}
	return delta
}

// stageApplyReactions folds each entity's Reaction into its Pose via MoveBy,
// then resets Reaction to zero (spec.md §4.5 stage 7).
func (p *Pipeline) stageApplyReactions() {
	for id, reaction := range p.Store.reactions {
		if reaction.Velocity == ([3]float32{}) {
			continue
		}
		p.Store.MutatePose(id, func(pose *Pose) {
			pose.MoveBy(reaction.Velocity)
		})
	}
	for id := range p.Store.reactions {
		p.Store.reactions[id] = Reaction{}
	}
}

// stageVitals applies regeneration, pending damage, and respawn timers
// (spec.md §4.5 stage 8), returning every Dead<->Alive transition that
// occurred this tick.
func (p *Pipeline) stageVitals(tx *Tx) []VitalsTransition {
	tick := p.Global.Tick()
	var transitions []VitalsTransition

	for id, vitals := range p.Store.vitals {
		vitals.ApplyRegeneration(tick)
		p.Store.vitals[id] = vitals
	}

	for _, dmg := range tx.damage {
		imm, ok := p.Store.Immunity(dmg.Target)
		if !ok {
			continue
		}
		before, ok := p.Store.Vitals(dmg.Target)
		if !ok {
			continue
		}
		after := before
		after.Hurt(tick, dmg.Amount, p.Global.MaxHurtResistantTime, p.Global.RespawnDelayTicks, &imm)
		p.Store.SetImmunity(dmg.Target, imm)
		p.Store.SetVitals(dmg.Target, after)
		if before.State == StateAlive && after.State == StateDead {
			t := VitalsTransition{Entity: dmg.Target, Tick: tick, Died: true}
			transitions = append(transitions, t)
			if p.Analytics != nil {
				// Dispatched off the hot path: a sink write must never make
				// the vitals stage wait on network I/O (spec.md §7).
				go p.Analytics.RecordTransition(context.Background(), t)
			}
		}
	}

	for id, vitals := range p.Store.vitals {
		if vitals.TryRespawn(tick) {
			p.Store.vitals[id] = vitals
			transitions = append(transitions, VitalsTransition{Entity: id, Tick: tick, Died: false})
		}
	}

	return transitions
}

// stageGenerateEgress diffs player state and produces outgoing packet
// batches (spec.md §4.5 stage 9). Besides the packets ingress handlers queued
// through tx.Egress, this core only emits an UpdateHealth packet per vitals
// transition; keep-alive actions reach the sink separately in stageEgress,
// and movement
// diffing against a previous snapshot is left to the network boundary
// adapter, which already holds the last-sent state per connection.
func (p *Pipeline) stageGenerateEgress(tx *Tx) {
	for _, t := range p.lastTransitions {
		kind := KindUpdateHealthS2C
		tx.Egress(EgressPacket{Entity: t.Entity, Kind: kind, Payload: t})
	}
	p.lastEgress = tx.egress
}

// stageEgress hands the tick's packet batch and keep-alive actions to the
// network boundary (spec.md §4.5 stage 10).
func (p *Pipeline) stageEgress(tx *Tx) {
	if p.Egress == nil {
		return
	}
	p.Egress.Send(p.lastEgress)
	p.Egress.KeepAlive(p.lastKeepAlive)
}

// deltaResult is one entry of parallelCompute's output: the ids slice and
// the results slice share an index, so deltaResult carries no EntityId of
// its own.
type deltaResult struct {
	value Vec3Delta
	ok    bool
}

// parallelCompute evaluates fn across ids with a bounded errgroup, one
// goroutine per entity, and returns one deltaResult per id in the same
// order. Each goroutine only ever writes to its own results[i] slot — never
// to the Store — so this is safe even though a bare Go map (which backs the
// Store's record tables) would not tolerate concurrent writes across
// goroutines, disjoint keys or not. Applying the computed deltas back into
// the Store happens single-threaded in the caller, after Wait returns; see
// stageMoveLogic and stageCollision.
//
// A panicking fn is contained per spec.md §7's StageHandlerPanic policy: the
// offending entity is flagged for disconnect (LoginState -> Terminate) once
// all goroutines have finished, again applied single-threaded to avoid a
// concurrent map write from the recover path itself.
func (p *Pipeline) parallelCompute(ids []EntityId, fn func(EntityId) (Vec3Delta, bool)) []deltaResult {
	results := make([]deltaResult, len(ids))
	panicked := make([]bool, len(ids))

	var g errgroup.Group
	if p.maxParallel > 0 {
		g.SetLimit(p.maxParallel)
	}
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					panicked[i] = true
				}
			}()
			v, ok := fn(id)
			results[i] = deltaResult{value: v, ok: ok}
			return nil
		})
	}
	_ = g.Wait()

	for i, id := range ids {
		if panicked[i] {
			p.log.Warn("parallel stage entity panicked", "entity", id)
			p.Store.SetLoginState(id, Terminate)
		}
	}
	return results
}
