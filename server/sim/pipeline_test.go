package sim

import (
	"log/slog"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	store := NewStore()
	global := NewGlobal(DefaultConfig())
	registry := NewRegistry(slog.Default())
	return NewPipeline(slog.Default(), store, global, registry, nil, 0)
}

func TestRunTickAdvancesTickCounter(t *testing.T) {
	p := newTestPipeline(t)
	if p.Global.Tick() != 0 {
		t.Fatalf("Tick() = %d, want 0 before any RunTick", p.Global.Tick())
	}
	p.RunTick(0)
	if p.Global.Tick() != 1 {
		t.Fatalf("Tick() = %d, want 1 after one RunTick", p.Global.Tick())
	}
}

func TestStageRebuildSpatialIndexIncludesEveryPlayerWithAPose(t *testing.T) {
	p := newTestPipeline(t)

	playing := p.Store.Spawn()
	p.Store.SetPlayerMarker(playing)
	p.Store.SetLoginState(playing, Play)
	p.Store.SetPose(playing, NewPose(mgl32.Vec3{0, 0, 0}, 0, 0, 0.3, 1.8))

	loggingIn := p.Store.Spawn()
	p.Store.SetPlayerMarker(loggingIn)
	p.Store.SetLoginState(loggingIn, Login)
	p.Store.SetPose(loggingIn, NewPose(mgl32.Vec3{1, 0, 0}, 0, 0, 0.3, 1.8))

	noPose := p.Store.Spawn()
	p.Store.SetPlayerMarker(noPose)
	p.Store.SetLoginState(noPose, Handshake)

	p.stageRebuildSpatialIndex()

	if _, ok := p.spatial.Lookup(playing); !ok {
		t.Fatal("spatial index missing the Play-state entity")
	}
	if _, ok := p.spatial.Lookup(loggingIn); !ok {
		t.Fatal("spatial index should include a pre-Play entity that already has a Pose")
	}
	if _, ok := p.spatial.Lookup(noPose); ok {
		t.Fatal("spatial index included a player with no Pose record")
	}
}

func TestStageApplyReactionsMovesPoseAndResetsReaction(t *testing.T) {
	p := newTestPipeline(t)
	id := p.Store.Spawn()
	p.Store.SetPose(id, NewPose(mgl32.Vec3{0, 0, 0}, 0, 0, 0.3, 1.8))
	p.Store.MutateReactionAdd(id, [3]float32{2, 0, 0})

	p.stageApplyReactions()

	pose, _ := p.Store.Pose(id)
	if pose.Position.X() != 2 {
		t.Fatalf("Position.X() = %v, want 2", pose.Position.X())
	}
	reaction, ok := p.Store.Reaction(id)
	if !ok {
		t.Fatal("Reaction record missing after stageApplyReactions")
	}
	if reaction.Velocity != ([3]float32{}) {
		t.Fatalf("Velocity = %v, want zeroed out", reaction.Velocity)
	}
}

func TestStageVitalsAppliesDamageAndEmitsDeathTransition(t *testing.T) {
	p := newTestPipeline(t)
	id := p.Store.Spawn()
	p.Store.SetVitals(id, NewVitals())
	p.Store.SetImmunity(id, Immunity{})

	tx := newTx(p.Store, p.Global)
	tx.QueueDamage(DamageEvent{Target: id, Amount: MaxHealth})

	transitions := p.stageVitals(tx)

	if len(transitions) != 1 || !transitions[0].Died || transitions[0].Entity != id {
		t.Fatalf("transitions = %v, want a single Died transition for %v", transitions, id)
	}
	vitals, _ := p.Store.Vitals(id)
	if vitals.State != StateDead {
		t.Fatalf("State = %v, want StateDead", vitals.State)
	}
}

func TestStageVitalsEmitsRespawnTransition(t *testing.T) {
	p := newTestPipeline(t)
	id := p.Store.Spawn()
	p.Store.SetVitals(id, Vitals{State: StateDead, RespawnTick: 0})

	tx := newTx(p.Store, p.Global)
	transitions := p.stageVitals(tx)

	if len(transitions) != 1 || transitions[0].Died {
		t.Fatalf("transitions = %v, want a single respawn (Died=false) transition", transitions)
	}
	vitals, _ := p.Store.Vitals(id)
	if vitals.State != StateAlive {
		t.Fatalf("State = %v, want StateAlive after respawn", vitals.State)
	}
}

func TestParallelComputeReturnsEveryResultInOrder(t *testing.T) {
	p := newTestPipeline(t)
	var ids []EntityId
	for i := 0; i < 8; i++ {
		id := p.Store.Spawn()
		p.Store.SetMobMarker(id)
		ids = append(ids, id)
	}

	results := p.parallelCompute(ids, func(id EntityId) (Vec3Delta, bool) {
		return Vec3Delta{float32(id.Index()), 0, 0}, true
	})

	if len(results) != len(ids) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(ids))
	}
	for i, id := range ids {
		if !results[i].ok {
			t.Fatalf("results[%d].ok = false, want true", i)
		}
		if results[i].value[0] != float32(id.Index()) {
			t.Fatalf("results[%d].value = %v, want X=%v", i, results[i].value, id.Index())
		}
	}
}

func TestParallelComputeContainsPanicAndFlagsEntity(t *testing.T) {
	p := newTestPipeline(t)
	ok := p.Store.Spawn()
	boom := p.Store.Spawn()
	p.Store.SetLoginState(ok, Play)
	p.Store.SetLoginState(boom, Play)

	results := p.parallelCompute([]EntityId{ok, boom}, func(id EntityId) (Vec3Delta, bool) {
		if id == boom {
			panic("simulated stage failure")
		}
		return Vec3Delta{1, 0, 0}, true
	})

	if !results[0].ok {
		t.Fatal("the non-panicking entity's result was dropped")
	}
	state, _ := p.Store.LoginState(boom)
	if state != Terminate {
		t.Fatalf("LoginState(boom) = %v, want Terminate after its worker panicked", state)
	}
	okState, _ := p.Store.LoginState(ok)
	if okState != Play {
		t.Fatalf("LoginState(ok) = %v, want unaffected Play", okState)
	}
}
