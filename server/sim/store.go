package sim

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/segmentio/fasthash/fnv1a"
)

// AccessSet is a bitset of record kinds a stage declares it reads or writes.
// Each Handler (server/sim/stage.go) carries two AccessSets (reads, writes)
// and Overlaps reports whether two sets share a record kind. The Registry
// and Pipeline do not consult them: stages and handlers run one at a time on
// the driver goroutine, and nothing checks declared sets for overlap.
type AccessSet uint32

const (
	AccessPose AccessSet = 1 << iota
	AccessVitals
	AccessImmunity
	AccessKeepAlive
	AccessReaction
	AccessRunningSpeed
	AccessLoginState
	AccessName
	AccessUUID
	AccessMarkers
)

// Overlaps reports whether a and b share any record kind.
func (a AccessSet) Overlaps(b AccessSet) bool { return a&b != 0 }

// Store is the Entity Attribute Store of spec.md §4.2: an ECS-style mapping
// from EntityId to small, independently-borrowable attribute records. Each
// record kind lives in its own map so that queries over disjoint kinds never
// contend, matching the "per-entity write-scoped record" parallelism rule of
// spec.md §4.5 and §9.
//
// Store itself is not safe for concurrent mutation of the *same* record kind.
// The Pipeline runs its stages one at a time on the driver goroutine, and its
// parallel fan-outs only compute results, never writing to the Store.
type Store struct {
	nextIndex   uint32
	generations []uint32
	freeList    []uint32
	alive       map[uint32]struct{}

	names         map[EntityId]Name
	uuids         map[EntityId]UUID
	loginStates   map[EntityId]LoginState
	poses         map[EntityId]Pose
	vitals        map[EntityId]Vitals
	immunities    map[EntityId]Immunity
	keepAlives    map[EntityId]KeepAlive
	reactions     map[EntityId]Reaction
	runningSpeeds map[EntityId]RunningSpeed
	playerMarkers map[EntityId]struct{}
	mobMarkers    map[EntityId]struct{}
	targetables   map[EntityId]struct{}

	byUUID *uuidIndex
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		// Slot 0 is reserved and never marked alive, so the zero EntityId
		// never names a spawned entity.
		nextIndex:     1,
		generations:   []uint32{0},
		alive:         make(map[uint32]struct{}),
		names:         make(map[EntityId]Name),
		uuids:         make(map[EntityId]UUID),
		loginStates:   make(map[EntityId]LoginState),
		poses:         make(map[EntityId]Pose),
		vitals:        make(map[EntityId]Vitals),
		immunities:    make(map[EntityId]Immunity),
		keepAlives:    make(map[EntityId]KeepAlive),
		reactions:     make(map[EntityId]Reaction),
		runningSpeeds: make(map[EntityId]RunningSpeed),
		playerMarkers: make(map[EntityId]struct{}),
		mobMarkers:    make(map[EntityId]struct{}),
		targetables:   make(map[EntityId]struct{}),
		byUUID:        newUUIDIndex(),
	}
}

// Spawn returns a fresh EntityId, reusing a free slot's index with a bumped
// generation when one is available so that stale handles never alias a new
// occupant (spec.md §3).
func (s *Store) Spawn() EntityId {
	var idx uint32
	if n := len(s.freeList); n > 0 {
		idx = s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
	} else {
		idx = s.nextIndex
		s.nextIndex++
		s.generations = append(s.generations, 0)
	}
	s.alive[idx] = struct{}{}
	return EntityId{index: idx, generation: s.generations[idx]}
}

// Destroy removes every attribute record for id and releases its slot for
// reuse under a bumped generation.
func (s *Store) Destroy(id EntityId) {
	if !s.valid(id) {
		return
	}
	delete(s.alive, id.index)
	if u, ok := s.uuids[id]; ok {
		s.byUUID.remove(u.Value, id)
	}
	delete(s.names, id)
	delete(s.uuids, id)
	delete(s.loginStates, id)
	delete(s.poses, id)
	delete(s.vitals, id)
	delete(s.immunities, id)
	delete(s.keepAlives, id)
	delete(s.reactions, id)
	delete(s.runningSpeeds, id)
	delete(s.playerMarkers, id)
	delete(s.mobMarkers, id)
	delete(s.targetables, id)

	s.generations[id.index]++
	s.freeList = append(s.freeList, id.index)
}

func (s *Store) valid(id EntityId) bool {
	if int(id.index) >= len(s.generations) {
		return false
	}
	if _, ok := s.alive[id.index]; !ok {
		return false
	}
	return s.generations[id.index] == id.generation
}

// Alive reports whether id still refers to a live entity.
func (s *Store) Alive(id EntityId) bool { return s.valid(id) }

// --- typed accessors, the Go-idiomatic rendering of get<R>/get_mut<R> ---
// Each record kind gets its own getter/setter/remover pair rather than a
// single reflective generic, matching the way the teacher attaches typed
// components directly as struct fields on its EntityHandle rather than via a
// generic component table.

func (s *Store) Name(id EntityId) (Name, bool)   { v, ok := s.names[id]; return v, ok }
func (s *Store) SetName(id EntityId, v Name)     { s.names[id] = v }
func (s *Store) RemoveName(id EntityId)          { delete(s.names, id) }

func (s *Store) UUID(id EntityId) (UUID, bool) { v, ok := s.uuids[id]; return v, ok }
func (s *Store) SetUUID(id EntityId, v UUID) {
	if old, ok := s.uuids[id]; ok {
		s.byUUID.remove(old.Value, id)
	}
	s.uuids[id] = v
	s.byUUID.put(v.Value, id)
}
func (s *Store) RemoveUUID(id EntityId) {
	if old, ok := s.uuids[id]; ok {
		s.byUUID.remove(old.Value, id)
	}
	delete(s.uuids, id)
}

// ByUUID looks up the entity id registered for a UUID, the top-level
// singleton lookup table described in spec.md §9.
func (s *Store) ByUUID(u uuid.UUID) (EntityId, bool) { return s.byUUID.get(u) }

func (s *Store) LoginState(id EntityId) (LoginState, bool) { v, ok := s.loginStates[id]; return v, ok }
func (s *Store) SetLoginState(id EntityId, v LoginState)   { s.loginStates[id] = v }
func (s *Store) RemoveLoginState(id EntityId)              { delete(s.loginStates, id) }

func (s *Store) Pose(id EntityId) (Pose, bool) { v, ok := s.poses[id]; return v, ok }
func (s *Store) SetPose(id EntityId, v Pose)   { s.poses[id] = v }
func (s *Store) RemovePose(id EntityId)        { delete(s.poses, id) }

// MutatePose applies fn to the Pose attached to id, if any, and writes the
// result back. This is the Go rendering of get_mut<Pose>: callers that need
// to call MoveBy/MoveTo (which require a pointer receiver to keep the AABB
// invariant atomic) go through this rather than copying the Pose out and
// back in manually.
func (s *Store) MutatePose(id EntityId, fn func(*Pose)) bool {
	v, ok := s.poses[id]
	if !ok {
		return false
	}
	fn(&v)
	s.poses[id] = v
	return true
}

func (s *Store) Vitals(id EntityId) (Vitals, bool) { v, ok := s.vitals[id]; return v, ok }
func (s *Store) SetVitals(id EntityId, v Vitals)   { s.vitals[id] = v }
func (s *Store) RemoveVitals(id EntityId)          { delete(s.vitals, id) }

func (s *Store) MutateVitals(id EntityId, fn func(*Vitals)) bool {
	v, ok := s.vitals[id]
	if !ok {
		return false
	}
	fn(&v)
	s.vitals[id] = v
	return true
}

func (s *Store) Immunity(id EntityId) (Immunity, bool) { v, ok := s.immunities[id]; return v, ok }
func (s *Store) SetImmunity(id EntityId, v Immunity)   { s.immunities[id] = v }
func (s *Store) RemoveImmunity(id EntityId)            { delete(s.immunities, id) }

func (s *Store) MutateImmunity(id EntityId, fn func(*Immunity)) bool {
	v, ok := s.immunities[id]
	if !ok {
		return false
	}
	fn(&v)
	s.immunities[id] = v
	return true
}

func (s *Store) KeepAlive(id EntityId) (KeepAlive, bool) { v, ok := s.keepAlives[id]; return v, ok }
func (s *Store) SetKeepAlive(id EntityId, v KeepAlive)   { s.keepAlives[id] = v }
func (s *Store) RemoveKeepAlive(id EntityId)             { delete(s.keepAlives, id) }

func (s *Store) Reaction(id EntityId) (Reaction, bool) { v, ok := s.reactions[id]; return v, ok }
func (s *Store) SetReaction(id EntityId, v Reaction)   { s.reactions[id] = v }
func (s *Store) RemoveReaction(id EntityId)            { delete(s.reactions, id) }

// MutateReactionAdd accumulates delta into id's Reaction velocity, creating
// the record if the entity doesn't carry one yet. Used by the move-logic
// and collision stages (spec.md §4.5 stages 4 and 6), both of which only
// ever add to this record, never replace it outright, since either stage
// may run before the other contributes its own delta for the same tick.
func (s *Store) MutateReactionAdd(id EntityId, delta [3]float32) {
	r := s.reactions[id]
	r.Velocity = mgl32.Vec3{
		r.Velocity.X() + delta[0],
		r.Velocity.Y() + delta[1],
		r.Velocity.Z() + delta[2],
	}
	s.reactions[id] = r
}

func (s *Store) RunningSpeed(id EntityId) (RunningSpeed, bool) {
	v, ok := s.runningSpeeds[id]
	return v, ok
}
func (s *Store) SetRunningSpeed(id EntityId, v RunningSpeed) { s.runningSpeeds[id] = v }
func (s *Store) RemoveRunningSpeed(id EntityId)              { delete(s.runningSpeeds, id) }

func (s *Store) IsPlayer(id EntityId) bool       { _, ok := s.playerMarkers[id]; return ok }
func (s *Store) SetPlayerMarker(id EntityId)     { s.playerMarkers[id] = struct{}{} }
func (s *Store) RemovePlayerMarker(id EntityId)  { delete(s.playerMarkers, id) }

func (s *Store) IsMob(id EntityId) bool      { _, ok := s.mobMarkers[id]; return ok }
func (s *Store) SetMobMarker(id EntityId)    { s.mobMarkers[id] = struct{}{} }
func (s *Store) RemoveMobMarker(id EntityId) { delete(s.mobMarkers, id) }

func (s *Store) IsTargetable(id EntityId) bool      { _, ok := s.targetables[id]; return ok }
func (s *Store) SetTargetable(id EntityId)          { s.targetables[id] = struct{}{} }
func (s *Store) RemoveTargetable(id EntityId)       { delete(s.targetables, id) }

// QueryPlayers iterates every entity carrying a PlayerMarker, yielding its id
// and a disjoint mutable view isn't provided directly here (Go has no borrow
// checker); callers use the per-kind Mutate* helpers above inside the loop,
// which is safe because the Pipeline never runs two stages concurrently.
func (s *Store) QueryPlayers(fn func(EntityId)) {
	for id := range s.playerMarkers {
		fn(id)
	}
}

// QueryMobs iterates every entity carrying a MobMarker.
func (s *Store) QueryMobs(fn func(EntityId)) {
	for id := range s.mobMarkers {
		fn(id)
	}
}

// uuidShards is the number of shards the UUID lookup table is split across.
// Sized for the ~10,000 concurrent connections target of spec.md §1 so that
// a single shard's mutex is never the bottleneck during a join/leave storm.
const uuidShards = 64

// uuidIndex is the top-level UUID->EntityId singleton lookup table described
// in spec.md §9 ("Lookup tables ... are maintained as top-level singleton
// resources"), sharded with fnv1a the way a high-connection-count server
// shards connection tables to avoid one global lock becoming a hotspot.
type uuidShard struct {
	mu sync.RWMutex
	m  map[uuid.UUID]EntityId
}

type uuidIndex struct {
	shards [uuidShards]uuidShard
}

func newUUIDIndex() *uuidIndex {
	idx := &uuidIndex{}
	for i := range idx.shards {
		idx.shards[i].m = make(map[uuid.UUID]EntityId)
	}
	return idx
}

func (u *uuidIndex) shardFor(id uuid.UUID) *uuidShard {
	h := fnv1a.HashBytes64(id[:])
	return &u.shards[h%uuidShards]
}

func (u *uuidIndex) put(id uuid.UUID, entity EntityId) {
	shard := u.shardFor(id)
	shard.mu.Lock()
	shard.m[id] = entity
	shard.mu.Unlock()
}

func (u *uuidIndex) remove(id uuid.UUID, entity EntityId) {
	shard := u.shardFor(id)
	shard.mu.Lock()
	if cur, ok := shard.m[id]; ok && cur == entity {
		delete(shard.m, id)
	}
	shard.mu.Unlock()
}

func (u *uuidIndex) get(id uuid.UUID) (EntityId, bool) {
	shard := u.shardFor(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	v, ok := shard.m[id]
	return v, ok
}
