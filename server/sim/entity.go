package sim

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// EntityId is an opaque, generationally-versioned identifier for an entity.
// Reused slots do not alias across lifecycles: once an entity is destroyed,
// its index may be recycled but the generation is bumped, so a stale EntityId
// held by a caller will never resolve to the new occupant.
type EntityId struct {
	index      uint32
	generation uint32
}

// Index returns the slot index of the identifier. It is meaningful only in
// combination with Generation.
func (id EntityId) Index() uint32 { return id.index }

// Generation returns the generation counter of the identifier.
func (id EntityId) Generation() uint32 { return id.generation }

// IsZero reports whether id is the zero value, which is never a valid
// spawned entity.
func (id EntityId) IsZero() bool { return id == EntityId{} }

// LoginState is the coarse phase of a connection's protocol lifecycle. It is
// monotonic over Handshake -> Status -> Login -> TransitioningPlay -> Play;
// Terminate is absorbing.
type LoginState uint8

const (
	Handshake LoginState = iota
	Status
	Login
	TransitioningPlay
	Play
	Terminate
)

// String implements fmt.Stringer for logging.
func (s LoginState) String() string {
	switch s {
	case Handshake:
		return "Handshake"
	case Status:
		return "Status"
	case Login:
		return "Login"
	case TransitioningPlay:
		return "TransitioningPlay"
	case Play:
		return "Play"
	case Terminate:
		return "Terminate"
	default:
		return "Unknown"
	}
}

// CanAdvanceTo reports whether a transition from s to next is legal. The
// progression is acyclic except for self-loops; Terminate is absorbing.
func (s LoginState) CanAdvanceTo(next LoginState) bool {
	if s == next {
		return true
	}
	if s == Terminate {
		return false
	}
	return next == s+1 || next == Terminate
}

// Name is an immutable attribute record set at entity creation and never
// mutated afterwards.
type Name struct {
	Value string
}

// UUID is a stable-for-lifetime 128-bit entity identifier, backed by
// google/uuid the way the teacher's player and respawn paths identify
// connections (server/player/respawn_test.go uses uuid.New() as the entity
// handle id).
type UUID struct {
	Value uuid.UUID
}

// PlayerMarker tags an entity as a player. Presence-only.
type PlayerMarker struct{}

// MobMarker tags an entity as a mob. Presence-only.
type MobMarker struct{}

// Targetable tags an entity as a valid target for mob AI. Presence-only.
type Targetable struct{}

// AABB is an axis-aligned bounding box with single-precision coordinates, a
// deliberate choice for cache locality per spec.md §9; parity with the
// reference server's double precision is not guaranteed.
type AABB struct {
	Min, Max mgl32.Vec3
}

// Intersects reports whether a and b overlap on every axis.
func (a AABB) Intersects(b AABB) bool {
	return a.Min.X() <= b.Max.X() && a.Max.X() >= b.Min.X() &&
		a.Min.Y() <= b.Max.Y() && a.Max.Y() >= b.Min.Y() &&
		a.Min.Z() <= b.Max.Z() && a.Max.Z() >= b.Min.Z()
}

// Translate returns a copy of a shifted by v.
func (a AABB) Translate(v mgl32.Vec3) AABB {
	return AABB{Min: a.Min.Add(v), Max: a.Max.Add(v)}
}

// boxFromPosition builds the AABB for an entity of the given half-width and
// height, anchored the way spec.md §3 requires:
// aabb.center_xz == (position.x, position.z), aabb.min.y == position.y.
func boxFromPosition(pos mgl32.Vec3, halfWidth, height float32) AABB {
	return AABB{
		Min: mgl32.Vec3{pos.X() - halfWidth, pos.Y(), pos.Z() - halfWidth},
		Max: mgl32.Vec3{pos.X() + halfWidth, pos.Y() + height, pos.Z() + halfWidth},
	}
}

// Pose is the position, rotation and derived bounding box of an entity. The
// AABB is always kept consistent with Position by the mutators below; direct
// field assignment is intentionally unexported to preserve that invariant.
type Pose struct {
	Position   mgl32.Vec3
	Yaw, Pitch float32
	aabb       AABB
	halfWidth  float32
	height     float32
}

// NewPose constructs a Pose at pos with the given entity dimensions,
// computing the initial AABB immediately so the invariant holds from
// construction.
func NewPose(pos mgl32.Vec3, yaw, pitch, halfWidth, height float32) Pose {
	return Pose{
		Position:  pos,
		Yaw:       yaw,
		Pitch:     pitch,
		halfWidth: halfWidth,
		height:    height,
		aabb:      boxFromPosition(pos, halfWidth, height),
	}
}

// AABB returns the bounding box consistent with the current position.
func (p *Pose) AABB() AABB { return p.aabb }

// MoveBy translates the position and AABB atomically by delta.
func (p *Pose) MoveBy(delta mgl32.Vec3) {
	p.Position = p.Position.Add(delta)
	p.aabb = p.aabb.Translate(delta)
}

// MoveTo sets the position and recomputes the AABB atomically.
func (p *Pose) MoveTo(pos mgl32.Vec3) {
	p.Position = pos
	p.aabb = boxFromPosition(pos, p.halfWidth, p.height)
}

// Rotate sets yaw and pitch without affecting position or AABB.
func (p *Pose) Rotate(yaw, pitch float32) {
	p.Yaw, p.Pitch = yaw, pitch
}

// Reaction is the velocity vector accumulated by the collision stage for a
// single entity. It is reset to zero at the start of every tick, before the
// collision stage runs (spec.md §3).
type Reaction struct {
	Velocity mgl32.Vec3
}

// Reset zeroes the reaction vector.
func (r *Reaction) Reset() { r.Velocity = mgl32.Vec3{} }

// RunningSpeed is a positive scalar defaulting to 0.1, per spec.md §3.
type RunningSpeed struct {
	Value float64
}

// DefaultRunningSpeed is the default RunningSpeed value.
const DefaultRunningSpeed = 0.1

// NewRunningSpeed returns a RunningSpeed record with the default value.
func NewRunningSpeed() RunningSpeed { return RunningSpeed{Value: DefaultRunningSpeed} }

// KeepAlive tracks the single in-flight liveness ping for a connection. At
// most one unresponded ping may exist at a time (spec.md §3, §8 invariant 7).
type KeepAlive struct {
	LastSent    Instant
	HasLastSent bool
	Unresponded bool
}

// Instant is a timestamp expressed in whole milliseconds, avoiding a
// time.Time value on the hot per-tick path. Server.Run stamps each tick with
// time.Now().UnixMilli(), so it follows the wall clock.
type Instant int64

// Sub returns the duration between two instants in milliseconds.
func (i Instant) Sub(o Instant) int64 { return int64(i - o) }
