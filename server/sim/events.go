package sim

import "github.com/sandertv/gophertunnel/minecraft/protocol/packet"

// PacketKind closes over the packet categories the core observes, per
// spec.md §6's table. It exists separately from gophertunnel's own packet
// IDs because this core's protocol is not 1:1 with Bedrock's: the core only
// needs to know *which contract* a decoded packet satisfies, not its wire
// representation.
type PacketKind uint8

const (
	KindHandshake PacketKind = iota
	KindLoginStart
	KindClick
	KindHandSwing
	KindPlayerAttack
	KindKeepAlivePong
	KindInventoryS2C
	KindUpdateHealthS2C
	KindEntityPositionS2C
	KindKeepAliveS2C
)

// IngressEvent is a decoded, typed packet event tagged with its originating
// entity id, the shape spec.md §6 requires of the core-to-codec ingress
// contract. Payload carries the already-decoded gophertunnel packet value
// when one applies to Kind; the core never inspects its bytes.
type IngressEvent struct {
	Entity  EntityId
	Kind    PacketKind
	Payload packet.Packet
}

// EgressPacket is a typed outgoing packet destined for a single connection's
// buffer, appended by stages 8-9 of the pipeline and handed to the network
// boundary by stage 10 (spec.md §4.5, §6).
type EgressPacket struct {
	Entity  EntityId
	Kind    PacketKind
	Payload any
}

// KeepAliveAction is emitted by the keep-alive stage (spec.md §4.6) for the
// egress adapter to act on, keeping the stage itself free of direct I/O.
type KeepAliveAction struct {
	Entity EntityId
	Kind   KeepAliveActionKind
}

// KeepAliveActionKind distinguishes the two outcomes of a keep-alive check.
type KeepAliveActionKind uint8

const (
	// KeepAlivePing instructs the adapter to send a new ping.
	KeepAlivePing KeepAliveActionKind = iota
	// KeepAliveKick instructs the adapter to disconnect the connection; the
	// stage has already transitioned the entity's LoginState to Terminate.
	KeepAliveKick
)

// DamageEvent is a pending damage application produced by ingress handling
// (e.g. a PlayerAttack) and consumed by the health/vitals update stage
// (spec.md §4.5 stage 8).
type DamageEvent struct {
	Target EntityId
	Amount float64
}

// VitalsTransition records a Dead<->Alive transition emitted by the vitals
// stage, consumed by the egress stage and, optionally, an analytics sink
// (server/sim/analytics.go).
type VitalsTransition struct {
	Entity EntityId
	Tick   int64
	Died   bool // false means the entity respawned
}
