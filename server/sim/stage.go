package sim

import (
	"fmt"
	"log/slog"
)

// Handler reacts to a declared ingress event with a declared access set
// (spec.md §4.2, §4.5). Registry stores Reads/Writes with the handler but
// does not consult them: handlers are dispatched one at a time, in drain
// order, and no overlap between access sets is checked.
type Handler struct {
	Name   string
	Kind   PacketKind
	Reads  AccessSet
	Writes AccessSet
	Func   func(tx *Tx, ev IngressEvent) error
}

// Tx is the per-tick handle stages use to reach the Store, Global context,
// and the scratch output slices (damage events, egress packets, keep-alive
// actions) they may append to. It plays the same role as the teacher's
// *world.Tx: a narrow, tick-scoped capability object rather than a direct
// reference to shared mutable state.
type Tx struct {
	Store  *Store
	Global *Global

	damage       []DamageEvent
	egress       []EgressPacket
	keepAlive    []KeepAliveAction
	transitions  []VitalsTransition
}

func newTx(store *Store, global *Global) *Tx {
	return &Tx{Store: store, Global: global}
}

// QueueDamage appends a pending damage event for the health/vitals stage to
// apply.
func (tx *Tx) QueueDamage(ev DamageEvent) { tx.damage = append(tx.damage, ev) }

// Egress appends an outgoing packet to the tick's egress batch.
func (tx *Tx) Egress(pk EgressPacket) { tx.egress = append(tx.egress, pk) }

// Registry holds the ingress handlers registered for each PacketKind,
// mirroring spec.md §4.2's "handler registration" requirement. At most one
// handler is registered per kind in this core: fan-out across multiple
// independent handlers for the same packet kind is a feature the spec does
// not call for, so Registry stays a simple map rather than a multi-map.
type Registry struct {
	log      *slog.Logger
	handlers map[PacketKind]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{log: log, handlers: make(map[PacketKind]Handler)}
}

// Register attaches a Handler for its declared Kind. Registering a second
// handler for the same Kind replaces the first, logged at warn since it
// usually indicates a configuration mistake rather than intended behavior.
func (r *Registry) Register(h Handler) {
	if _, exists := r.handlers[h.Kind]; exists {
		r.log.Warn("ingress handler replaced", "kind", h.Kind, "name", h.Name)
	}
	r.handlers[h.Kind] = h
}

// Dispatch runs the handler registered for ev.Kind, if any, containing a
// panic the way spec.md §7's StageHandlerPanic policy requires: the
// offending entity is marked for disconnect rather than the panic
// propagating across the tick boundary.
func (r *Registry) Dispatch(tx *Tx, ev IngressEvent) {
	h, ok := r.handlers[ev.Kind]
	if !ok {
		return
	}
	if err := r.runRecovered(h, tx, ev); err != nil {
		r.log.Warn("ingress handler error", "name", h.Name, "entity", ev.Entity, "err", err)
		r.disconnect(tx, ev.Entity)
	}
}

func (r *Registry) runRecovered(h Handler, tx *Tx, ev IngressEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in handler %q: %v", h.Name, p)
		}
	}()
	return h.Func(tx, ev)
}

func (r *Registry) disconnect(tx *Tx, id EntityId) {
	tx.Store.SetLoginState(id, Terminate)
	tx.keepAlive = append(tx.keepAlive, KeepAliveAction{Entity: id, Kind: KeepAliveKick})
}
