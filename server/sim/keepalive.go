package sim

// Keep-alive timing constants from spec.md §4.6, expressed in milliseconds
// against the Instant clock to avoid a time.Time dependency on the hot path.
const (
	KeepAliveIntervalMS = 15_000
	KeepAliveTimeoutMS  = 30_000
)

// RunKeepAlive implements spec.md §4.6 and is stage 3 of the pipeline
// (spec.md §4.5). It walks every Play-state player, and for each one either
// leaves it alone, sends a new ping, or schedules a kick, returning the
// actions for the egress adapter to perform. The stage itself never blocks
// on network I/O (spec.md §5) — it only mutates KeepAlive/LoginState records
// and appends actions.
func RunKeepAlive(tx *Tx, now Instant) []KeepAliveAction {
	var actions []KeepAliveAction

	tx.Store.QueryPlayers(func(id EntityId) {
		state, ok := tx.Store.LoginState(id)
		if !ok || state != Play {
			return
		}
		ka, ok := tx.Store.KeepAlive(id)
		if !ok {
			return
		}

		switch {
		case !ka.HasLastSent:
			ka.LastSent = now
			ka.HasLastSent = true
			ka.Unresponded = true
			tx.Store.SetKeepAlive(id, ka)
			actions = append(actions, KeepAliveAction{Entity: id, Kind: KeepAlivePing})

		case !ka.Unresponded && now.Sub(ka.LastSent) >= KeepAliveIntervalMS:
			ka.LastSent = now
			ka.Unresponded = true
			tx.Store.SetKeepAlive(id, ka)
			actions = append(actions, KeepAliveAction{Entity: id, Kind: KeepAlivePing})

		case ka.Unresponded && now.Sub(ka.LastSent) >= KeepAliveTimeoutMS:
			tx.Store.SetLoginState(id, Terminate)
			actions = append(actions, KeepAliveAction{Entity: id, Kind: KeepAliveKick})
		}
	})

	return actions
}

// OnKeepAlivePong clears the unresponded flag for id on receipt of a
// KeepAlivePong packet (spec.md §4.6, §6).
func OnKeepAlivePong(tx *Tx, id EntityId) {
	ka, ok := tx.Store.KeepAlive(id)
	if !ok {
		return
	}
	ka.Unresponded = false
	tx.Store.SetKeepAlive(id, ka)
}
