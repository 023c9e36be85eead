package sim

import "testing"

func newKeepAliveFixture() (*Store, *Global, EntityId) {
	store := NewStore()
	global := NewGlobal(DefaultConfig())
	id := store.Spawn()
	store.SetPlayerMarker(id)
	store.SetLoginState(id, Play)
	store.SetKeepAlive(id, KeepAlive{})
	return store, global, id
}

func TestRunKeepAliveSendsFirstPing(t *testing.T) {
	store, global, id := newKeepAliveFixture()
	tx := newTx(store, global)

	actions := RunKeepAlive(tx, 0)
	if len(actions) != 1 || actions[0].Kind != KeepAlivePing {
		t.Fatalf("actions = %v, want a single KeepAlivePing", actions)
	}
	ka, _ := store.KeepAlive(id)
	if !ka.HasLastSent || !ka.Unresponded {
		t.Fatalf("KeepAlive = %+v, want HasLastSent and Unresponded both true", ka)
	}
}

func TestRunKeepAliveDoesNotRepingBeforeInterval(t *testing.T) {
	store, global, _ := newKeepAliveFixture()
	tx := newTx(store, global)
	RunKeepAlive(tx, 0)

	tx2 := newTx(store, global)
	actions := RunKeepAlive(tx2, KeepAliveIntervalMS/2)
	if len(actions) != 0 {
		t.Fatalf("actions = %v, want none while a ping is still unresponded and within the interval", actions)
	}
}

func TestRunKeepAliveKicksOnTimeout(t *testing.T) {
	store, global, id := newKeepAliveFixture()
	tx := newTx(store, global)
	RunKeepAlive(tx, 0)

	tx2 := newTx(store, global)
	actions := RunKeepAlive(tx2, KeepAliveTimeoutMS)
	if len(actions) != 1 || actions[0].Kind != KeepAliveKick {
		t.Fatalf("actions = %v, want a single KeepAliveKick", actions)
	}
	state, _ := store.LoginState(id)
	if state != Terminate {
		t.Fatalf("LoginState = %v, want Terminate", state)
	}
}

func TestOnKeepAlivePongClearsUnresponded(t *testing.T) {
	store, global, id := newKeepAliveFixture()
	tx := newTx(store, global)
	RunKeepAlive(tx, 0)

	OnKeepAlivePong(tx, id)

	ka, _ := store.KeepAlive(id)
	if ka.Unresponded {
		t.Fatal("Unresponded still true after OnKeepAlivePong")
	}

	tx2 := newTx(store, global)
	actions := RunKeepAlive(tx2, KeepAliveIntervalMS)
	if len(actions) != 1 || actions[0].Kind != KeepAlivePing {
		t.Fatalf("actions = %v, want a fresh KeepAlivePing once the interval elapses after a pong", actions)
	}
}

func TestRunKeepAliveIgnoresNonPlayState(t *testing.T) {
	store, global, id := newKeepAliveFixture()
	store.SetLoginState(id, Login)
	tx := newTx(store, global)

	if actions := RunKeepAlive(tx, 0); len(actions) != 0 {
		t.Fatalf("actions = %v, want none for a non-Play connection", actions)
	}
}
