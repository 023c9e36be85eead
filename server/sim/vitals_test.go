package sim

import "testing"

func TestNewVitalsIsAliveAndFull(t *testing.T) {
	v := NewVitals()
	if v.State != StateAlive {
		t.Fatalf("State = %v, want StateAlive", v.State)
	}
	if v.Health != MaxHealth {
		t.Fatalf("Health = %v, want %v", v.Health, MaxHealth)
	}
}

func TestHealClampsToMaxHealth(t *testing.T) {
	v := Vitals{State: StateAlive, Health: MaxHealth - 1}
	v.Heal(10)
	if v.Health != MaxHealth {
		t.Fatalf("Health = %v, want %v", v.Health, MaxHealth)
	}
}

func TestHealNoOpWhileDead(t *testing.T) {
	v := Vitals{State: StateDead, Health: 0}
	v.Heal(10)
	if v.Health != 0 {
		t.Fatalf("Health = %v, want 0", v.Health)
	}
}

func TestHurtReducesHealth(t *testing.T) {
	v := NewVitals()
	imm := &Immunity{}
	v.Hurt(0, 5, 20, RespawnDelayTicks, imm)
	if v.Health != MaxHealth-5 {
		t.Fatalf("Health = %v, want %v", v.Health, MaxHealth-5)
	}
	if v.State != StateAlive {
		t.Fatalf("State = %v, want StateAlive", v.State)
	}
}

func TestHurtKillsAtZeroHealth(t *testing.T) {
	v := NewVitals()
	imm := &Immunity{}
	v.Hurt(0, MaxHealth, 20, RespawnDelayTicks, imm)
	if v.State != StateDead {
		t.Fatalf("State = %v, want StateDead", v.State)
	}
	if v.Health != 0 {
		t.Fatalf("Health = %v, want 0", v.Health)
	}
	if v.RespawnTick != RespawnDelayTicks {
		t.Fatalf("RespawnTick = %v, want %v", v.RespawnTick, RespawnDelayTicks)
	}
}

func TestHurtRespectsImmunityWindow(t *testing.T) {
	v := NewVitals()
	imm := &Immunity{Until: 10}
	v.Hurt(5, 5, 20, RespawnDelayTicks, imm)
	if v.Health != MaxHealth {
		t.Fatalf("Health = %v, want unchanged %v while immune", v.Health, MaxHealth)
	}
}

// TestHurtImmunitySetBeforeDeadCheck documents the Open Question resolution:
// a hit against a corpse still extends the immunity window even though no
// damage is applied, because imm.Until is set before the Dead check.
func TestHurtImmunitySetBeforeDeadCheck(t *testing.T) {
	v := Vitals{State: StateDead}
	imm := &Immunity{}
	v.Hurt(100, 5, 20, RespawnDelayTicks, imm)
	if imm.Until != 100+10 {
		t.Fatalf("Until = %v, want %v", imm.Until, 110)
	}
	if v.Health != 0 {
		t.Fatalf("Health = %v, want unchanged 0", v.Health)
	}
}

// TestHurtZeroAmountStillResetsCooldown documents the second Open Question
// resolution: a zero-damage hit is not a no-op with respect to Immunity.
func TestHurtZeroAmountStillResetsCooldown(t *testing.T) {
	v := NewVitals()
	imm := &Immunity{}
	v.Hurt(0, 0, 20, RespawnDelayTicks, imm)
	if imm.Until != 10 {
		t.Fatalf("Until = %v, want 10", imm.Until)
	}
	if v.Health != MaxHealth {
		t.Fatalf("Health = %v, want unchanged %v", v.Health, MaxHealth)
	}
}

func TestHurtConsumesAbsorptionBeforeHealth(t *testing.T) {
	v := NewVitals()
	v.Absorption = Absorption{EndTick: 100, BonusHealth: 4}
	imm := &Immunity{}

	v.Hurt(0, 3, 20, RespawnDelayTicks, imm)
	if v.Health != MaxHealth {
		t.Fatalf("Health = %v, want unchanged while absorption covers the hit", v.Health)
	}
	if v.Absorption.BonusHealth != 1 {
		t.Fatalf("BonusHealth = %v, want 1", v.Absorption.BonusHealth)
	}

	// The first hit set imm.Until to 10, so the second lands once that window
	// has closed.
	v.Hurt(10, 3, 20, RespawnDelayTicks, imm)
	if v.Absorption.BonusHealth != 0 {
		t.Fatalf("BonusHealth = %v, want 0 once exhausted", v.Absorption.BonusHealth)
	}
	if v.Health != MaxHealth-2 {
		t.Fatalf("Health = %v, want %v (2 points past the remaining absorption)", v.Health, MaxHealth-2)
	}
}

func TestApplyRegenerationHealsWithinWindow(t *testing.T) {
	v := Vitals{State: StateAlive, Health: 10, Regeneration: Regeneration{EndTick: 20, AmountPerTick: 2}}
	v.ApplyRegeneration(5)
	if v.Health != 12 {
		t.Fatalf("Health = %v, want 12", v.Health)
	}
}

func TestApplyRegenerationNoOpAfterWindow(t *testing.T) {
	v := Vitals{State: StateAlive, Health: 10, Regeneration: Regeneration{EndTick: 5, AmountPerTick: 2}}
	v.ApplyRegeneration(5)
	if v.Health != 10 {
		t.Fatalf("Health = %v, want unchanged 10", v.Health)
	}
}

func TestTryRespawnTransitionsAtRespawnTick(t *testing.T) {
	v := Vitals{State: StateDead, RespawnTick: 50}
	if v.TryRespawn(49) {
		t.Fatal("TryRespawn(49) = true, want false before RespawnTick")
	}
	if !v.TryRespawn(50) {
		t.Fatal("TryRespawn(50) = false, want true at RespawnTick")
	}
	if v.State != StateAlive || v.Health != MaxHealth {
		t.Fatalf("after respawn: State=%v Health=%v, want Alive/%v", v.State, v.Health, MaxHealth)
	}
}

func TestTryRespawnNoOpWhileAlive(t *testing.T) {
	v := NewVitals()
	if v.TryRespawn(0) {
		t.Fatal("TryRespawn on an Alive entity returned true")
	}
}
