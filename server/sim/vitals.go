package sim

import "math"

// MaxHealth is the upper clamp on an Alive entity's health, per spec.md §3.
const MaxHealth = 20.0

// VitalsState distinguishes the two states of the Vitals state machine.
type VitalsState uint8

const (
	// StateAlive is the default state for a freshly spawned entity.
	StateAlive VitalsState = iota
	// StateDead is entered when health drops to or below zero.
	StateDead
)

// Vitals is the Alive/Dead state machine of spec.md §4.3, combined with its
// Absorption and Regeneration companion records (spec.md §3) since all three
// are read and written together by the same stage (health/vitals update,
// spec.md §4.5 stage 8).
type Vitals struct {
	State VitalsState

	// Alive-only fields. Left at their zero value while Dead.
	Health float64

	// RespawnTick is valid only while State == StateDead.
	RespawnTick int64

	Absorption   Absorption
	Regeneration Regeneration
}

// Absorption is temporary bonus health absorbing damage before the health
// pool, per spec.md §3. When CurrentTick >= EndTick it is treated as zero
// bonus without needing to be cleared eagerly.
type Absorption struct {
	EndTick     int64
	BonusHealth float64
}

// activeBonus returns the absorption bonus still in effect at tick.
func (a Absorption) activeBonus(tick int64) float64 {
	if tick >= a.EndTick {
		return 0
	}
	return a.BonusHealth
}

// Regeneration heals an entity by AmountPerTick while CurrentTick < EndTick.
type Regeneration struct {
	EndTick       int64
	AmountPerTick float64
}

// Immunity grants invulnerability to damage while CurrentTick < Until.
type Immunity struct {
	Until int64
}

// NewVitals returns a freshly spawned, fully healed Vitals record.
func NewVitals() Vitals {
	return Vitals{State: StateAlive, Health: MaxHealth}
}

// Heal applies spec.md §4.3's heal operation. amount must be finite and > 0;
// Heal does not check this, and a negative or NaN amount is applied to
// Health as given.
func (v *Vitals) Heal(amount float64) {
	if v.State != StateAlive {
		return
	}
	v.Health = math.Min(MaxHealth, v.Health+amount)
}

// Hurt applies spec.md §4.3's hurt operation exactly, including both
// documented-surprising orderings from spec.md §9:
//
//  1. invulnerability is granted before the Dead check, so damage dealt to a
//     corpse still extends the immunity cooldown (observable through the
//     packet stream); and
//  2. a zero-amount hit still resets the cooldown, which is not idempotent
//     with respect to immunity.
//
// amount must be finite and >= 0. respawnDelayTicks is the configured
// number of ticks (spec.md §6's respawn_delay_ticks) between death and
// RespawnTick becoming eligible; callers pass Global.RespawnDelayTicks.
func (v *Vitals) Hurt(tick int64, amount float64, maxHurtResistantTime int64, respawnDelayTicks int64, imm *Immunity) {
	if tick < imm.Until {
		return
	}
	imm.Until = tick + maxHurtResistantTime/2

	if v.State == StateDead {
		return
	}

	if bonus := v.Absorption.activeBonus(tick); bonus > 0 {
		if amount > bonus {
			amount -= bonus
			v.Absorption.BonusHealth = 0
		} else {
			v.Absorption.BonusHealth = bonus - amount
			return
		}
	}

	v.Health -= amount
	if v.Health <= 0 {
		v.State = StateDead
		v.RespawnTick = tick + respawnDelayTicks
		v.Health = 0
	}
}

// ApplyRegeneration applies regeneration for the current tick, a no-op
// outside the active window or while Dead. Called from stage 8 of the
// pipeline (spec.md §4.5).
func (v *Vitals) ApplyRegeneration(tick int64) {
	if v.State != StateAlive {
		return
	}
	if tick >= v.Regeneration.EndTick {
		return
	}
	v.Health = math.Min(MaxHealth, v.Health+v.Regeneration.AmountPerTick)
}

// TryRespawn transitions Dead -> Alive once tick has reached RespawnTick.
// Reports whether the transition happened so the caller can emit the
// appropriate egress packets.
func (v *Vitals) TryRespawn(tick int64) bool {
	if v.State != StateDead || tick < v.RespawnTick {
		return false
	}
	v.State = StateAlive
	v.Health = MaxHealth
	v.Absorption = Absorption{}
	v.Regeneration = Regeneration{}
	return true
}
