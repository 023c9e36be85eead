package sim

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

// Default values for the configuration surface enumerated in spec.md §6.
const (
	DefaultCompressionThreshold  = 256
	DefaultMaxHurtResistantTime  = 20 // ticks; halved when applied to Immunity.Until
	DefaultTickHistorySize       = 100
	DefaultMsptHistorySize       = 100
	RespawnDelayTicks            = 100 // 5 s at 20 Hz
	DefaultRecommendedMinFDs     = 10_000
)

// Config is the tunable surface of the simulation core, loaded from a TOML
// file the way the teacher's server.Config family is typically populated
// (see server/conf.go). Unlike dragonfly's Config, this one carries only the
// knobs the core itself reads; everything about listeners, resource packs,
// and world generation is an external collaborator's concern (spec.md §1).
type Config struct {
	// CompressionThreshold is the estimated encoded egress packet size, in
	// bytes, at or above which the compression shim (server/sim/adapters.go)
	// compresses a packet before handing off to the network boundary.
	CompressionThreshold int `toml:"compression_threshold"`
	// MaxHurtResistantTime is the invulnerability window granted per hit, in
	// ticks. Vitals.Hurt grants half of this value.
	MaxHurtResistantTime int64 `toml:"max_hurt_resistant_time"`
	// RecommendedMinFDs is the target file-descriptor soft limit; the core
	// only surfaces the number, an external adapter applies it (spec.md §6).
	RecommendedMinFDs int `toml:"recommended_min_fds"`
	// TickHistorySize bounds the Clock's window of recent tick-start instants
	// used by wait_duration (spec.md §4.1).
	TickHistorySize int `toml:"tick_history_size"`
	// MsptHistorySize bounds the ring of recorded tick durations used for the
	// 1s/5s moving averages.
	MsptHistorySize int `toml:"mspt_history_size"`
	// RespawnDelayTicksCfg is the number of ticks between death and the
	// Dead->Alive transition becoming eligible.
	RespawnDelayTicksCfg int64 `toml:"respawn_delay_ticks"`
}

// DefaultConfig returns a Config populated with spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		CompressionThreshold: DefaultCompressionThreshold,
		MaxHurtResistantTime: DefaultMaxHurtResistantTime,
		RecommendedMinFDs:    DefaultRecommendedMinFDs,
		TickHistorySize:      DefaultTickHistorySize,
		MsptHistorySize:      DefaultMsptHistorySize,
		RespawnDelayTicksCfg: RespawnDelayTicks,
	}
}

// LoadConfig reads a TOML configuration file from path, overlaying its
// values onto DefaultConfig. A missing file is not an error: it simply
// yields the defaults, the same forgiving posture dragonfly's own config
// loading takes for optional server settings.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("sim: read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("sim: parse config: %w", err)
	}
	return cfg, nil
}
