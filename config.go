package netcore

import (
	"fmt"
	"time"
)

// CoherencyOverride pins the cache-coherency tier selector (§4.8)
// instead of letting it run the full host analysis. ForcePIO disables
// bus-master DMA outright, the same escape hatch §4.8 uses when the
// bus-master probe comes back broken.
type CoherencyOverride int

const (
	CoherencyAuto CoherencyOverride = iota
	CoherencyForcePIO
	CoherencyForceTier
)

// BufferSize is the configurable pool-buffer length. §6 allows exactly
// two sizes; both are large enough for a max-length Ethernet frame
// plus alignment padding.
type BufferSize int

const (
	BufferSize1536 BufferSize = 1536
	BufferSize2048 BufferSize = 2048
)

func (b BufferSize) valid() bool {
	return b == BufferSize1536 || b == BufferSize2048
}

// Config carries the knobs enumerated in §6. It is a plain validated
// struct, not a config-file/flag framework: BufferSize and
// CoherencyOverride require detach/attach to change (enforced by
// Core.Attach reading Config once at attach time); Promiscuous is
// live-changeable per controller via Controller.SetPromiscuous.
type Config struct {
	LogLevel          int // 0..3, observability only
	BufferSize        BufferSize
	Promiscuous       bool
	CoherencyOverride CoherencyOverride
	ForcedTier        int // meaningful only when CoherencyOverride == CoherencyForceTier

	RegisterTimeout time.Duration // default 1000us, see §4.1
	EepromTimeout   time.Duration // default 200us cap, see §4.1

	// LeakDetection turns on the §4.5 shadow-accounting check: a
	// ring.LeakDetector per pool, consulted at detach in addition to
	// the always-on zero-at-shutdown guard. Off by default since it
	// adds bookkeeping on a path every attach otherwise skips.
	LeakDetection bool
}

// DefaultConfig returns the configuration used when no override is
// supplied, matching the literal timeout values in §4.1.
func DefaultConfig() Config {
	return Config{
		LogLevel:          1,
		BufferSize:        BufferSize1536,
		Promiscuous:       false,
		CoherencyOverride: CoherencyAuto,
		RegisterTimeout:   1000 * time.Microsecond,
		EepromTimeout:     200 * time.Microsecond,
	}
}

// Validate applies defaults for zero-valued BufferSize and duration
// fields and rejects out-of-range values. A LogLevel outside 0..3 is
// rejected with an error, not clamped.
func (c *Config) Validate() error {
	if c.LogLevel < 0 || c.LogLevel > 3 {
		return fmt.Errorf("netcore: log_level %d out of range 0..3", c.LogLevel)
	}
	if c.BufferSize == 0 {
		c.BufferSize = BufferSize1536
	}
	if !c.BufferSize.valid() {
		return fmt.Errorf("netcore: buffer_size %d not one of {1536,2048}", c.BufferSize)
	}
	if c.RegisterTimeout <= 0 {
		c.RegisterTimeout = 1000 * time.Microsecond
	}
	if c.EepromTimeout <= 0 {
		c.EepromTimeout = 200 * time.Microsecond
	}
	if c.CoherencyOverride == CoherencyForceTier && (c.ForcedTier < 0 || c.ForcedTier > 4) {
		return fmt.Errorf("netcore: forced_tier %d out of range", c.ForcedTier)
	}
	return nil
}
