package engine

import (
	"errors"
	"fmt"
	"math"

	"auralis.click/internal/dsp"
)

var (
	ErrInvalidConfig   = errors.New("invalid engine configuration")
	ErrTooManySources  = errors.New("source limit reached")
	ErrTooManyZones    = errors.New("zone key limit reached")
	ErrSourceClosed    = errors.New("source is closed")
	ErrUnknownZone     = errors.New("unknown zone")
	ErrInvalidZoneKind = errors.New("invalid zone kind")
)

// Config holds the structural parameters fixed at construction and the
// initial values of the runtime tunables
type Config struct {
	SampleRate int `json:"sample_rate"`
	BlockSize  int `json:"block_size"`
	MaxSources int `json:"max_sources"`
	MaxZones   int `json:"max_zones"`

	HRTF            bool `json:"hrtf"`
	HighQualityHRTF bool `json:"high_quality_hrtf"`
	Reverb          bool `json:"reverb"`

	// the partition layout is sized from these once, in New
	ReverbMaxSeconds   float64 `json:"reverb_max_seconds"`
	MaxReverbPartition int     `json:"max_reverb_partition"`

	GlobalGain  float64 `json:"global_gain"`
	ReverbSend  float64 `json:"reverb_send"`
	AmbientGain float64 `json:"ambient_gain"`
	GainCutoff  float64 `json:"gain_cutoff"`
	RampMillis  float64 `json:"ramp_ms"`

	LimiterCeiling       float64 `json:"limiter_ceiling"`
	LimiterAttackMillis  float64 `json:"limiter_attack_ms"`
	LimiterReleaseMillis float64 `json:"limiter_release_ms"`

	PoolSlots        int `json:"pool_slots"`
	WindowFrames     int `json:"window_frames"`
	IdleExpiryBlocks int `json:"idle_expiry_blocks"`
}

// DefaultConfig returns the configuration used when nothing is specified
func DefaultConfig() Config {
	return Config{
		SampleRate:           44100,
		BlockSize:            128,
		MaxSources:           64,
		MaxZones:             32,
		HRTF:                 true,
		HighQualityHRTF:      false,
		Reverb:               true,
		ReverbMaxSeconds:     3,
		MaxReverbPartition:   4096,
		GlobalGain:           1,
		ReverbSend:           0.5,
		AmbientGain:          1,
		GainCutoff:           0.01,
		RampMillis:           10,
		LimiterCeiling:       0.98,
		LimiterAttackMillis:  1,
		LimiterReleaseMillis: 200,
		PoolSlots:            64,
		WindowFrames:         8192,
		IdleExpiryBlocks:     2048,
	}
}

// Validate reports the first structural problem found
func (c Config) Validate() error {
	switch {
	case c.SampleRate < 8000 || c.SampleRate > 384000:
		return fmt.Errorf("%w: sample rate %d", ErrInvalidConfig, c.SampleRate)
	case c.BlockSize < 16 || dsp.Log2(c.BlockSize) < 0:
		return fmt.Errorf("%w: block size %d must be a power of two >= 16", ErrInvalidConfig, c.BlockSize)
	case c.MaxSources <= 0:
		return fmt.Errorf("%w: max sources %d", ErrInvalidConfig, c.MaxSources)
	case c.MaxZones <= 0:
		return fmt.Errorf("%w: max zones %d", ErrInvalidConfig, c.MaxZones)
	case c.ReverbMaxSeconds <= 0 || c.ReverbMaxSeconds > 30:
		return fmt.Errorf("%w: reverb length %.2fs", ErrInvalidConfig, c.ReverbMaxSeconds)
	case dsp.Log2(c.MaxReverbPartition) < 0 || c.MaxReverbPartition < c.BlockSize:
		return fmt.Errorf("%w: reverb partition %d must be a power of two >= block size",
			ErrInvalidConfig, c.MaxReverbPartition)
	case dsp.Log2(2*c.MaxReverbPartition) > dsp.MaxLog2:
		return fmt.Errorf("%w: reverb partition %d too large", ErrInvalidConfig, c.MaxReverbPartition)
	case c.GlobalGain < 0 || c.ReverbSend < 0 || c.AmbientGain < 0:
		return fmt.Errorf("%w: gains must not be negative", ErrInvalidConfig)
	case c.GainCutoff < 0 || c.GainCutoff >= 1:
		return fmt.Errorf("%w: gain cutoff %.3f outside [0,1)", ErrInvalidConfig, c.GainCutoff)
	case c.RampMillis <= 0:
		return fmt.Errorf("%w: ramp time %.2fms", ErrInvalidConfig, c.RampMillis)
	case c.LimiterCeiling <= 0 || c.LimiterCeiling > 1:
		return fmt.Errorf("%w: limiter ceiling %.3f", ErrInvalidConfig, c.LimiterCeiling)
	case c.LimiterAttackMillis < 0 || c.LimiterReleaseMillis <= 0:
		return fmt.Errorf("%w: limiter attack/release", ErrInvalidConfig)
	case c.PoolSlots <= 0 || c.WindowFrames < c.BlockSize:
		return fmt.Errorf("%w: pool of %d windows of %d frames", ErrInvalidConfig, c.PoolSlots, c.WindowFrames)
	case c.IdleExpiryBlocks <= 0:
		return fmt.Errorf("%w: idle expiry %d", ErrInvalidConfig, c.IdleExpiryBlocks)
	}
	return nil
}

// RampDelta is the largest per-sample gain change a ramp may apply
func (c Config) RampDelta() float32 {
	return float32(1000 / (c.RampMillis * float64(c.SampleRate)))
}

func (c Config) reverbMaxFrames() int {
	return int(math.Ceil(c.ReverbMaxSeconds * float64(c.SampleRate)))
}

func (c Config) millisToFrames(ms float64) int {
	return int(math.Round(ms * float64(c.SampleRate) / 1000))
}
