package engine

import "auralis.click/internal/dsp"

// limiter keeps each block's peak at or below the ceiling. Gain drops are
// applied across the attack window at the start of the block; recovery is
// rate-limited by the release time.
type limiter struct {
	ceiling float32
	gain    float32
	attack  int
	release float32 // gain recovered per block
}

func newLimiter(cfg Config) limiter {
	releaseFrames := max(cfg.millisToFrames(cfg.LimiterReleaseMillis), 1)
	return limiter{
		ceiling: float32(cfg.LimiterCeiling),
		gain:    1,
		attack:  min(max(cfg.millisToFrames(cfg.LimiterAttackMillis), 1), cfg.BlockSize),
		release: float32(cfg.BlockSize) / float32(releaseFrames),
	}
}

func (l *limiter) process(left, right []float32) {
	peak := max(dsp.Peak(left), dsp.Peak(right))
	needed := float32(1)
	if peak > l.ceiling {
		needed = l.ceiling / peak
	}

	target := needed
	if needed > l.gain {
		target = min(needed, l.gain+l.release)
	}

	if target == l.gain {
		if l.gain != 1 {
			dsp.Scale(left, l.gain)
			dsp.Scale(right, l.gain)
		}
		return
	}

	n := min(l.attack, len(left))
	dsp.ScaleRamp(left[:n], l.gain, target)
	dsp.ScaleRamp(right[:n], l.gain, target)
	dsp.Scale(left[n:], target)
	dsp.Scale(right[n:], target)
	l.gain = target
}
