package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auralis.click/internal/spatial"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"block not power of two", func(c *Config) { c.BlockSize = 100 }},
		{"block too small", func(c *Config) { c.BlockSize = 8 }},
		{"no sources", func(c *Config) { c.MaxSources = 0 }},
		{"no zones", func(c *Config) { c.MaxZones = 0 }},
		{"partition below block", func(c *Config) { c.MaxReverbPartition = 64 }},
		{"cutoff of one", func(c *Config) { c.GainCutoff = 1 }},
		{"zero ramp", func(c *Config) { c.RampMillis = 0 }},
		{"ceiling above one", func(c *Config) { c.LimiterCeiling = 1.5 }},
		{"window below block", func(c *Config) { c.WindowFrames = 64 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

			_, err := New(cfg, nil)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestNewWithBuiltInHead(t *testing.T) {
	e, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 44100, e.SampleRate())
	assert.Equal(t, 2, e.Channels())
	assert.Len(t, e.Bank().Directions, 24*7+1)
}

func TestRenderAdvancesFrameCounter(t *testing.T) {
	e := newTestEngine(t, testConfig())
	e.StartFrame(spatial.DefaultListener())

	left, right := render(e, 300)
	assert.Equal(t, float32(0), maxAbs(left))
	assert.Equal(t, float32(0), maxAbs(right))

	// whole blocks are rendered ahead of what was consumed
	assert.Equal(t, int64(384), e.Frame())
	assert.Equal(t, uint64(3), e.Stats().Blocks)
}

func TestDistanceAttenuation(t *testing.T) {
	assert.InDelta(t, 0.0625, DistanceAttenuation(4, 1, 2), 1e-12)
	assert.Equal(t, 1.0, DistanceAttenuation(0.5, 1, 2))
	assert.InDelta(t, 0.5, DistanceAttenuation(4, 2, 1), 1e-12)
	// a non-positive reference falls back to 1
	assert.InDelta(t, 0.25, DistanceAttenuation(4, 0, 1), 1e-12)

	assert.Equal(t, 0.0, applyCutoff(0.009, 0.01))
	assert.Equal(t, 1.0, applyCutoff(1, 0.01))
	assert.InDelta(t, 0.5, applyCutoff(0.5, 0), 1e-12)
}

func TestHRTFDirectPath(t *testing.T) {
	e := newTestEngine(t, testConfig())
	s, err := e.NewSource(newSample(t, e, "click", 1, impulse(512, map[int]int16{200: 16384})))
	require.NoError(t, err)
	s.SetPosition(spatial.V(0, 0, 1))
	require.NoError(t, s.Play())
	e.StartFrame(spatial.DefaultListener())

	left, right := render(e, 512)
	assert.InDelta(t, 0.5, left[200], 1e-5)
	assert.InDelta(t, 0.25, right[200], 1e-5)
	left[200], right[200] = 0, 0
	assert.Less(t, maxAbs(left), float32(1e-5))
	assert.Less(t, maxAbs(right), float32(1e-5))
}

func TestHRTFFollowsDirection(t *testing.T) {
	e := newTestEngine(t, testConfig())
	s, err := e.NewSource(newSample(t, e, "tone", 1, constant(4096, 8192)))
	require.NoError(t, err)
	s.SetLoop(true)
	s.SetPosition(spatial.V(1, 0, 0))
	require.NoError(t, s.Play())

	e.StartFrame(spatial.DefaultListener())
	left, right := render(e, 256)
	// second block: ramp finished, right-hand response
	assert.InDelta(t, 0.0625, left[200], 1e-5)
	assert.InDelta(t, 0.25, right[200], 1e-5)

	// turning the listener to face the source moves it to the front bucket
	e.StartFrame(spatial.Listener{Forward: spatial.V(1, 0, 0), Up: spatial.V(0, 1, 0)})
	left, right = render(e, 256)
	assert.InDelta(t, 0.25, left[200], 1e-5)
	assert.InDelta(t, 0.125, right[200], 1e-5)
}

// Sources mapped to the same bucket are summed before convolution, so two
// sources render exactly like one source playing their sum.
func TestSameBucketSourcesSumBeforeConvolution(t *testing.T) {
	const frames = 1024
	a := make([]int16, frames)
	b := make([]int16, frames)
	sum := make([]int16, frames)
	// the first block is silent so the fade-in ramp does not matter
	for i := 128; i < frames; i++ {
		a[i] = int16((i*7919)%6001 - 3000)
		b[i] = int16((i*104729)%4001 - 2000)
		sum[i] = a[i] + b[i]
	}

	cfg := testConfig()
	pair := newTestEngine(t, cfg)
	for i, values := range [][]int16{a, b} {
		s, err := pair.NewSource(newSample(t, pair, []string{"a", "b"}[i], 1, values))
		require.NoError(t, err)
		s.SetPosition(spatial.V(0, 0, 0.5))
		require.NoError(t, s.Play())
	}

	single := newTestEngine(t, cfg)
	s, err := single.NewSource(newSample(t, single, "sum", 1, sum))
	require.NoError(t, err)
	s.SetPosition(spatial.V(0, 0, 0.5))
	require.NoError(t, s.Play())

	pair.StartFrame(spatial.DefaultListener())
	single.StartFrame(spatial.DefaultListener())
	pl, pr := render(pair, frames)
	sl, sr := render(single, frames)

	assert.Equal(t, sl, pl)
	assert.Equal(t, sr, pr)
	assert.NotZero(t, maxAbs(pl))
}

func TestGainChangesAreRamped(t *testing.T) {
	cfg := testConfig()
	cfg.RampMillis = 10
	e := newTestEngine(t, cfg)

	s, err := e.NewSource(newSample(t, e, "dc", 1, constant(4096, 16384)))
	require.NoError(t, err)
	s.SetLoop(true)
	s.SetSpatial(false)
	require.NoError(t, s.Play())

	e.StartFrame(spatial.DefaultListener())
	first, _ := render(e, 2048)
	s.SetGain(0)
	e.StartFrame(spatial.DefaultListener())
	second, _ := render(e, 2048)

	out := append([]float32{0}, append(first, second...)...)
	limit := 0.5*cfg.RampDelta() + 1e-6
	for i := 1; i < len(out); i++ {
		d := out[i] - out[i-1]
		if d < 0 {
			d = -d
		}
		require.LessOrEqual(t, d, limit, "frame %d jumps by %g", i-1, d)
	}
	assert.InDelta(t, 0.5, first[2047], 1e-6)
	assert.Equal(t, float32(0), second[2047])
}

// requireSmooth fails when consecutive frames of out differ by more than
// limit, starting from silence
func requireSmooth(t *testing.T, out []float32, limit float32) {
	t.Helper()
	prev := float32(0)
	for i, v := range out {
		d := v - prev
		if d < 0 {
			d = -d
		}
		require.LessOrEqual(t, d, limit, "frame %d jumps by %g", i, d)
		prev = v
	}
}

func newDCSource(t *testing.T, e *Engine) *Source {
	t.Helper()
	s, err := e.NewSource(newSample(t, e, "dc", 1, constant(4096, 16384)))
	require.NoError(t, err)
	s.SetLoop(true)
	s.SetSpatial(false)
	require.NoError(t, s.Play())
	return s
}

func TestRampOutSurvivesBackToBackFrames(t *testing.T) {
	cfg := testConfig()
	cfg.RampMillis = 10
	e := newTestEngine(t, cfg)
	s := newDCSource(t, e)

	e.StartFrame(spatial.DefaultListener())
	before, _ := render(e, 1024)
	s.SetGain(0)
	// the second frame replaces the first before the render thread swaps
	e.StartFrame(spatial.DefaultListener())
	e.StartFrame(spatial.DefaultListener())
	after, _ := render(e, 2048)

	requireSmooth(t, append(before, after...), 0.5*cfg.RampDelta()+1e-6)
	assert.Equal(t, float32(0), after[2047])
	assert.Empty(t, e.r.live, "faded slots are forgotten")
}

func TestRampOutWithTicksFasterThanBlocks(t *testing.T) {
	cfg := testConfig()
	cfg.RampMillis = 10
	e := newTestEngine(t, cfg)
	s := newDCSource(t, e)

	e.StartFrame(spatial.DefaultListener())
	out, _ := render(e, 1024)
	s.SetGain(0)
	for range 32 {
		e.StartFrame(spatial.DefaultListener())
		chunk, _ := render(e, 64)
		out = append(out, chunk...)
	}

	requireSmooth(t, out, 0.5*cfg.RampDelta()+1e-6)
	assert.Equal(t, float32(0), out[len(out)-1])
}

func TestStopFadesAtNextBlock(t *testing.T) {
	cfg := testConfig()
	cfg.RampMillis = 5
	e := newTestEngine(t, cfg)
	s := newDCSource(t, e)

	e.StartFrame(spatial.DefaultListener())
	before, _ := render(e, 1024)
	s.Stop()
	// no StartFrame: the stop is seen by the next block on its own
	after, _ := render(e, 1024)

	requireSmooth(t, append(before, after...), 0.5*cfg.RampDelta()+1e-6)
	assert.Less(t, after[2*cfg.BlockSize-1], float32(0.5), "fading starts within a block of Stop")
	ramp := int(float32(0.5)/(0.5*cfg.RampDelta())) + 2*cfg.BlockSize
	for i := ramp; i < len(after); i++ {
		require.Equal(t, float32(0), after[i], "frame %d", i)
	}
}

func TestEqualPowerPanWithoutHRTF(t *testing.T) {
	cfg := testConfig()
	cfg.HRTF = false
	e := newTestEngine(t, cfg)

	s, err := e.NewSource(newSample(t, e, "dc", 1, constant(4096, 8192)))
	require.NoError(t, err)
	s.SetLoop(true)
	s.SetReferenceDistance(2)
	s.SetPosition(spatial.V(2, 0, 0))
	require.NoError(t, s.Play())

	e.StartFrame(spatial.DefaultListener())
	left, right := render(e, 256)
	assert.InDelta(t, 0, left[200], 1e-6)
	assert.InDelta(t, 0.25, right[200], 1e-6)

	s.SetPosition(spatial.V(0, 0, 2))
	e.StartFrame(spatial.DefaultListener())
	left, right = render(e, 256)
	assert.InDelta(t, 0.25/1.41421356, left[200], 1e-5)
	assert.InDelta(t, 0.25/1.41421356, right[200], 1e-5)
}

func TestLimiterHoldsCeiling(t *testing.T) {
	e := newTestEngine(t, testConfig())
	for _, name := range []string{"one", "two"} {
		s, err := e.NewSource(newSample(t, e, name, 1, constant(4096, 32767)))
		require.NoError(t, err)
		s.SetLoop(true)
		s.SetSpatial(false)
		require.NoError(t, s.Play())
	}
	e.StartFrame(spatial.DefaultListener())
	left, right := render(e, 4096)

	ceiling := float32(e.Config().LimiterCeiling)
	assert.LessOrEqual(t, maxAbs(left), ceiling)
	assert.LessOrEqual(t, maxAbs(right), ceiling)
	assert.InDelta(t, ceiling, left[4095], 1e-4)
}

func TestLimiterSettlesOnPeak(t *testing.T) {
	cfg := DefaultConfig()
	l := newLimiter(cfg)

	block := func() ([]float32, []float32) {
		left := make([]float32, cfg.BlockSize)
		right := make([]float32, cfg.BlockSize)
		for i := range left {
			left[i] = 2
			right[i] = -1
		}
		return left, right
	}

	left, right := block()
	l.process(left, right)
	assert.InDelta(t, 0.49, l.gain, 1e-6)
	assert.InDelta(t, 0.98, left[cfg.BlockSize-1], 1e-6)

	left, right = block()
	l.process(left, right)
	for i := range left {
		assert.InDelta(t, 0.98, left[i], 1e-6)
		assert.InDelta(t, -0.49, right[i], 1e-6)
	}

	// quiet input recovers no faster than the release allows
	quiet := make([]float32, cfg.BlockSize)
	l.process(quiet, make([]float32, cfg.BlockSize))
	assert.InDelta(t, 0.49+l.release, l.gain, 1e-6)
}

func TestSnapshotSkippedWhileLocked(t *testing.T) {
	e := newTestEngine(t, testConfig())
	s, err := e.NewSource(newSample(t, e, "dc", 1, constant(4096, 8192)))
	require.NoError(t, err)
	s.SetLoop(true)
	s.SetSpatial(false)
	require.NoError(t, s.Play())
	e.StartFrame(spatial.DefaultListener())

	e.mu.Lock()
	left, _ := render(e, 128)
	e.mu.Unlock()

	assert.Equal(t, float32(0), maxAbs(left), "render must keep the old snapshot")
	assert.Equal(t, uint64(1), e.Stats().SkippedSwaps)
	assert.True(t, e.published.Load())

	left, _ = render(e, 128)
	assert.NotZero(t, maxAbs(left))
	assert.False(t, e.published.Load())
	assert.Equal(t, 1, e.Stats().Sources)
}

func TestTunablesApplyOnNextFrame(t *testing.T) {
	e := newTestEngine(t, testConfig())
	s, err := e.NewSource(newSample(t, e, "dc", 1, constant(4096, 8192)))
	require.NoError(t, err)
	s.SetLoop(true)
	s.SetSpatial(false)
	require.NoError(t, s.Play())

	e.SetGlobalGain(0.5)
	e.StartFrame(spatial.DefaultListener())
	left, _ := render(e, 256)
	assert.InDelta(t, 0.125, left[200], 1e-6)

	e.SetGlobalGain(-1)
	e.StartFrame(spatial.DefaultListener())
	left, _ = render(e, 256)
	assert.Equal(t, float32(0), left[200])
}

func TestNewSourceLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSources = 2
	e := newTestEngine(t, cfg)

	a, err := e.NewSource(nil)
	require.NoError(t, err)
	_, err = e.NewSource(nil)
	require.NoError(t, err)

	_, err = e.NewSource(nil)
	assert.True(t, errors.Is(err, ErrTooManySources))

	require.NoError(t, a.Close())
	c, err := e.NewSource(nil)
	require.NoError(t, err)
	assert.Equal(t, a.slot, c.slot)
	assert.NotEqual(t, a.gen, c.gen, "a reused slot gets a new generation")
}
