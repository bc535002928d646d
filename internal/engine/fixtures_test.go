package engine

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"auralis.click/internal/audio"
	"auralis.click/internal/hrtf"
)

// testConfig keeps ramps within one block and the reverb short so tests
// can look at exact block boundaries
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Reverb = false
	cfg.GainCutoff = 0
	cfg.RampMillis = 1
	cfg.ReverbMaxSeconds = 0.1
	cfg.MaxReverbPartition = 1024
	cfg.PoolSlots = 8
	cfg.WindowFrames = 1024
	return cfg
}

// deltaSet has four horizontal directions whose responses are single
// scaled impulses, so convolution reduces to per-ear gains
func deltaSet(rate int) *hrtf.Set {
	s := &hrtf.Set{SampleRate: rate}
	s.Add(0, 0, []float32{1, 0, 0, 0}, []float32{0.5, 0, 0, 0})
	s.Add(90, 0, []float32{0.25, 0, 0, 0}, []float32{1, 0, 0, 0})
	s.Add(180, 0, []float32{0.5, 0, 0, 0}, []float32{0.5, 0, 0, 0})
	s.Add(-90, 0, []float32{1, 0, 0, 0}, []float32{0.25, 0, 0, 0})
	return s
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, deltaSet(cfg.SampleRate))
	require.NoError(t, err)
	return e
}

func wavBytes(rate, channels int, values []int16) []byte {
	var b bytes.Buffer
	dataLen := len(values) * 2
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(channels))
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&b, binary.LittleEndian, uint16(channels*2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	binary.Write(&b, binary.LittleEndian, values)
	return b.Bytes()
}

func newSample(t *testing.T, e *Engine, name string, channels int, values []int16) *audio.Sample {
	t.Helper()
	s, err := audio.NewSample(name+".wav", "", wavBytes(e.SampleRate(), channels, values), nil, e.Cache())
	require.NoError(t, err)
	return s
}

func constant(frames int, v int16) []int16 {
	out := make([]int16, frames)
	for i := range out {
		out[i] = v
	}
	return out
}

func impulse(frames int, at map[int]int16) []int16 {
	out := make([]int16, frames)
	for i, v := range at {
		out[i] = v
	}
	return out
}

// render pulls frames from e and splits the ears
func render(e *Engine, frames int) ([]float32, []float32) {
	buf := make([]float32, 2*frames)
	e.Render(buf)
	left := make([]float32, frames)
	right := make([]float32, frames)
	for i := range frames {
		left[i] = buf[2*i]
		right[i] = buf[2*i+1]
	}
	return left, right
}

func maxAbs(buf []float32) float32 {
	var m float32
	for _, v := range buf {
		if v < 0 {
			v = -v
		}
		m = max(m, v)
	}
	return m
}
