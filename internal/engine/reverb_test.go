package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auralis.click/internal/spatial"
)

func TestReverbLayoutPartitions(t *testing.T) {
	l := newReverbLayout(128, 1024, 4410)

	sizes := []int{}
	offsets := []int{}
	for _, lv := range l.levels {
		sizes = append(sizes, lv.size)
		offsets = append(offsets, lv.offset)
	}
	assert.Equal(t, []int{128, 256, 512, 1024}, sizes)
	assert.Equal(t, []int{0, 256, 768, 1792}, offsets)
	assert.Equal(t, 3, l.levels[3].count)
	assert.Equal(t, 2, l.maxDelay())
	assert.Equal(t, 1024, l.maxSize())
}

func TestReverbLengthIsFixedAtConstruction(t *testing.T) {
	cfg := testConfig()
	cfg.Reverb = true
	e := newTestEngine(t, cfg)
	want := cfg.reverbMaxFrames()

	last := e.layout.levels[len(e.layout.levels)-1]
	assert.Equal(t, want, e.layout.maxLen)
	assert.GreaterOrEqual(t, last.offset+last.count*last.size, want)

	e.SetReverb(false)
	e.SetReverb(true)
	e.StartFrame(spatial.DefaultListener())
	render(e, 256)
	assert.Equal(t, want, e.layout.maxLen, "toggling reverb keeps the layout")
	assert.Equal(t, e.layout.levels, e.r.reverb.layout.levels)
}

func TestReverbLayoutShortResponse(t *testing.T) {
	l := newReverbLayout(128, 4096, 200)
	require.Len(t, l.levels, 1)
	assert.Equal(t, 2, l.levels[0].count)
}

// Every firing must land its output no earlier than the block being
// rendered and must only read input that has already been written.
func TestReverbScheduleIsCausal(t *testing.T) {
	for _, tc := range []struct{ block, maxP, length int }{
		{128, 1024, 4410},
		{128, 4096, 132300},
		{64, 8192, 44100},
		{256, 256, 10000},
	} {
		l := newReverbLayout(tc.block, tc.maxP, tc.length)
		covered := 0
		for _, lv := range l.levels {
			covered = max(covered, lv.offset+lv.count*lv.size)
			fired := 0
			for b := int64(0); b < 256; b++ {
				end, ok := l.fires(lv, b)
				if !ok {
					continue
				}
				fired++
				pos := b * int64(tc.block)
				start := end - int64(lv.size)
				assert.LessOrEqual(t, end, pos+int64(tc.block), "level %d reads ahead at block %d", lv.size, b)
				assert.GreaterOrEqual(t, start+int64(lv.offset), pos, "level %d lands late at block %d", lv.size, b)
				assert.Less(t, pos-start, int64(lv.size+(l.maxDelay()+1)*tc.block), "input ring too short")
			}
			assert.NotZero(t, fired)
		}
		assert.GreaterOrEqual(t, covered, tc.length)
	}
}

func TestPrepareIRSkipsSilentPartitions(t *testing.T) {
	l := newReverbLayout(128, 1024, 4410)
	ir := make([]float32, 1200)
	ir[0] = 1
	spectra, err := l.prepareIR([][]float32{ir}, 44100, 44100)
	require.NoError(t, err)

	assert.NotNil(t, spectra[0][0].Real)
	assert.Nil(t, spectra[0][1].Real)
	assert.Nil(t, spectra[3][0].Real)

	_, err = l.prepareIR(nil, 44100, 44100)
	assert.Error(t, err)
}

func TestCompositeWeightsResponses(t *testing.T) {
	l := newReverbLayout(128, 1024, 1024)
	a := make([]float32, 64)
	a[0] = 1
	ir, err := l.prepareIR([][]float32{a}, 44100, 44100)
	require.NoError(t, err)

	c := newComposite(l)
	c.build([]irSpectra{ir, ir, nil}, []float32{0.25, 0.5, 1}, 7)
	assert.True(t, c.active)
	assert.Equal(t, uint64(7), c.version)
	assert.True(t, c.live[0][0])
	assert.False(t, c.live[0][1])
	// a unit impulse has a flat spectrum of 1/(2*size)
	assert.InDelta(t, 0.75/256, c.parts[0][0].Real[5], 1e-7)

	c.build([]irSpectra{ir}, []float32{0}, 8)
	assert.False(t, c.active)
	assert.Equal(t, float32(0), c.parts[0][0].Real[5])
}

func TestRingHelpersWrap(t *testing.T) {
	ring := make([]float32, 8)
	writeRing(ring, 6, []float32{1, 2, 3, 4})
	assert.Equal(t, []float32{3, 4, 0, 0, 0, 0, 1, 2}, ring)

	addRing(ring, 14, []float32{1, 1, 1})
	assert.Equal(t, []float32{4, 4, 0, 0, 0, 0, 2, 3}, ring)

	out := make([]float32, 3)
	readRing(ring, 7, out)
	assert.Equal(t, []float32{3, 4, 4}, out)
}
