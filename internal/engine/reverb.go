package engine

import (
	"fmt"

	"auralis.click/internal/dsp"
)

// partitionLevel is one uniform partition size in the reverb schedule.
// Partitions [offset, offset+count*size) of the impulse response are
// convolved with a frequency-domain delay line of 2*size transforms.
type partitionLevel struct {
	size   int
	log2   int // of the 2*size transform
	offset int
	count  int
	// delay postpones firing by whole blocks so larger transforms do not
	// all land on the same block
	delay int
}

// reverbLayout is the partition schedule: two partitions each of B, 2B,
// 4B ... and as many maximum-size partitions as the length requires.
type reverbLayout struct {
	block  int
	maxLen int
	levels []partitionLevel
}

func newReverbLayout(block, maxPartition, maxLen int) reverbLayout {
	l := reverbLayout{block: block, maxLen: maxLen}
	offset := 0
	for k, size := 0, block; offset < maxLen; k, size = k+1, size*2 {
		count := 2
		if size >= maxPartition {
			size = maxPartition
			count = (maxLen - offset + size - 1) / size
		} else {
			count = min(count, (maxLen-offset+size-1)/size)
		}
		l.levels = append(l.levels, partitionLevel{
			size:   size,
			log2:   dsp.Log2(2 * size),
			offset: offset,
			count:  count,
			delay:  max(k-1, 0),
		})
		offset += count * size
		if size == maxPartition {
			break
		}
	}
	return l
}

// maxDelay is the largest firing delay in blocks
func (l reverbLayout) maxDelay() int {
	d := 0
	for _, lv := range l.levels {
		d = max(d, lv.delay)
	}
	return d
}

func (l reverbLayout) maxSize() int {
	if len(l.levels) == 0 {
		return l.block
	}
	return l.levels[len(l.levels)-1].size
}

// fires reports whether level lv runs during block b, and if so the
// absolute end frame of its input segment
func (l reverbLayout) fires(lv partitionLevel, b int64) (int64, bool) {
	k := b + 1 - int64(lv.delay)
	stride := int64(lv.size / l.block)
	if k <= 0 || k%stride != 0 {
		return 0, false
	}
	return k * int64(l.block), true
}

// irSpectra is one impulse response cut to the layout. A nil partition is
// silent.
type irSpectra [][]dsp.SplitComplex

// prepareIR resamples a stereo (or mono) impulse response to rate by
// nearest ratio and transforms every partition. Spectra are scaled for the
// unnormalised inverse transform.
func (l reverbLayout) prepareIR(chans [][]float32, srcRate, rate int) (irSpectra, error) {
	if len(chans) == 0 || len(chans[0]) == 0 {
		return nil, fmt.Errorf("empty impulse response")
	}
	left, right := chans[0], chans[0]
	if len(chans) > 1 {
		right = chans[1]
	}
	n := min(len(left)*rate/srcRate, l.maxLen)
	at := func(ch []float32, i int) float32 {
		j := int(int64(i) * int64(srcRate) / int64(rate))
		if j >= len(ch) {
			return 0
		}
		return ch[j]
	}

	out := make(irSpectra, len(l.levels))
	for li, lv := range l.levels {
		fft, err := dsp.NewFFT(lv.log2)
		if err != nil {
			return nil, err
		}
		out[li] = make([]dsp.SplitComplex, lv.count)
		for j := range lv.count {
			start := lv.offset + j*lv.size
			if start >= n {
				break
			}
			spec := dsp.NewSplitComplex(2 * lv.size)
			silent := true
			for i := 0; i < lv.size && start+i < n; i++ {
				spec.Real[i] = at(left, start+i)
				spec.Imag[i] = at(right, start+i)
				if spec.Real[i] != 0 || spec.Imag[i] != 0 {
					silent = false
				}
			}
			if silent {
				continue
			}
			fft.Forward(spec)
			scale := 1 / float32(2*lv.size)
			dsp.Scale(spec.Real, scale)
			dsp.Scale(spec.Imag, scale)
			out[li][j] = spec
		}
	}
	return out, nil
}

// composite is the weighted blend of every contained reverb zone's
// response, built on the simulation thread into a snapshot slot
type composite struct {
	version uint64
	active  bool
	parts   [][]dsp.SplitComplex
	live    [][]bool
}

func newComposite(l reverbLayout) *composite {
	c := &composite{
		parts: make([][]dsp.SplitComplex, len(l.levels)),
		live:  make([][]bool, len(l.levels)),
	}
	for li, lv := range l.levels {
		c.parts[li] = make([]dsp.SplitComplex, lv.count)
		c.live[li] = make([]bool, lv.count)
		for j := range lv.count {
			c.parts[li][j] = dsp.NewSplitComplex(2 * lv.size)
		}
	}
	return c
}

// build sets c to sum(weights[k] * irs[k])
func (c *composite) build(irs []irSpectra, weights []float32, version uint64) {
	c.version = version
	c.active = false
	for li := range c.parts {
		for j := range c.parts[li] {
			c.live[li][j] = false
			c.parts[li][j].Clear()
		}
	}
	for k, ir := range irs {
		w := weights[k]
		if ir == nil || w <= 0 {
			continue
		}
		for li := range ir {
			for j, spec := range ir[li] {
				if spec.Real == nil {
					continue
				}
				dst := c.parts[li][j]
				dsp.ScaleAccumulateComplex(spec, dst, w, dst.Len())
				c.live[li][j] = true
				c.active = true
			}
		}
	}
}

// reverbState is the render-side convolution state
type reverbState struct {
	layout  reverbLayout
	ffts    []*dsp.FFT
	hist    [][]dsp.SplitComplex // per level, ring of input spectra
	histPos []int
	acc     []dsp.SplitComplex
	input   []float32 // ring of reverb-send input
	active  bool
}

func newReverbState(l reverbLayout) (*reverbState, error) {
	r := &reverbState{
		layout:  l,
		ffts:    make([]*dsp.FFT, len(l.levels)),
		hist:    make([][]dsp.SplitComplex, len(l.levels)),
		histPos: make([]int, len(l.levels)),
		acc:     make([]dsp.SplitComplex, len(l.levels)),
		input:   make([]float32, l.maxSize()+(l.maxDelay()+1)*l.block),
	}
	for li, lv := range l.levels {
		fft, err := dsp.NewFFT(lv.log2)
		if err != nil {
			return nil, fmt.Errorf("reverb partition %d: %w", lv.size, err)
		}
		r.ffts[li] = fft
		r.hist[li] = make([]dsp.SplitComplex, lv.count)
		for j := range lv.count {
			r.hist[li][j] = dsp.NewSplitComplex(2 * lv.size)
		}
		r.acc[li] = dsp.NewSplitComplex(2 * lv.size)
	}
	return r, nil
}

func (r *reverbState) reset() {
	for li := range r.hist {
		for j := range r.hist[li] {
			r.hist[li][j].Clear()
		}
		r.histPos[li] = 0
	}
	clear(r.input)
}

// process writes one block of send input starting at absolute frame pos
// and runs every level due in block b, overlap-adding into the output
// rings
func (r *reverbState) process(c *composite, send []float32, b, pos int64, ringL, ringR []float32) {
	if c == nil || !c.active {
		if r.active {
			r.reset()
			r.active = false
		}
		return
	}
	r.active = true
	writeRing(r.input, pos, send)

	for li, lv := range r.layout.levels {
		end, ok := r.layout.fires(lv, b)
		if !ok {
			continue
		}
		start := end - int64(lv.size)
		n := 2 * lv.size

		slot := r.histPos[li]
		x := r.hist[li][slot]
		readRing(r.input, start, x.Real[:lv.size])
		clear(x.Real[lv.size:n])
		clear(x.Imag[:n])
		r.ffts[li].Forward(x)

		acc := r.acc[li]
		acc.Clear()
		used := false
		for j := range lv.count {
			if !c.live[li][j] {
				continue
			}
			h := (slot - j + lv.count) % lv.count
			dsp.MultiplyAccumulate(r.hist[li][h], c.parts[li][j], acc, n)
			used = true
		}
		r.histPos[li] = (slot + 1) % lv.count
		if !used {
			continue
		}

		r.ffts[li].Inverse(acc)
		at := start + int64(lv.offset)
		addRing(ringL, at, acc.Real[:n])
		addRing(ringR, at, acc.Imag[:n])
	}
}

// ring helpers; positions are absolute frames

func ringIndex(ring []float32, pos int64) int {
	return int(pos % int64(len(ring)))
}

func writeRing(ring []float32, pos int64, src []float32) {
	i := ringIndex(ring, pos)
	n := copy(ring[i:], src)
	copy(ring, src[n:])
}

func readRing(ring []float32, pos int64, dst []float32) {
	i := ringIndex(ring, pos)
	n := copy(dst, ring[i:])
	copy(dst[n:], ring)
}

func addRing(ring []float32, pos int64, src []float32) {
	i := ringIndex(ring, pos)
	n := min(len(src), len(ring)-i)
	dsp.Accumulate(src[:n], ring[i:i+n])
	if n < len(src) {
		dsp.Accumulate(src[n:], ring[:len(src)-n])
	}
}
