package engine

import (
	"fmt"
	"time"

	"auralis.click/internal/audio"
	"auralis.click/internal/dsp"
	"auralis.click/internal/hrtf"
)

// slotState is the render thread's memory of one source slot: the gains
// reached at the end of the last block it was rendered in, and the entry
// it was rendered from
type slotState struct {
	gen       uint32
	lastBlock int64
	taps      [maxTaps]bucketGain
	ntaps     int
	left      float32
	right     float32
	reverb    float32
	src       mappedSource
}

func (st *slotState) sounding() bool {
	return st.ntaps > 0 || st.left != 0 || st.right != 0 || st.reverb != 0
}

// renderState is touched by the render goroutine only
type renderState struct {
	block    int64
	front    *snapshot
	rampStep float32 // largest gain change across one block

	slots []slotState
	// slots still sounding after the previous block, and those sounding
	// after the current one
	live []int
	next []int

	// per-bucket time-domain sums; every source mapped to a bucket is
	// added here before the single transform of that bucket
	buckets [][]float32
	marked  []bool
	touched []int
	fft     *dsp.FFT
	spec    dsp.SplitComplex
	acc     dsp.SplitComplex

	sig  []float32
	sigR []float32
	mono []float32
	send []float32

	ringL []float32
	ringR []float32

	reverb *reverbState

	ambPrev   []float32
	ambSample []*audio.Sample

	lim limiter

	outBlock []float32
	outPos   int
}

func (r *renderState) init(cfg Config, bank *hrtf.Bank, layout reverbLayout) error {
	b := cfg.BlockSize
	fft, err := dsp.NewFFT(bank.Log2)
	if err != nil {
		return fmt.Errorf("hrtf transform: %w", err)
	}
	rev, err := newReverbState(layout)
	if err != nil {
		return err
	}

	r.rampStep = cfg.RampDelta() * float32(b)
	r.slots = make([]slotState, cfg.MaxSources)
	for i := range r.slots {
		r.slots[i].lastBlock = -2
	}
	r.live = make([]int, 0, cfg.MaxSources)
	r.next = make([]int, 0, cfg.MaxSources)

	n := len(bank.Directions)
	r.buckets = make([][]float32, n)
	for i := range r.buckets {
		r.buckets[i] = make([]float32, b)
	}
	r.marked = make([]bool, n)
	r.touched = make([]int, 0, n)
	r.fft = fft
	r.spec = dsp.NewSplitComplex(bank.FFTSize)
	r.acc = dsp.NewSplitComplex(bank.FFTSize)

	r.sig = make([]float32, b)
	r.sigR = make([]float32, b)
	r.mono = make([]float32, b)
	r.send = make([]float32, b)

	ring := roundUp(layout.maxLen+2*layout.maxSize()+bank.FFTSize+2*b, b)
	r.ringL = make([]float32, ring)
	r.ringR = make([]float32, ring)
	r.reverb = rev

	r.ambPrev = make([]float32, cfg.MaxZones)
	r.ambSample = make([]*audio.Sample, cfg.MaxZones)

	r.lim = newLimiter(cfg)

	r.outBlock = make([]float32, 2*b)
	r.outPos = len(r.outBlock)
	return nil
}

// stepToward moves g toward target by at most step
func stepToward(g, target, step float32) float32 {
	switch {
	case target > g+step:
		return g + step
	case target < g-step:
		return g - step
	default:
		return target
	}
}

func (e *Engine) renderBlock() {
	began := time.Now()
	r := &e.r
	b := r.block
	size := e.cfg.BlockSize
	pos := b * int64(size)

	e.acquireSnapshot()
	snap := r.front
	e.cache.Tick()

	clear(r.send)
	r.next = r.next[:0]
	for i := range snap.sources {
		m := &snap.sources[i]
		if e.slotEpoch[m.slot].Load() != m.epoch {
			// stopped after this snapshot was built
			fade := m.silenced()
			e.renderSource(&fade, b, pos)
			continue
		}
		e.renderSource(m, b, pos)
	}
	e.rampOut(b, pos)
	e.convolveBuckets(pos)
	r.reverb.process(snap.comp, r.send, b, pos, r.ringL, r.ringR)
	e.renderAmbient(snap, pos)

	i := ringIndex(r.ringL, pos)
	left := r.ringL[i : i+size]
	right := r.ringR[i : i+size]
	r.lim.process(left, right)
	ceiling := r.lim.ceiling
	for j := range size {
		r.outBlock[2*j] = clamp(left[j], ceiling)
		r.outBlock[2*j+1] = clamp(right[j], ceiling)
	}
	clear(left)
	clear(right)

	e.cache.Expire()
	r.block++
	e.frame.Add(int64(size))

	elapsed := time.Since(began)
	e.stats.blocks.Add(1)
	e.stats.sources.Store(int64(len(snap.sources)))
	if elapsed > e.blockPeriod() {
		e.stats.overruns.Add(1)
	}
	if ns := elapsed.Nanoseconds(); ns > e.stats.maxBlockNs.Load() {
		e.stats.maxBlockNs.Store(ns)
	}
}

func (e *Engine) renderSource(m *mappedSource, b, pos int64) {
	r := &e.r
	size := e.cfg.BlockSize
	st := &r.slots[m.slot]
	if st.gen != m.gen || st.lastBlock != b-1 {
		*st = slotState{gen: m.gen}
	}
	st.lastBlock = b

	// signal for this block
	at := float64(pos-m.start) * m.ratio
	m.sample.SampleStep(at, m.ratio, size, 0, r.sig, 1, m.loop)
	left, right, mono := r.sig, r.sig, r.sig
	if m.sample.Channels() > 1 {
		m.sample.SampleStep(at, m.ratio, size, 1, r.sigR, 1, m.loop)
		right = r.sigR
		for i := range r.mono {
			r.mono[i] = 0.5 * (r.sig[i] + r.sigR[i])
		}
		mono = r.mono
	}

	step := r.rampStep

	// HRTF buckets: ramp toward the new taps, fade out the ones left behind
	var next [maxTaps]bucketGain
	n := 0
	for j := range m.ntaps {
		t := m.taps[j]
		g0 := st.gainFor(t.bucket)
		g1 := stepToward(g0, t.gain, step)
		e.addBucket(t.bucket, mono, g0, g1)
		if n < maxTaps {
			next[n] = bucketGain{bucket: t.bucket, gain: g1}
			n++
		}
	}
	for j := range st.ntaps {
		old := st.taps[j]
		if m.hasTap(old.bucket) || old.gain == 0 {
			continue
		}
		g1 := stepToward(old.gain, 0, step)
		e.addBucket(old.bucket, mono, old.gain, g1)
		if g1 > 0 && n < maxTaps {
			next[n] = bucketGain{bucket: old.bucket, gain: g1}
			n++
		}
	}
	st.taps = next
	st.ntaps = n

	// direct path
	i := ringIndex(r.ringL, pos)
	outL := r.ringL[i : i+size]
	outR := r.ringR[i : i+size]
	if m.route == routePanned {
		left, right = mono, mono
	}
	l1 := stepToward(st.left, m.left, step)
	r1 := stepToward(st.right, m.right, step)
	if st.left != 0 || l1 != 0 {
		dsp.ScaleRampAccumulate(left, outL, st.left, l1)
	}
	if st.right != 0 || r1 != 0 {
		dsp.ScaleRampAccumulate(right, outR, st.right, r1)
	}
	st.left, st.right = l1, r1

	// reverb send
	rv := stepToward(st.reverb, m.reverb, step)
	if st.reverb != 0 || rv != 0 {
		dsp.ScaleRampAccumulate(mono, r.send, st.reverb, rv)
	}
	st.reverb = rv

	st.src = *m
	if st.sounding() {
		r.next = append(r.next, m.slot)
	}
}

// rampOut keeps fading every slot that was sounding after the previous
// block but is missing from the current snapshot, until its gains reach
// zero
func (e *Engine) rampOut(b, pos int64) {
	r := &e.r
	for _, slot := range r.live {
		st := &r.slots[slot]
		if st.lastBlock != b-1 {
			continue
		}
		fade := st.src.silenced()
		e.renderSource(&fade, b, pos)
	}
	r.live, r.next = r.next, r.live
}

// silenced is m with every target gain at zero
func (m *mappedSource) silenced() mappedSource {
	fade := *m
	fade.ntaps = 0
	fade.left, fade.right, fade.reverb = 0, 0, 0
	return fade
}

func (st *slotState) gainFor(bucket int) float32 {
	for j := range st.ntaps {
		if st.taps[j].bucket == bucket {
			return st.taps[j].gain
		}
	}
	return 0
}

func (m *mappedSource) hasTap(bucket int) bool {
	for j := range m.ntaps {
		if m.taps[j].bucket == bucket {
			return true
		}
	}
	return false
}

func (e *Engine) addBucket(bucket int, sig []float32, g0, g1 float32) {
	if g0 == 0 && g1 == 0 {
		return
	}
	r := &e.r
	if !r.marked[bucket] {
		r.marked[bucket] = true
		clear(r.buckets[bucket])
		r.touched = append(r.touched, bucket)
	}
	dsp.ScaleRampAccumulate(sig, r.buckets[bucket], g0, g1)
}

// convolveBuckets transforms every touched bucket once, multiplies by its
// direction's response and sums the spectra, then inverts once. The left
// ear comes out in the real part and the right ear in the imaginary part.
func (e *Engine) convolveBuckets(pos int64) {
	r := &e.r
	if len(r.touched) == 0 {
		return
	}
	size := e.cfg.BlockSize
	n := r.spec.Len()

	r.acc.Clear()
	for _, k := range r.touched {
		copy(r.spec.Real, r.buckets[k])
		clear(r.spec.Real[size:])
		clear(r.spec.Imag)
		r.fft.Forward(r.spec)
		dsp.MultiplyAccumulate(r.spec, e.bank.Spectra[k], r.acc, n)
		r.marked[k] = false
	}
	r.touched = r.touched[:0]

	r.fft.Inverse(r.acc)
	addRing(r.ringL, pos, r.acc.Real)
	addRing(r.ringR, pos, r.acc.Imag)
}

// renderAmbient mixes every contained ambient bed, looping from absolute
// frame 0
func (e *Engine) renderAmbient(snap *snapshot, pos int64) {
	r := &e.r
	size := e.cfg.BlockSize
	i := ringIndex(r.ringL, pos)
	outL := r.ringL[i : i+size]
	outR := r.ringR[i : i+size]

	for k, t := range snap.ambient {
		if t.sample != nil && t.sample != r.ambSample[k] {
			r.ambSample[k] = t.sample
			r.ambPrev[k] = 0
		}
		sample := r.ambSample[k]
		g0 := r.ambPrev[k]
		g1 := stepToward(g0, t.gain, r.rampStep)
		if sample == nil || (g0 == 0 && g1 == 0) {
			continue
		}
		r.ambPrev[k] = g1

		ratio := sampleRatio(sample, e.cfg.SampleRate, 1)
		at := float64(pos) * ratio
		sample.SampleStep(at, ratio, size, 0, r.sig, 1, true)
		right := r.sig
		if sample.Channels() > 1 {
			sample.SampleStep(at, ratio, size, 1, r.sigR, 1, true)
			right = r.sigR
		}
		dsp.ScaleRampAccumulate(r.sig, outL, g0, g1)
		dsp.ScaleRampAccumulate(right, outR, g0, g1)
	}
}

func clamp(v, limit float32) float32 {
	if v > limit {
		return limit
	}
	if v < -limit {
		return -limit
	}
	return v
}
