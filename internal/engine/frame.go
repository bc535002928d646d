package engine

import (
	"math"

	"auralis.click/internal/audio"
	"auralis.click/internal/hrtf"
	"auralis.click/internal/spatial"
)

// maxTaps bounds the buckets one source can touch in a block: the current
// neighbours plus buckets still ramping out
const maxTaps = 2 * hrtf.MaxNeighbors

type bucketGain struct {
	bucket int
	gain   float32
}

// mappedSource is one audible source as seen by the render thread
type mappedSource struct {
	slot   int
	gen    uint32
	epoch  uint32
	sample *audio.Sample
	start  int64
	ratio  float64
	loop   bool

	// route selects the direct path: HRTF buckets, equal-power pan of the
	// mono mix, or the sample's own channels
	route routing
	taps  [hrtf.MaxNeighbors]bucketGain
	ntaps int
	left  float32
	right float32

	reverb float32
}

type routing uint8

const (
	routeBuckets routing = iota
	routePanned
	routeChannels
)

type ambientTarget struct {
	sample *audio.Sample
	gain   float32
}

// snapshot is the per-simulation-frame scene state handed to the render
// thread
type snapshot struct {
	sources []mappedSource
	ambient []ambientTarget
	comp    *composite
}

// DistanceAttenuation is the raw inverse-distance law before cutoff:
// 1 / max(distance/reference, 1)^rolloff
func DistanceAttenuation(distance, reference, rolloff float64) float64 {
	if reference <= 0 {
		reference = 1
	}
	r := math.Max(distance/reference, 1)
	return 1 / math.Pow(r, rolloff)
}

// applyCutoff floors attenuations below cutoff to zero and rescales the
// rest so the curve stays continuous at the cutoff
func applyCutoff(att, cutoff float64) float64 {
	if att < cutoff {
		return 0
	}
	return (att - cutoff) / (1 - cutoff)
}

// equalPower splits gain between the ears from the lateral component of a
// unit direction (-1 left, +1 right)
func equalPower(gain, lateral float64) (float32, float32) {
	lateral = math.Max(-1, math.Min(1, lateral))
	theta := (lateral + 1) * math.Pi / 4
	return float32(gain * math.Cos(theta)), float32(gain * math.Sin(theta))
}

// StartFrame recomputes zone weights and source mappings for listener and
// publishes them to the render thread. Call once per simulation tick.
func (e *Engine) StartFrame(listener spatial.Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.back
	t := e.tun
	now := e.frame.Load()

	e.computeZoneWeights(listener.Position)

	// ambient beds and reverb blend
	for k := range snap.ambient {
		snap.ambient[k] = ambientTarget{}
		e.reverbWeights[k] = 0
	}
	var reverbSum float32
	for k, key := range e.keys {
		if key == nil || e.keyWeights[k] <= 0 {
			continue
		}
		w := e.keyWeights[k] * e.keyGains[k]
		switch key.kind {
		case Ambient:
			snap.ambient[k] = ambientTarget{
				sample: key.sample,
				gain:   float32(w * t.AmbientGain * t.GlobalGain),
			}
		case Reverb:
			if t.Reverb && key.ir != nil {
				e.reverbWeights[k] = float32(w)
				reverbSum += float32(w)
			}
		}
	}
	if reverbSum > 1 {
		for k := range e.reverbWeights {
			e.reverbWeights[k] /= reverbSum
		}
	}
	if !equalWeights(e.reverbWeights, e.lastReverb) {
		copy(e.lastReverb, e.reverbWeights)
		e.reverbVersion++
	}
	if snap.comp.version != e.reverbVersion {
		snap.comp.build(e.irs, e.reverbWeights, e.reverbVersion)
	}

	// sources
	snap.sources = snap.sources[:0]
	for i := 0; i < len(e.active); {
		s := e.active[i]
		m, finished := e.mapSource(s, listener, t, now)
		if finished {
			e.stopLocked(s, 0)
			continue
		}
		i++
		if m.route == routeBuckets && m.ntaps == 0 && m.reverb == 0 && !s.audible {
			continue
		}
		if m.route != routeBuckets && m.left == 0 && m.right == 0 && m.reverb == 0 && !s.audible {
			continue
		}
		// the entry stays one more frame after going silent; the render
		// thread keeps ramping it out after that until it is quiet
		s.audible = m.ntaps > 0 || m.left != 0 || m.right != 0 || m.reverb != 0
		snap.sources = append(snap.sources, m)
	}

	e.back, e.pending = e.pending, e.back
	e.published.Store(true)
}

func (e *Engine) computeZoneWeights(p spatial.Vec3) {
	clear(e.keyWeights)
	clear(e.keyGains)
	for _, z := range e.zones {
		c := z.volume.Containment(p)
		// max-merge; the gain follows the instance that wins
		if c > e.keyWeights[z.key] {
			e.keyWeights[z.key] = c
			e.keyGains[z.key] = z.gain
		}
	}
}

// mapSource computes one source's render entry. finished reports a
// non-looping source that has played past its end.
func (e *Engine) mapSource(s *Source, l spatial.Listener, t tunables, now int64) (mappedSource, bool) {
	s.mu.Lock()
	sample := s.sample
	gain, pitch, loop, is3D := s.gain, s.pitch, s.loop, s.spatial
	refDist, rolloff, send, occ, pos := s.refDist, s.rolloff, s.reverbSend, s.occlusion, s.position
	s.mu.Unlock()

	ratio := sampleRatio(sample, e.cfg.SampleRate, pitch)
	if !loop && float64(now-s.start)*ratio >= float64(sample.Frames()) {
		return mappedSource{}, true
	}

	m := mappedSource{
		slot:   s.slot,
		gen:    s.gen,
		epoch:  e.slotEpoch[s.slot].Load(),
		sample: sample,
		start:  s.start,
		ratio:  ratio,
		loop:   loop,
	}

	g := gain * t.GlobalGain
	local := l.ToLocal(pos)
	if is3D {
		att := DistanceAttenuation(local.Length(), refDist, rolloff)
		g *= applyCutoff(att, t.GainCutoff)
	}

	if occ&OccludeReverb == 0 && t.Reverb {
		m.reverb = float32(g * send * t.ReverbSend)
	}
	if occ&OccludeDirect != 0 || g == 0 {
		if !is3D {
			m.route = routeChannels
		} else if !t.HRTF {
			m.route = routePanned
		}
		return m, false
	}

	dir := local.Normalize()
	if local.Length() < 1e-9 {
		dir = spatial.V(0, 0, 1)
	}

	switch {
	case !is3D:
		m.route = routeChannels
		m.left, m.right = float32(g), float32(g)
	case !t.HRTF:
		m.route = routePanned
		m.left, m.right = equalPower(g, dir.X)
	case t.HighQualityHRTF:
		n := e.bank.Neighbors(dir, e.neighborScratch[:])
		for i := range n {
			m.taps[i] = bucketGain{
				bucket: e.neighborScratch[i].Index,
				gain:   float32(g * e.neighborScratch[i].Weight),
			}
		}
		m.ntaps = n
	default:
		m.taps[0] = bucketGain{bucket: e.bank.Nearest(dir), gain: float32(g)}
		m.ntaps = 1
	}
	return m, false
}

func equalWeights(a, b []float32) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
