package engine

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"auralis.click/internal/audio"
	"auralis.click/internal/spatial"
)

// Occlusion flags remove paths from a source's mix
type Occlusion uint8

const (
	// OccludeDirect silences the direct (HRTF or panned) path
	OccludeDirect Occlusion = 1 << iota
	// OccludeReverb silences the reverb send
	OccludeReverb
)

// Source is one playback instance of a sample. Properties may be changed
// from any goroutine; changes are picked up by the next StartFrame, except
// Stop, which the render thread sees at its next block.
//
// Position is expressed as an absolute frame count: while playing, the
// source's frame 0 is anchored to an engine frame, while stopped the frame
// it paused at is kept.
type Source struct {
	id   uuid.UUID
	e    *Engine
	slot int
	gen  uint32

	// guarded by e.mu
	playing bool
	start   int64
	paused  int64
	active  int
	audible bool
	closed  bool

	mu         sync.Mutex
	sample     *audio.Sample
	gain       float64
	pitch      float64
	loop       bool
	spatial    bool
	refDist    float64
	rolloff    float64
	reverbSend float64
	occlusion  Occlusion
	position   spatial.Vec3
}

// NewSource allocates a source slot for sample
func (e *Engine) NewSource(sample *audio.Sample) (*Source, error) {
	if sample == nil {
		sample = audio.Silent("")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// search from the slot after the last one handed out so a freed slot
	// can finish ramping out before it is reused
	slot := -1
	for k := range e.slotUsed {
		i := (e.nextSlot + k) % len(e.slotUsed)
		if !e.slotUsed[i] {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, ErrTooManySources
	}
	e.nextSlot = slot + 1
	e.slotUsed[slot] = true
	e.slotGen[slot]++

	s := &Source{
		id:         uuid.New(),
		e:          e,
		slot:       slot,
		gen:        e.slotGen[slot],
		active:     -1,
		sample:     sample,
		gain:       1,
		pitch:      1,
		spatial:    true,
		refDist:    1,
		rolloff:    1,
		reverbSend: 1,
	}

	slog.Debug("source created", "id", s.id, "slot", slot, "sample", sample.Name())
	return s, nil
}

// ID returns the source's unique identifier
func (s *Source) ID() uuid.UUID { return s.id }

// Play starts or resumes playback from the paused frame. No-op if playing.
func (s *Source) Play() error {
	e := s.e
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.closed {
		return ErrSourceClosed
	}
	if s.playing {
		return nil
	}
	s.playing = true
	s.start = e.frame.Load() - s.paused
	s.active = len(e.active)
	e.active = append(e.active, s)
	return nil
}

// Stop pauses playback, remembering the current frame. No-op if stopped.
func (s *Source) Stop() {
	e := s.e
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked(s, e.frame.Load()-s.start)
}

// stopLocked removes s from the active set; e.mu must be held
func (e *Engine) stopLocked(s *Source, paused int64) {
	if !s.playing {
		return
	}
	s.playing = false
	s.audible = false
	s.paused = paused
	e.slotEpoch[s.slot].Add(1)

	last := len(e.active) - 1
	moved := e.active[last]
	e.active[s.active] = moved
	moved.active = s.active
	e.active[last] = nil
	e.active = e.active[:last]
	s.active = -1
}

// IsPlaying reports whether the source is in the active set
func (s *Source) IsPlaying() bool {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.playing
}

// AudioFrame returns the current position in engine frames
func (s *Source) AudioFrame() int64 {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if s.playing {
		return s.e.frame.Load() - s.start
	}
	return s.paused
}

// SetAudioFrame seeks to an absolute frame, playing or not
func (s *Source) SetAudioFrame(frame int64) {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	if s.playing {
		s.start = s.e.frame.Load() - frame
	} else {
		s.paused = frame
	}
}

// Sample pulls frameCount samples of one channel at the current position,
// scaled by gain. A stopped source yields silence. It reads through the
// sample's private window, not the render cache, so any goroutine may call
// it while Render runs.
func (s *Source) Sample(frameCount, channel int, buf []float32, gain float32) {
	s.e.mu.Lock()
	playing := s.playing
	frame := s.e.frame.Load() - s.start
	s.e.mu.Unlock()

	if !playing {
		clear(buf[:frameCount])
		return
	}

	s.mu.Lock()
	sample, loop, pitch := s.sample, s.loop, s.pitch
	s.mu.Unlock()

	ratio := sampleRatio(sample, s.e.cfg.SampleRate, pitch)
	sample.ReadStep(float64(frame)*ratio, ratio, frameCount, channel, buf, gain, loop)
}

// Close stops the source and releases its slot
func (s *Source) Close() error {
	e := s.e
	e.mu.Lock()
	defer e.mu.Unlock()
	if s.closed {
		return nil
	}
	e.stopLocked(s, 0)
	s.closed = true
	e.slotUsed[s.slot] = false
	slog.Debug("source closed", "id", s.id, "slot", s.slot)
	return nil
}

// SetSample swaps the sample a source plays
func (s *Source) SetSample(sample *audio.Sample) {
	if sample == nil {
		sample = audio.Silent("")
	}
	s.mu.Lock()
	s.sample = sample
	s.mu.Unlock()
}

// SetGain sets the linear source gain
func (s *Source) SetGain(g float64) {
	s.mu.Lock()
	s.gain = max(g, 0)
	s.mu.Unlock()
}

// SetPitch scales the playback rate
func (s *Source) SetPitch(p float64) {
	s.mu.Lock()
	if p > 0 {
		s.pitch = p
	}
	s.mu.Unlock()
}

// SetLoop enables wrap-around playback
func (s *Source) SetLoop(loop bool) {
	s.mu.Lock()
	s.loop = loop
	s.mu.Unlock()
}

// SetSpatial selects 3-D rendering. Non-spatial sources keep their own
// channels and ignore distance.
func (s *Source) SetSpatial(is3D bool) {
	s.mu.Lock()
	s.spatial = is3D
	s.mu.Unlock()
}

// SetReferenceDistance sets the distance below which no attenuation applies
func (s *Source) SetReferenceDistance(d float64) {
	s.mu.Lock()
	if d > 0 {
		s.refDist = d
	}
	s.mu.Unlock()
}

// SetRolloff sets the distance attenuation exponent
func (s *Source) SetRolloff(r float64) {
	s.mu.Lock()
	s.rolloff = max(r, 0)
	s.mu.Unlock()
}

// SetReverbSend sets the fraction of the source routed to the reverb bus
func (s *Source) SetReverbSend(send float64) {
	s.mu.Lock()
	s.reverbSend = max(send, 0)
	s.mu.Unlock()
}

// SetOcclusion replaces the occlusion flags
func (s *Source) SetOcclusion(o Occlusion) {
	s.mu.Lock()
	s.occlusion = o
	s.mu.Unlock()
}

// SetPosition places the source in world space
func (s *Source) SetPosition(p spatial.Vec3) {
	s.mu.Lock()
	s.position = p
	s.mu.Unlock()
}

// Position returns the world position
func (s *Source) Position() spatial.Vec3 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// sampleRatio is asset frames per engine frame
func sampleRatio(sample *audio.Sample, engineRate int, pitch float64) float64 {
	rate := sample.SampleRate()
	if rate <= 0 {
		return pitch
	}
	return float64(rate) / float64(engineRate) * pitch
}
