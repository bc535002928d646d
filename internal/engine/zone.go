package engine

import (
	"fmt"
	"log/slog"

	"auralis.click/internal/audio"
	"auralis.click/internal/spatial"
)

// ZoneKind tags what a zone's sample is used for
type ZoneKind int

const (
	// Ambient zones loop their sample as a bed weighted by containment
	Ambient ZoneKind = iota
	// Reverb zones contribute their sample as an impulse response
	Reverb
)

func (k ZoneKind) String() string {
	switch k {
	case Ambient:
		return "ambient"
	case Reverb:
		return "reverb"
	default:
		return fmt.Sprintf("ZoneKind(%d)", int(k))
	}
}

// Zone is a spatial volume carrying either an ambient bed or a reverb
// impulse response. Zones whose samples share a name share a key and are
// merged by maximum containment.
type Zone struct {
	Kind   ZoneKind
	Sample *audio.Sample
	Gain   float64
	Volume spatial.Volume
}

// ZoneID identifies an added zone
type ZoneID uint64

// zoneKey is one logical zone shared by every instance with the same
// kind and sample name
type zoneKey struct {
	name   string
	kind   ZoneKind
	sample *audio.Sample
	ir     irSpectra
	refs   int
}

type zoneInstance struct {
	key    int
	gain   float64
	volume spatial.Volume
}

func keyName(kind ZoneKind, sample *audio.Sample) string {
	return kind.String() + ":" + sample.Name()
}

// AddZone registers a zone. Reverb impulse responses are decoded and
// transformed here, on the caller's goroutine.
func (e *Engine) AddZone(z Zone) (ZoneID, error) {
	if z.Kind != Ambient && z.Kind != Reverb {
		return 0, ErrInvalidZoneKind
	}
	if z.Sample == nil {
		z.Sample = audio.Silent("")
	}
	name := keyName(z.Kind, z.Sample)

	e.mu.Lock()
	existing := e.findKey(name) >= 0
	e.mu.Unlock()

	var ir irSpectra
	if z.Kind == Reverb && !existing {
		ir = e.prepareImpulse(z.Sample)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	k := e.findKey(name)
	if k < 0 {
		k = e.freeKey()
		if k < 0 {
			return 0, fmt.Errorf("%w: %d keys", ErrTooManyZones, len(e.keys))
		}
		e.keys[k] = &zoneKey{name: name, kind: z.Kind, sample: z.Sample, ir: ir}
		e.irs[k] = ir
	}
	e.keys[k].refs++

	e.nextZone++
	id := e.nextZone
	e.zones[id] = &zoneInstance{key: k, gain: z.Gain, volume: z.Volume}

	slog.Info("zone added",
		"id", id,
		"kind", z.Kind.String(),
		"sample", z.Sample.Name(),
		"gain", z.Gain)

	return id, nil
}

// RemoveZone drops a zone; its key is released with the last instance
func (e *Engine) RemoveZone(id ZoneID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	z, ok := e.zones[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownZone, id)
	}
	delete(e.zones, id)

	key := e.keys[z.key]
	key.refs--
	if key.refs == 0 {
		e.keys[z.key] = nil
		e.irs[z.key] = nil
		e.reverbVersion++
	}

	slog.Info("zone removed", "id", id, "key", key.name)
	return nil
}

// SetZoneVolume moves or reshapes a zone
func (e *Engine) SetZoneVolume(id ZoneID, v spatial.Volume) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	z, ok := e.zones[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownZone, id)
	}
	z.volume = v
	return nil
}

// SetZoneGain changes a zone's gain
func (e *Engine) SetZoneGain(id ZoneID, gain float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	z, ok := e.zones[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownZone, id)
	}
	z.gain = gain
	return nil
}

// ZoneWeight returns the merged containment of a zone's key as of the last
// StartFrame
func (e *Engine) ZoneWeight(id ZoneID) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	z, ok := e.zones[id]
	if !ok {
		return 0
	}
	return e.keyWeights[z.key]
}

func (e *Engine) findKey(name string) int {
	for i, k := range e.keys {
		if k != nil && k.name == name {
			return i
		}
	}
	return -1
}

func (e *Engine) freeKey() int {
	for i, k := range e.keys {
		if k == nil {
			return i
		}
	}
	return -1
}

// prepareImpulse decodes and partitions a reverb impulse response. A
// failure leaves the zone silent.
func (e *Engine) prepareImpulse(s *audio.Sample) irSpectra {
	chans, err := s.DecodeAll()
	if err != nil {
		slog.Warn("impulse response unavailable, zone will be dry", "sample", s.Name(), "error", err)
		return nil
	}
	ir, err := e.layout.prepareIR(chans, s.SampleRate(), e.cfg.SampleRate)
	if err != nil {
		slog.Warn("impulse response rejected", "sample", s.Name(), "error", err)
		return nil
	}
	slog.Debug("impulse response prepared",
		"sample", s.Name(),
		"frames", s.Frames(),
		"levels", len(e.layout.levels))
	return ir
}
