// Package output connects an engine to a playback device or to an offline
// WAV file.
package output

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// Common errors for Backend implementations
var (
	ErrBackendNotAvailable = errors.New("audio backend not available")
	ErrBackendClosed       = errors.New("audio backend is closed")
	ErrAlreadyStarted      = errors.New("audio backend already started")
	ErrInvalidVolume       = errors.New("invalid volume level")
)

// Renderer produces interleaved float frames on demand. engine.Engine
// satisfies it.
type Renderer interface {
	Render(out []float32)
	SampleRate() int
	Channels() int
}

// Backend drives a Renderer from a playback device
type Backend interface {
	// Lifecycle management
	Start(r Renderer) error
	Stop() error
	Close() error

	// State management
	IsPlaying() bool
	SetVolume(volume float32) error
	GetVolume() float32
	Name() string
}

// volume is an atomically updated output gain shared by the device
// callbacks and the control side
type volume struct {
	bits atomic.Uint32
}

func newVolume() *volume {
	v := &volume{}
	v.set(1)
	return v
}

func (v *volume) set(g float32) { v.bits.Store(math.Float32bits(g)) }
func (v *volume) get() float32  { return math.Float32frombits(v.bits.Load()) }

func checkVolume(g float32) error {
	if g < 0 || g > 1 || g != g {
		return fmt.Errorf("%w: %f (must be 0.0-1.0)", ErrInvalidVolume, g)
	}
	return nil
}

// puller renders float frames into a scratch buffer and encodes them as
// little-endian float32 bytes. Scratch grows only when a device asks for a
// larger period than seen before.
type puller struct {
	r       Renderer
	vol     *volume
	scratch []float32
}

func newPuller(r Renderer, vol *volume, frames int) *puller {
	return &puller{
		r:       r,
		vol:     vol,
		scratch: make([]float32, frames*r.Channels()),
	}
}

// fill writes as many whole frames as fit in dst and returns the number of
// bytes written
func (p *puller) fill(dst []byte) int {
	frameBytes := 4 * p.r.Channels()
	n := len(dst) / frameBytes * p.r.Channels()
	if n == 0 {
		return 0
	}
	if cap(p.scratch) < n {
		p.scratch = make([]float32, n)
	}
	buf := p.scratch[:n]
	p.r.Render(buf)

	g := p.vol.get()
	for i, v := range buf {
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v*g))
	}
	return 4 * n
}
