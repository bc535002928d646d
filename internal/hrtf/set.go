// Package hrtf holds head-related impulse response sets and turns them into
// the frequency-domain bank the render engine convolves against.
//
// Directions are unit vectors in listener space: X to the right, Y up,
// Z forward.
package hrtf

import (
	"errors"
	"fmt"
	"math"

	"auralis.click/internal/spatial"
)

var (
	ErrNoDirections = errors.New("hrtf set has no directions")
	ErrInvalidSet   = errors.New("invalid hrtf set")
)

// Set is a raw measured (or modelled) direction set
type Set struct {
	SampleRate int
	Directions []spatial.Vec3
	Left       [][]float32
	Right      [][]float32
}

// Validate checks that every direction has a non-empty impulse pair
func (s *Set) Validate() error {
	if len(s.Directions) == 0 {
		return ErrNoDirections
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrInvalidSet, s.SampleRate)
	}
	if len(s.Left) != len(s.Directions) || len(s.Right) != len(s.Directions) {
		return fmt.Errorf("%w: %d directions, %d left and %d right responses",
			ErrInvalidSet, len(s.Directions), len(s.Left), len(s.Right))
	}
	for i := range s.Directions {
		if len(s.Left[i]) == 0 || len(s.Right[i]) == 0 {
			return fmt.Errorf("%w: direction %d has an empty response", ErrInvalidSet, i)
		}
		if l := s.Directions[i].Length(); l < 1e-9 || math.IsNaN(l) {
			return fmt.Errorf("%w: direction %d has zero length", ErrInvalidSet, i)
		}
	}
	return nil
}

// Add appends one direction. azimuth and elevation are in degrees;
// positive azimuth turns right, positive elevation up.
func (s *Set) Add(azimuth, elevation float64, left, right []float32) {
	dir := spatial.FromAngles(azimuth*math.Pi/180, elevation*math.Pi/180)
	s.Directions = append(s.Directions, dir)
	s.Left = append(s.Left, left)
	s.Right = append(s.Right, right)
}
