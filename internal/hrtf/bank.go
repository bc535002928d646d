package hrtf

import (
	"fmt"
	"log/slog"
	"math"

	"auralis.click/internal/dsp"
	"auralis.click/internal/spatial"
)

// MaxNeighbors bounds the taps Neighbors returns
const MaxNeighbors = 4

// onsetThreshold is relative to the loudest response in the set
const onsetThreshold = 1e-3

// Bank is a Set prepared for block convolution at one sample rate.
//
// Each direction has a single combined spectrum H = FFT(left) + i*FFT(right),
// pre-scaled by 1/N. Multiplying the spectrum of a real block by H and
// inverting yields the left ear in the real part and the right ear in the
// imaginary part.
type Bank struct {
	SampleRate int
	BlockSize  int
	FFTSize    int
	Log2       int
	FilterLen  int
	// Latency is the common leading silence trimmed from every response
	Latency    int
	Directions []spatial.Vec3
	Spectra    []dsp.SplitComplex
}

// Tap is one direction bucket and its blend weight
type Tap struct {
	Index  int
	Weight float64
}

// Prepare resamples the set to sampleRate (nearest ratio), trims the common
// onset and transforms every response for blocks of blockSize frames.
func (s *Set) Prepare(sampleRate, blockSize int) (*Bank, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 || dsp.Log2(blockSize) < 0 {
		return nil, fmt.Errorf("%w: sample rate %d, block size %d", ErrInvalidSet, sampleRate, blockSize)
	}

	n := len(s.Directions)
	left := make([][]float32, n)
	right := make([][]float32, n)
	for i := range n {
		left[i] = resampleNearest(s.Left[i], s.SampleRate, sampleRate)
		right[i] = resampleNearest(s.Right[i], s.SampleRate, sampleRate)
	}

	var peak float32
	for i := range n {
		peak = max(peak, dsp.Peak(left[i]), dsp.Peak(right[i]))
	}
	if peak == 0 {
		return nil, fmt.Errorf("%w: every response is silent", ErrInvalidSet)
	}

	onset := math.MaxInt
	filterLen := 0
	for i := range n {
		onset = min(onset, firstAbove(left[i], peak*onsetThreshold), firstAbove(right[i], peak*onsetThreshold))
	}
	for i := range n {
		left[i] = left[i][onset:]
		right[i] = right[i][onset:]
		filterLen = max(filterLen, len(left[i]), len(right[i]))
	}

	size := dsp.NextPow2(blockSize + filterLen - 1)
	log2 := dsp.Log2(size)
	fft, err := dsp.NewFFT(log2)
	if err != nil {
		return nil, fmt.Errorf("hrtf filter too long for block size %d: %w", blockSize, err)
	}

	b := &Bank{
		SampleRate: sampleRate,
		BlockSize:  blockSize,
		FFTSize:    size,
		Log2:       log2,
		FilterLen:  filterLen,
		Latency:    onset,
		Directions: make([]spatial.Vec3, n),
		Spectra:    make([]dsp.SplitComplex, n),
	}
	for i := range n {
		b.Directions[i] = s.Directions[i].Normalize()
		b.Spectra[i] = StereoSpectrum(fft, left[i], right[i])
	}

	slog.Info("hrtf bank prepared",
		"directions", n,
		"sample_rate", sampleRate,
		"filter_len", filterLen,
		"fft_size", size,
		"trimmed_onset", onset)

	return b, nil
}

// StereoSpectrum returns FFT(left) + i*FFT(right) scaled by 1/N. Both
// responses must fit in the transform.
func StereoSpectrum(fft *dsp.FFT, left, right []float32) dsp.SplitComplex {
	spec := dsp.NewSplitComplex(fft.Size())
	copy(spec.Real, left)
	copy(spec.Imag, right)
	// A single transform of l + i*r is FFT(l) + i*FFT(r) by linearity
	fft.Forward(spec)
	scale := 1 / float32(fft.Size())
	dsp.Scale(spec.Real, scale)
	dsp.Scale(spec.Imag, scale)
	return spec
}

// Nearest returns the bucket whose direction is closest to dir
func (b *Bank) Nearest(dir spatial.Vec3) int {
	dir = dir.Normalize()
	best, bestDot := 0, math.Inf(-1)
	for i, d := range b.Directions {
		if dot := d.Dot(dir); dot > bestDot {
			best, bestDot = i, dot
		}
	}
	return best
}

// Neighbors fills out with up to MaxNeighbors buckets around dir, weighted
// by inverse angular distance and normalised to sum to 1. Returns the
// number of taps written.
func (b *Bank) Neighbors(dir spatial.Vec3, out []Tap) int {
	dir = dir.Normalize()
	limit := min(len(out), MaxNeighbors, len(b.Directions))
	if limit == 0 {
		return 0
	}

	var angles [MaxNeighbors]float64
	count := 0
	for i, d := range b.Directions {
		a := math.Acos(math.Max(-1, math.Min(1, d.Dot(dir))))
		if count < limit {
			out[count] = Tap{Index: i}
			angles[count] = a
			count++
		} else if a < angles[count-1] {
			out[count-1] = Tap{Index: i}
			angles[count-1] = a
		} else {
			continue
		}
		// keep sorted by angle
		for j := count - 1; j > 0 && angles[j] < angles[j-1]; j-- {
			angles[j], angles[j-1] = angles[j-1], angles[j]
			out[j], out[j-1] = out[j-1], out[j]
		}
	}

	if angles[0] < 1e-6 {
		out[0].Weight = 1
		return 1
	}
	var sum float64
	for j := range count {
		out[j].Weight = 1 / angles[j]
		sum += out[j].Weight
	}
	for j := range count {
		out[j].Weight /= sum
	}
	return count
}

func resampleNearest(in []float32, from, to int) []float32 {
	if from == to {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}
	n := int((int64(len(in))*int64(to) + int64(from) - 1) / int64(from))
	out := make([]float32, n)
	for i := range out {
		out[i] = in[min(int64(i)*int64(from)/int64(to), int64(len(in)-1))]
	}
	return out
}

func firstAbove(buf []float32, threshold float32) int {
	for i, v := range buf {
		if v > threshold || -v > threshold {
			return i
		}
	}
	return len(buf)
}
