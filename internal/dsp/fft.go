// Package dsp contains the allocation-free signal kernels used by the render
// engine: a radix-2 FFT over split real/imaginary buffers and a handful of
// vector helpers. Nothing here allocates after construction, so every
// function is safe to call from the audio callback.
package dsp

import (
	"errors"
	"fmt"
	"math"
)

// MaxLog2 bounds the transform sizes the engine will ever ask for.
const MaxLog2 = 20

var ErrInvalidOrder = errors.New("invalid FFT order")

// SplitComplex stores a complex vector as separate real and imaginary slices.
type SplitComplex struct {
	Real []float32
	Imag []float32
}

// NewSplitComplex allocates a zeroed complex vector of length n.
func NewSplitComplex(n int) SplitComplex {
	return SplitComplex{Real: make([]float32, n), Imag: make([]float32, n)}
}

// Len returns the number of complex elements.
func (s SplitComplex) Len() int { return len(s.Real) }

// Clear zeroes both halves.
func (s SplitComplex) Clear() {
	clear(s.Real)
	clear(s.Imag)
}

// FFT holds the bit-reversal and twiddle tables for one transform order.
type FFT struct {
	log2n int
	n     int
	rev   []int32
	cos   []float32
	sin   []float32
}

// NewFFT precomputes tables for transforms of length 2^log2n.
func NewFFT(log2n int) (*FFT, error) {
	if log2n < 1 || log2n > MaxLog2 {
		return nil, fmt.Errorf("%w: 2^%d", ErrInvalidOrder, log2n)
	}
	n := 1 << log2n
	f := &FFT{
		log2n: log2n,
		n:     n,
		rev:   make([]int32, n),
		cos:   make([]float32, n/2),
		sin:   make([]float32, n/2),
	}
	for i := 0; i < n; i++ {
		r := 0
		for b := 0; b < log2n; b++ {
			if i&(1<<b) != 0 {
				r |= 1 << (log2n - 1 - b)
			}
		}
		f.rev[i] = int32(r)
	}
	for k := 0; k < n/2; k++ {
		angle := 2 * math.Pi * float64(k) / float64(n)
		f.cos[k] = float32(math.Cos(angle))
		f.sin[k] = float32(math.Sin(angle))
	}
	return f, nil
}

// Size returns the transform length.
func (f *FFT) Size() int { return f.n }

// Log2 returns the transform order.
func (f *FFT) Log2() int { return f.log2n }

// Forward performs an in-place decimation-in-time forward transform of the
// first Size() elements of x.
func (f *FFT) Forward(x SplitComplex) {
	f.transform(x.Real[:f.n], x.Imag[:f.n])
}

// Inverse performs an unnormalized in-place inverse transform by running the
// forward kernel with the real and imaginary roles swapped. The result is
// Size() times the true inverse; callers fold the 1/Size() factor into their
// own scaling.
func (f *FFT) Inverse(x SplitComplex) {
	f.transform(x.Imag[:f.n], x.Real[:f.n])
}

func (f *FFT) transform(re, im []float32) {
	n := f.n
	for i := 0; i < n; i++ {
		j := int(f.rev[i])
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := n / size
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				wr := f.cos[k*step]
				wi := -f.sin[k*step]
				a := start + k
				b := a + half
				tr := re[b]*wr - im[b]*wi
				ti := re[b]*wi + im[b]*wr
				re[b] = re[a] - tr
				im[b] = im[a] - ti
				re[a] += tr
				im[a] += ti
			}
		}
	}
}

// Log2 returns log2(n) when n is a power of two, or -1.
func Log2(n int) int {
	if n <= 0 || n&(n-1) != 0 {
		return -1
	}
	l := 0
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

// NextPow2 returns the smallest power of two >= n.
func NextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
