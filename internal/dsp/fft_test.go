package dsp

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestNewFFTRejectsInvalidOrders(t *testing.T) {
	for _, order := range []int{-1, 0, MaxLog2 + 1} {
		if _, err := NewFFT(order); !errors.Is(err, ErrInvalidOrder) {
			t.Errorf("order %d: expected ErrInvalidOrder, got %v", order, err)
		}
	}
}

func TestFFTRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for log2n := 1; log2n <= 14; log2n++ {
		f, err := NewFFT(log2n)
		if err != nil {
			t.Fatalf("NewFFT(%d): %v", log2n, err)
		}
		n := f.Size()
		orig := NewSplitComplex(n)
		for i := range n {
			orig.Real[i] = rng.Float32()*2 - 1
			orig.Imag[i] = rng.Float32()*2 - 1
		}
		work := NewSplitComplex(n)
		copy(work.Real, orig.Real)
		copy(work.Imag, orig.Imag)

		f.Forward(work)
		f.Inverse(work)

		scale := 1 / float32(n)
		tol := 1e-4 * float64(log2n)
		for i := range n {
			if d := math.Abs(float64(work.Real[i]*scale - orig.Real[i])); d > tol {
				t.Fatalf("n=%d real[%d]: off by %g", n, i, d)
			}
			if d := math.Abs(float64(work.Imag[i]*scale - orig.Imag[i])); d > tol {
				t.Fatalf("n=%d imag[%d]: off by %g", n, i, d)
			}
		}
	}
}

func TestFFTImpulseIsFlat(t *testing.T) {
	f, _ := NewFFT(5)
	x := NewSplitComplex(f.Size())
	x.Real[0] = 1
	f.Forward(x)
	for i := range f.Size() {
		if math.Abs(float64(x.Real[i]-1)) > 1e-6 || math.Abs(float64(x.Imag[i])) > 1e-6 {
			t.Fatalf("bin %d: expected 1+0i, got %v%+vi", i, x.Real[i], x.Imag[i])
		}
	}
}

func TestFFTMatchesDFT(t *testing.T) {
	f, _ := NewFFT(4)
	n := f.Size()
	x := NewSplitComplex(n)
	for i := range n {
		x.Real[i] = float32(math.Sin(float64(i) * 0.7))
		x.Imag[i] = float32(i%3) * 0.25
	}
	want := NewSplitComplex(n)
	for k := range n {
		var re, im float64
		for j := range n {
			a := -2 * math.Pi * float64(j*k) / float64(n)
			re += float64(x.Real[j])*math.Cos(a) - float64(x.Imag[j])*math.Sin(a)
			im += float64(x.Real[j])*math.Sin(a) + float64(x.Imag[j])*math.Cos(a)
		}
		want.Real[k] = float32(re)
		want.Imag[k] = float32(im)
	}
	f.Forward(x)
	for k := range n {
		if math.Abs(float64(x.Real[k]-want.Real[k])) > 1e-4 || math.Abs(float64(x.Imag[k]-want.Imag[k])) > 1e-4 {
			t.Errorf("bin %d: got %v%+vi want %v%+vi", k, x.Real[k], x.Imag[k], want.Real[k], want.Imag[k])
		}
	}
}

func TestFFTConvolution(t *testing.T) {
	// Circular convolution through the frequency domain must match the direct sum.
	f, _ := NewFFT(4)
	n := f.Size()
	a, b := NewSplitComplex(n), NewSplitComplex(n)
	sig := []float32{1, 2, 3, 0.5}
	ir := []float32{0.5, -0.25, 0.125}
	copy(a.Real, sig)
	copy(b.Real, ir)
	f.Forward(a)
	f.Forward(b)
	Multiply(a, b, a, n)
	f.Inverse(a)

	for i := range n {
		var want float32
		for j, h := range ir {
			if k := i - j; k >= 0 && k < len(sig) {
				want += sig[k] * h
			}
		}
		got := a.Real[i] / float32(n)
		if math.Abs(float64(got-want)) > 1e-5 {
			t.Errorf("sample %d: got %v want %v", i, got, want)
		}
	}
}

func TestLog2AndNextPow2(t *testing.T) {
	cases := []struct {
		n, log2, next int
	}{
		{1, 0, 1},
		{2, 1, 2},
		{3, -1, 4},
		{128, 7, 128},
		{129, -1, 256},
		{0, -1, 1},
	}
	for _, tc := range cases {
		if got := Log2(tc.n); got != tc.log2 {
			t.Errorf("Log2(%d) = %d, want %d", tc.n, got, tc.log2)
		}
		if got := NextPow2(tc.n); got != tc.next {
			t.Errorf("NextPow2(%d) = %d, want %d", tc.n, got, tc.next)
		}
	}
}
