package hrtf

import (
	"log/slog"
	"math"

	"auralis.click/internal/dsp"
)

const (
	headRadius   = 0.0875 // metres
	speedOfSound = 343.0  // metres per second
	// leading silence so the interpolated near-ear tap never underflows
	baseDelay = 2
)

// NewSphericalHead models a rigid spherical head: interaural time
// difference from Woodworth's formula and a gain drop plus one-pole
// low-pass on the far ear. It stands in when no measured set is installed.
func NewSphericalHead(sampleRate int) *Set {
	maxITD := headRadius / speedOfSound * (math.Pi/2 + 1) * float64(sampleRate)
	length := max(32, dsp.NextPow2(int(maxITD)+baseDelay+24))

	s := &Set{SampleRate: sampleRate}
	for el := -40.0; el <= 80; el += 20 {
		for az := 0.0; az < 360; az += 15 {
			l, r := sphericalPair(az, el, sampleRate, length)
			s.Add(az, el, l, r)
		}
	}
	l, r := sphericalPair(0, 90, sampleRate, length)
	s.Add(0, 90, l, r)

	slog.Debug("spherical head model built",
		"sample_rate", sampleRate,
		"directions", len(s.Directions),
		"length", length)

	return s
}

func sphericalPair(az, el float64, sampleRate, length int) ([]float32, []float32) {
	azr, elr := az*math.Pi/180, el*math.Pi/180
	lateral := math.Sin(azr) * math.Cos(elr) // +1 hard right, -1 hard left

	theta := math.Asin(math.Min(math.Abs(lateral), 1))
	itd := headRadius / speedOfSound * (theta + math.Sin(theta)) * float64(sampleRate)

	near := make([]float32, length)
	far := make([]float32, length)
	placeImpulse(near, baseDelay, 1)

	shadow := math.Abs(lateral)
	placeImpulse(far, baseDelay+itd, 1-0.45*shadow)
	onePole(far, 0.7*shadow)

	if lateral >= 0 {
		return far, near
	}
	return near, far
}

// placeImpulse writes a unit impulse at a fractional delay using linear
// interpolation between the two neighbouring taps
func placeImpulse(buf []float32, delay, gain float64) {
	i := int(delay)
	frac := delay - float64(i)
	if i < len(buf) {
		buf[i] += float32(gain * (1 - frac))
	}
	if i+1 < len(buf) {
		buf[i+1] += float32(gain * frac)
	}
}

// onePole low-passes buf in place, y[n] = (1-a)x[n] + a*y[n-1]
func onePole(buf []float32, a float64) {
	var y float64
	for i, x := range buf {
		y = (1-a)*float64(x) + a*y
		buf[i] = float32(y)
	}
}
