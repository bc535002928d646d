package dsp

// Multiply computes out = a * b pointwise over the first n complex elements.
// out may alias a or b.
func Multiply(a, b, out SplitComplex, n int) {
	ar, ai := a.Real[:n], a.Imag[:n]
	br, bi := b.Real[:n], b.Imag[:n]
	or, oi := out.Real[:n], out.Imag[:n]
	for i := range n {
		r := ar[i]*br[i] - ai[i]*bi[i]
		im := ar[i]*bi[i] + ai[i]*br[i]
		or[i] = r
		oi[i] = im
	}
}

// MultiplyAccumulate computes out += a * b pointwise over n complex elements.
func MultiplyAccumulate(a, b, out SplitComplex, n int) {
	ar, ai := a.Real[:n], a.Imag[:n]
	br, bi := b.Real[:n], b.Imag[:n]
	or, oi := out.Real[:n], out.Imag[:n]
	for i := range n {
		or[i] += ar[i]*br[i] - ai[i]*bi[i]
		oi[i] += ar[i]*bi[i] + ai[i]*br[i]
	}
}

// ScaleAccumulateComplex computes out += a * s over n complex elements.
func ScaleAccumulateComplex(a, out SplitComplex, s float32, n int) {
	ar, ai := a.Real[:n], a.Imag[:n]
	or, oi := out.Real[:n], out.Imag[:n]
	for i := range n {
		or[i] += ar[i] * s
		oi[i] += ai[i] * s
	}
}

// Accumulate adds src into dst element-wise.
func Accumulate(src, dst []float32) {
	dst = dst[:len(src)]
	for i, v := range src {
		dst[i] += v
	}
}

// Scale multiplies buf in place.
func Scale(buf []float32, s float32) {
	for i := range buf {
		buf[i] *= s
	}
}

// ScaleCopy writes src*s into dst.
func ScaleCopy(src, dst []float32, s float32) {
	dst = dst[:len(src)]
	for i, v := range src {
		dst[i] = v * s
	}
}

// ScaleRamp multiplies buf by a gain that moves linearly from start to end.
// Sample i gets start + (end-start)*(i+1)/len(buf), so the last sample is
// scaled by exactly end and a following block can continue from there.
func ScaleRamp(buf []float32, start, end float32) {
	n := len(buf)
	if n == 0 {
		return
	}
	if start == end {
		Scale(buf, end)
		return
	}
	step := (end - start) / float32(n)
	g := start
	for i := 0; i < n-1; i++ {
		g += step
		buf[i] *= g
	}
	buf[n-1] *= end
}

// ScaleRampAccumulate adds src scaled by a linear start->end ramp into dst,
// using the same gain progression as ScaleRamp.
func ScaleRampAccumulate(src, dst []float32, start, end float32) {
	n := len(src)
	if n == 0 {
		return
	}
	dst = dst[:n]
	if start == end {
		for i, v := range src {
			dst[i] += v * end
		}
		return
	}
	step := (end - start) / float32(n)
	g := start
	for i := 0; i < n-1; i++ {
		g += step
		dst[i] += src[i] * g
	}
	dst[n-1] += src[n-1] * end
}

// Int16ToFloat fills dst from every stride-th sample of src, multiplied by
// scale. Use scale = amplitude/32768 to map full-scale PCM to [-1,1).
func Int16ToFloat(src []int16, dst []float32, stride int, scale float32) {
	if stride <= 1 {
		src = src[:len(dst)]
		for i, v := range src {
			dst[i] = float32(v) * scale
		}
		return
	}
	for i := range dst {
		dst[i] = float32(src[i*stride]) * scale
	}
}

// Peak returns the largest absolute value in buf.
func Peak(buf []float32) float32 {
	var p float32
	for _, v := range buf {
		if v < 0 {
			v = -v
		}
		if v > p {
			p = v
		}
	}
	return p
}
