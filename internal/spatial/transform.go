package spatial

// Transform maps a zone's local unit space into world space. Axes hold the
// world-space images of the local X, Y and Z unit vectors, so non-uniform
// scale and rotation are both expressed through them.
type Transform struct {
	Origin Vec3
	Axes   [3]Vec3
}

// Identity returns the transform that leaves points unchanged.
func Identity() Transform {
	return Transform{Axes: [3]Vec3{V(1, 0, 0), V(0, 1, 0), V(0, 0, 1)}}
}

// Sphere returns a transform for an axis-aligned sphere of the given radius.
func Sphere(center Vec3, radius float64) Transform {
	return Ellipsoid(center, radius, radius, radius)
}

// Ellipsoid returns a transform for an axis-aligned ellipsoid with per-axis radii.
func Ellipsoid(center Vec3, rx, ry, rz float64) Transform {
	return Transform{
		Origin: center,
		Axes:   [3]Vec3{V(rx, 0, 0), V(0, ry, 0), V(0, 0, rz)},
	}
}

// Apply maps a local-space point into world space.
func (t Transform) Apply(p Vec3) Vec3 {
	return t.Origin.
		Add(t.Axes[0].Scale(p.X)).
		Add(t.Axes[1].Scale(p.Y)).
		Add(t.Axes[2].Scale(p.Z))
}

// InverseApply maps a world-space point into the transform's local space.
// The second result is false when the axes are degenerate.
func (t Transform) InverseApply(p Vec3) (Vec3, bool) {
	a, b, c := t.Axes[0], t.Axes[1], t.Axes[2]
	det := a.Dot(b.Cross(c))
	if det == 0 {
		return Vec3{}, false
	}
	d := p.Sub(t.Origin)
	// Cramer's rule on the column matrix [a b c].
	inv := 1 / det
	return Vec3{
		X: d.Dot(b.Cross(c)) * inv,
		Y: a.Dot(d.Cross(c)) * inv,
		Z: a.Dot(b.Cross(d)) * inv,
	}, true
}
