// Package spatial holds the geometry shared by the render engine: vectors,
// zone transforms, containment weighting and the listener frame.
package spatial

// Volume is a unit sphere placed in the world by a Transform. Containment
// is 1 at the centre and fades to 0 over the outer Gradient fraction of the
// radius.
type Volume struct {
	Transform Transform
	Gradient  float64
}

// Containment returns the influence weight of the volume at a world point,
// in [0,1]. Per-axis scale in the transform is honoured because the point is
// first mapped back into the unit sphere.
func (v Volume) Containment(p Vec3) float64 {
	local, ok := v.Transform.InverseApply(p)
	if !ok {
		return 0
	}
	d := local.Length()
	if d >= 1 {
		return 0
	}
	if v.Gradient <= 0 {
		return 1
	}
	w := (1 - d) / v.Gradient
	if w > 1 {
		return 1
	}
	if w < 0 {
		return 0
	}
	return w
}

// Listener is the world-space frame audio is rendered for.
type Listener struct {
	Position Vec3
	Forward  Vec3
	Up       Vec3
}

// DefaultListener sits at the origin looking down +Z with +Y up.
func DefaultListener() Listener {
	return Listener{Forward: V(0, 0, 1), Up: V(0, 1, 0)}
}

// ToLocal expresses a world point in listener space: X right, Y up, Z forward.
func (l Listener) ToLocal(p Vec3) Vec3 {
	fwd := l.Forward.Normalize()
	if fwd == (Vec3{}) {
		fwd = V(0, 0, 1)
	}
	up := l.Up.Sub(fwd.Scale(l.Up.Dot(fwd))).Normalize()
	if up == (Vec3{}) {
		up = V(0, 1, 0)
	}
	// Left-handed frame: with forward +Z and up +Y, right is +X.
	right := up.Cross(fwd)
	d := p.Sub(l.Position)
	return Vec3{X: d.Dot(right), Y: d.Dot(up), Z: d.Dot(fwd)}
}
