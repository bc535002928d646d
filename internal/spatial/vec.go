package spatial

import "math"

// Vec3 is a point or direction in world or listener space.
type Vec3 struct {
	X, Y, Z float64
}

// V is shorthand for constructing a Vec3
func V(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Dot(o Vec3) float64 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Length() float64 { return math.Sqrt(v.Dot(v)) }

// Normalize returns the unit vector in the direction of v, or the zero
// vector when v has no length.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

// FromAngles builds a unit direction in listener space from azimuth and
// elevation in degrees. Azimuth 0 is straight ahead, 90 is to the right;
// elevation 90 is straight up.
func FromAngles(azimuth, elevation float64) Vec3 {
	az := azimuth * math.Pi / 180
	el := elevation * math.Pi / 180
	return Vec3{
		X: math.Sin(az) * math.Cos(el),
		Y: math.Sin(el),
		Z: math.Cos(az) * math.Cos(el),
	}
}
