package telemetry

import "math"

// Angle is in radians.
type Angle float64

// AngleFromDegrees creates Angle from degrees.
func AngleFromDegrees(d float64) Angle {
	return Angle(d * math.Pi / 180.0)
}

// Radians gets angle in radians.
func (a Angle) Radians() float64 {
	return float64(a)
}

// Degrees gets angle in degrees.
func (a Angle) Degrees() float64 {
	return float64(a) * 180 / math.Pi
}

// Normalize wraps the angle into (-π, π].
func (a Angle) Normalize() Angle {
	r := math.Mod(float64(a), 2*math.Pi)
	if r <= -math.Pi {
		r += 2 * math.Pi
	} else if r > math.Pi {
		r -= 2 * math.Pi
	}
	return Angle(r)
}

// Yaw returns the unit quaternion rotating by a about Z.
func (a Angle) Yaw() Quaternion {
	half := float64(a) / 2
	return Quaternion{Z: float32(math.Sin(half)), W: float32(math.Cos(half))}
}

// YawOf extracts the rotation about Z from a quaternion.
func YawOf(q Quaternion) Angle {
	x, y, z, w := float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)
	return Angle(math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z)))
}
