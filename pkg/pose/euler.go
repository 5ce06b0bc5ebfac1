package pose

import "math"

// Euler holds pitch (about X), yaw (about Y) and roll (about Z) in radians.
type Euler struct {
	Pitch float64
	Yaw   float64
	Roll  float64
}

// ToEuler extracts Euler angles for R = Ry * Rx * Rz.
// Pitch is limited to [-π/2, π/2]; yaw and roll span (-π, π].
func (q Quaternion) ToEuler() Euler {
	x, y, z, w := q.X, q.Y, q.Z, q.W

	sinPitch := clamp(2*(w*x-y*z), -1, 1)

	return Euler{
		Pitch: math.Asin(sinPitch),
		Yaw:   math.Atan2(2*(x*z+w*y), 1-2*(x*x+y*y)),
		Roll:  math.Atan2(2*(x*y+w*z), 1-2*(x*x+z*z)),
	}
}

// FromEuler builds the quaternion for R = Ry(yaw) * Rx(pitch) * Rz(roll).
func FromEuler(pitch, yaw, roll float64) Quaternion {
	qy := AxisAngle(0, 1, 0, yaw)
	qx := AxisAngle(1, 0, 0, pitch)
	qz := AxisAngle(0, 0, 1, roll)
	return qy.Mul(qx).Mul(qz)
}

// Quaternion converts e back into a rotation.
func (e Euler) Quaternion() Quaternion {
	return FromEuler(e.Pitch, e.Yaw, e.Roll)
}

// Degrees converts radians to degrees for logging/display.
func Degrees(radians float64) float64 {
	return radians * 180.0 / math.Pi
}

// Radians converts degrees to radians.
func Radians(degrees float64) float64 {
	return degrees * math.Pi / 180.0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
