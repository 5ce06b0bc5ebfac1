// Package pose converts head rotations into the slider coefficients shown
// next to face-tracking blendshapes.
//
// Conventions: X is right, Y is up, Z is forward. Pitch rotates about X,
// yaw about Y and roll about Z. Rotations compose as R = Ry * Rx * Rz.
package pose

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Quaternion is a rotation stored as (x, y, z, w).
// Trackers are expected to deliver unit quaternions; nothing here enforces it.
type Quaternion struct {
	X, Y, Z, W float64
}

// Identity is the zero rotation.
var Identity = Quaternion{W: 1}

// NewQuaternion builds a quaternion from its raw components.
func NewQuaternion(x, y, z, w float64) Quaternion {
	return Quaternion{X: x, Y: y, Z: z, W: w}
}

func (q Quaternion) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quaternion {
	return Quaternion{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// XYZW returns the raw components in wire order.
func (q Quaternion) XYZW() (x, y, z, w float64) {
	return q.X, q.Y, q.Z, q.W
}

// Norm returns the quaternion's length.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.number())
}

// Normalize returns q scaled to unit length. A zero quaternion yields Identity.
func (q Quaternion) Normalize() Quaternion {
	n := q.Norm()
	if n < 1e-12 {
		return Identity
	}
	return fromNumber(quat.Scale(1/n, q.number()))
}

// Mul returns the Hamilton product q*r (apply r, then q).
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return fromNumber(quat.Mul(q.number(), r.number()))
}

// Conjugate returns the inverse rotation of a unit quaternion.
func (q Quaternion) Conjugate() Quaternion {
	return fromNumber(quat.Conj(q.number()))
}

// Dot returns the 4D dot product.
func (q Quaternion) Dot(r Quaternion) float64 {
	return q.X*r.X + q.Y*r.Y + q.Z*r.Z + q.W*r.W
}

// Equivalent reports whether q and r describe the same rotation within tol.
// q and -q are the same rotation.
func (q Quaternion) Equivalent(r Quaternion, tol float64) bool {
	return 1-math.Abs(q.Normalize().Dot(r.Normalize())) <= tol
}

// IsZeroRotation reports whether q is the identity rotation within tol.
func (q Quaternion) IsZeroRotation(tol float64) bool {
	return q.Equivalent(Identity, tol)
}

func (q Quaternion) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f, %.4f)", q.X, q.Y, q.Z, q.W)
}

// AxisAngle builds a unit quaternion rotating angle radians about axis.
func AxisAngle(ax, ay, az, angle float64) Quaternion {
	n := math.Sqrt(ax*ax + ay*ay + az*az)
	if n < 1e-12 {
		return Identity
	}
	s := math.Sin(angle/2) / n
	return Quaternion{X: ax * s, Y: ay * s, Z: az * s, W: math.Cos(angle / 2)}
}

// Slerp interpolates along the shorter arc from q (t=0) to r (t=1).
// Inputs are normalized first.
func Slerp(q, r Quaternion, t float64) Quaternion {
	q, r = q.Normalize(), r.Normalize()
	d := q.Dot(r)
	if d < 0 {
		r = Quaternion{X: -r.X, Y: -r.Y, Z: -r.Z, W: -r.W}
		d = -d
	}

	// Nearly parallel: lerp avoids dividing by sin(theta) ~ 0.
	if d > 0.9995 {
		return Quaternion{
			X: q.X + t*(r.X-q.X),
			Y: q.Y + t*(r.Y-q.Y),
			Z: q.Z + t*(r.Z-q.Z),
			W: q.W + t*(r.W-q.W),
		}.Normalize()
	}

	theta := math.Acos(d)
	s := math.Sin(theta)
	a := math.Sin((1-t)*theta) / s
	b := math.Sin(t*theta) / s
	return fromNumber(quat.Add(quat.Scale(a, q.number()), quat.Scale(b, r.number())))
}
