package posemath

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Euler holds intrinsic X-Y-Z angles in degrees.
type Euler struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// EulerXYZDegrees decomposes R = Rx(roll)·Ry(pitch)·Rz(yaw) and returns the
// angles in degrees. The asin argument is clamped to [-1, 1]; there is no
// special handling at pitch = ±90°.
func EulerXYZDegrees(r mat.Matrix) Euler {
	pitch := math.Asin(clamp(r.At(0, 2), -1, 1))
	roll := math.Atan2(-r.At(1, 2), r.At(2, 2))
	yaw := math.Atan2(-r.At(0, 1), r.At(0, 0))

	return Euler{
		Roll:  degrees(roll),
		Pitch: degrees(pitch),
		Yaw:   degrees(yaw),
	}
}

// degrees converts radians; adding zero turns -0 into +0 for cleaner logs.
func degrees(rad float64) float64 {
	return rad*180/math.Pi + 0
}

// FromEulerXYZDegrees builds Rx(roll)·Ry(pitch)·Rz(yaw).
func FromEulerXYZDegrees(e Euler) *mat.Dense {
	a := e.Roll * math.Pi / 180
	b := e.Pitch * math.Pi / 180
	c := e.Yaw * math.Pi / 180
	ca, sa := math.Cos(a), math.Sin(a)
	cb, sb := math.Cos(b), math.Sin(b)
	cc, sc := math.Cos(c), math.Sin(c)

	return mat.NewDense(3, 3, []float64{
		cb * cc, -cb * sc, sb,
		ca*sc + sa*sb*cc, ca*cc - sa*sb*sc, -sa * cb,
		sa*sc - ca*sb*cc, sa*cc + ca*sb*sc, ca * cb,
	})
}
