// Package posemath provides the small set of rigid-transform operations used to
// express marker poses relative to a calibrated origin.
package posemath

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a rigid transform: a 3x3 rotation matrix and a translation.
type Pose struct {
	R *mat.Dense
	T r3.Vec
}

// Identity returns the identity pose.
func Identity() Pose {
	return Pose{R: eye(), T: r3.Vec{}}
}

// NewPose builds a pose from a rotation vector (axis * angle, radians) and a
// translation, which is how detectors report marker poses.
func NewPose(rvec, tvec r3.Vec) Pose {
	return Pose{R: FromRotationVector(rvec), T: tvec}
}

// Invert returns (Rᵀ, -Rᵀ·t).
func Invert(p Pose) Pose {
	rt := transpose(p.R)
	return Pose{
		R: rt,
		T: r3.Scale(-1, mulVec(rt, p.T)),
	}
}

// Compose returns the pose of b expressed in a's frame:
// R = Raᵀ·Rb, t = Raᵀ·(tb - ta).
// It is equal to Multiply(Invert(a), b).
func Compose(a, b Pose) Pose {
	var r mat.Dense
	r.Mul(a.R.T(), b.R)
	return Pose{
		R: &r,
		T: mulVecTrans(a.R, r3.Sub(b.T, a.T)),
	}
}

// Multiply chains two transforms: (Ra·Rb, Ra·tb + ta).
func Multiply(a, b Pose) Pose {
	var r mat.Dense
	r.Mul(a.R, b.R)
	return Pose{
		R: &r,
		T: r3.Add(mulVec(a.R, b.T), a.T),
	}
}

// FromRotationVector converts a Rodrigues rotation vector into a rotation matrix.
func FromRotationVector(rvec r3.Vec) *mat.Dense {
	theta := r3.Norm(rvec)
	if theta < 1e-12 {
		return eye()
	}
	k := r3.Scale(1/theta, rvec)
	c, s := math.Cos(theta), math.Sin(theta)
	v := 1 - c

	return mat.NewDense(3, 3, []float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	})
}

// ToRotationVector converts a rotation matrix into a Rodrigues rotation vector.
func ToRotationVector(r mat.Matrix) r3.Vec {
	cosTheta := clamp((r.At(0, 0)+r.At(1, 1)+r.At(2, 2)-1)/2, -1, 1)
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return r3.Vec{}
	}

	if math.Pi-theta < 1e-6 {
		// Near π the antisymmetric part vanishes; recover the axis from the diagonal.
		x := math.Sqrt(math.Max((r.At(0, 0)+1)/2, 0))
		y := math.Sqrt(math.Max((r.At(1, 1)+1)/2, 0))
		z := math.Sqrt(math.Max((r.At(2, 2)+1)/2, 0))
		if r.At(0, 1) < 0 {
			y = -y
		}
		if r.At(0, 2) < 0 {
			z = -z
		}
		return r3.Scale(theta, r3.Unit(r3.Vec{X: x, Y: y, Z: z}))
	}

	axis := r3.Vec{
		X: r.At(2, 1) - r.At(1, 2),
		Y: r.At(0, 2) - r.At(2, 0),
		Z: r.At(1, 0) - r.At(0, 1),
	}
	return r3.Scale(theta/(2*math.Sin(theta)), axis)
}

// ApproxEqual reports whether two poses match element-wise within tol.
func ApproxEqual(a, b Pose, tol float64) bool {
	if !mat.EqualApprox(a.R, b.R, tol) {
		return false
	}
	d := r3.Sub(a.T, b.T)
	return math.Abs(d.X) <= tol && math.Abs(d.Y) <= tol && math.Abs(d.Z) <= tol
}

func eye() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})
}

func transpose(m mat.Matrix) *mat.Dense {
	var t mat.Dense
	t.CloneFrom(m.T())
	return &t
}

func mulVec(m mat.Matrix, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z,
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z,
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z,
	}
}

func mulVecTrans(m mat.Matrix, v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m.At(0, 0)*v.X + m.At(1, 0)*v.Y + m.At(2, 0)*v.Z,
		Y: m.At(0, 1)*v.X + m.At(1, 1)*v.Y + m.At(2, 1)*v.Z,
		Z: m.At(0, 2)*v.X + m.At(1, 2)*v.Y + m.At(2, 2)*v.Z,
	}
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
