package vision

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// undistortIterations is enough for sub-micropixel convergence with
// typical webcam distortion.
const undistortIterations = 20

// Intrinsics is a pinhole camera model with Brown-Conrady distortion.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
	// Distortion is k1, k2, p1, p2, k3. Missing trailing terms are zero.
	Distortion [5]float64
}

// NewIntrinsics builds intrinsics from a row-major 3x3 camera matrix and up
// to five distortion coefficients.
func NewIntrinsics(matrix [][]float64, distortion []float64) (Intrinsics, error) {
	if len(matrix) != 3 {
		return Intrinsics{}, fmt.Errorf("camera matrix must have 3 rows, got %d", len(matrix))
	}
	for i, row := range matrix {
		if len(row) != 3 {
			return Intrinsics{}, fmt.Errorf("camera matrix row %d must have 3 columns, got %d", i, len(row))
		}
	}
	if len(distortion) > 5 {
		return Intrinsics{}, fmt.Errorf("at most 5 distortion coefficients supported, got %d", len(distortion))
	}

	in := Intrinsics{
		Fx: matrix[0][0],
		Fy: matrix[1][1],
		Cx: matrix[0][2],
		Cy: matrix[1][2],
	}
	if in.Fx == 0 || in.Fy == 0 {
		return Intrinsics{}, errors.New("camera matrix has zero focal length")
	}
	copy(in.Distortion[:], distortion)
	return in, nil
}

// Project maps a camera-frame point to pixel coordinates.
func (in Intrinsics) Project(p r3.Vec) Point2 {
	x, y := p.X/p.Z, p.Y/p.Z
	xd, yd := in.distort(x, y)
	return Point2{X: in.Fx*xd + in.Cx, Y: in.Fy*yd + in.Cy}
}

// Normalize maps a pixel to undistorted normalised image coordinates.
func (in Intrinsics) Normalize(p Point2) Point2 {
	x0 := (p.X - in.Cx) / in.Fx
	y0 := (p.Y - in.Cy) / in.Fy

	k1, k2, p1, p2, k3 := in.Distortion[0], in.Distortion[1], in.Distortion[2], in.Distortion[3], in.Distortion[4]
	if k1 == 0 && k2 == 0 && p1 == 0 && p2 == 0 && k3 == 0 {
		return Point2{X: x0, Y: y0}
	}

	x, y := x0, y0
	for i := 0; i < undistortIterations; i++ {
		r2 := x*x + y*y
		radial := 1 + r2*(k1+r2*(k2+r2*k3))
		dx := 2*p1*x*y + p2*(r2+2*x*x)
		dy := p1*(r2+2*y*y) + 2*p2*x*y
		x = (x0 - dx) / radial
		y = (y0 - dy) / radial
	}
	return Point2{X: x, Y: y}
}

func (in Intrinsics) distort(x, y float64) (float64, float64) {
	k1, k2, p1, p2, k3 := in.Distortion[0], in.Distortion[1], in.Distortion[2], in.Distortion[3], in.Distortion[4]
	r2 := x*x + y*y
	radial := 1 + r2*(k1+r2*(k2+r2*k3))
	xd := x*radial + 2*p1*x*y + p2*(r2+2*x*x)
	yd := y*radial + p1*(r2+2*y*y) + 2*p2*x*y
	return xd, yd
}
