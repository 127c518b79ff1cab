package vision

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/arucoloc/internal/posemath"
)

// ErrDegenerateMarker is returned when corners do not define a usable plane.
var ErrDegenerateMarker = errors.New("degenerate marker corners")

// minMarkerArea is the smallest image area, in square pixels, accepted as a marker.
const minMarkerArea = 1.0

// MarkerCorners returns the marker-frame corner coordinates for a square
// marker of side size, in detector corner order. The marker lies in z = 0
// with x to the right and y up.
func MarkerCorners(size float64) [4]r3.Vec {
	h := size / 2
	return [4]r3.Vec{
		{X: -h, Y: h},
		{X: h, Y: h},
		{X: h, Y: -h},
		{X: -h, Y: -h},
	}
}

// EstimatePose recovers the camera-frame pose of a square marker from its
// four image corners using a plane homography.
func EstimatePose(corners [4]Point2, size float64, in Intrinsics) (posemath.Pose, error) {
	if size <= 0 {
		return posemath.Pose{}, errors.New("marker size must be positive")
	}

	if math.Abs(quadArea(corners)) < minMarkerArea {
		return posemath.Pose{}, ErrDegenerateMarker
	}

	object := MarkerCorners(size)

	var image [4]Point2
	for i, c := range corners {
		image[i] = in.Normalize(c)
	}

	h, err := homography(object, image)
	if err != nil {
		return posemath.Pose{}, err
	}

	h1 := r3.Vec{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	h2 := r3.Vec{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}
	h3 := r3.Vec{X: h.At(0, 2), Y: h.At(1, 2), Z: h.At(2, 2)}

	n1, n2 := r3.Norm(h1), r3.Norm(h2)
	if n1 < 1e-12 || n2 < 1e-12 {
		return posemath.Pose{}, ErrDegenerateMarker
	}
	lambda := 2 / (n1 + n2)
	// The marker is in front of the camera.
	if h3.Z < 0 {
		lambda = -lambda
	}

	r1 := r3.Scale(lambda, h1)
	r2 := r3.Scale(lambda, h2)
	rot := orthonormalize(r1, r2, r3.Cross(r1, r2))

	return posemath.Pose{R: rot, T: r3.Scale(lambda, h3)}, nil
}

// quadArea returns the signed shoelace area of the corner polygon.
func quadArea(c [4]Point2) float64 {
	var a float64
	for i := 0; i < 4; i++ {
		j := (i + 1) % 4
		a += c[i].X*c[j].Y - c[j].X*c[i].Y
	}
	return a / 2
}

// homography solves for H (3x3) mapping marker-plane (X, Y, 1) to
// normalised image (u, v, 1) by direct linear transform.
func homography(object [4]r3.Vec, image [4]Point2) (*mat.Dense, error) {
	a := mat.NewDense(9, 9, nil)
	for i := 0; i < 4; i++ {
		X, Y := object[i].X, object[i].Y
		u, v := image[i].X, image[i].Y
		a.SetRow(2*i, []float64{-X, -Y, -1, 0, 0, 0, u * X, u * Y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -X, -Y, -1, v * X, v * Y, v})
	}
	// The ninth row stays zero so the system is square for SVDFull.

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, ErrDegenerateMarker
	}

	values := svd.Values(nil)
	// Four points in general position give rank 8.
	if values[7] < 1e-12*values[0] {
		return nil, ErrDegenerateMarker
	}

	var v mat.Dense
	svd.VTo(&v)

	h := mat.NewDense(3, 3, nil)
	for k := 0; k < 9; k++ {
		h.Set(k/3, k%3, v.At(k, 8))
	}
	return h, nil
}

// orthonormalize returns the rotation closest to the columns c1, c2, c3.
func orthonormalize(c1, c2, c3 r3.Vec) *mat.Dense {
	m := mat.NewDense(3, 3, []float64{
		c1.X, c2.X, c3.X,
		c1.Y, c2.Y, c3.Y,
		c1.Z, c2.Z, c3.Z,
	})

	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return m
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var r mat.Dense
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// Flip the weakest singular direction to stay in SO(3).
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r
}

// ReprojectionError returns the RMS pixel distance between the observed
// corners and the corners projected from pose.
func ReprojectionError(corners [4]Point2, size float64, pose posemath.Pose, in Intrinsics) float64 {
	var sum float64
	for i, obj := range MarkerCorners(size) {
		p := in.Project(transformPoint(pose, obj))
		dx, dy := p.X-corners[i].X, p.Y-corners[i].Y
		sum += dx*dx + dy*dy
	}
	return math.Sqrt(sum / 4)
}

// transformPoint maps a marker-frame point into the camera frame.
func transformPoint(pose posemath.Pose, p r3.Vec) r3.Vec {
	r := pose.R
	return r3.Vec{
		X: r.At(0, 0)*p.X + r.At(0, 1)*p.Y + r.At(0, 2)*p.Z + pose.T.X,
		Y: r.At(1, 0)*p.X + r.At(1, 1)*p.Y + r.At(1, 2)*p.Z + pose.T.Y,
		Z: r.At(2, 0)*p.X + r.At(2, 1)*p.Y + r.At(2, 2)*p.Z + pose.T.Z,
	}
}

// ProjectAxes returns the pixel positions of a pose's origin and the tips of
// its x, y and z axes drawn with the given length.
func ProjectAxes(pose posemath.Pose, length float64, in Intrinsics) [4]Point2 {
	pts := [4]r3.Vec{
		{},
		{X: length},
		{Y: length},
		{Z: length},
	}
	var out [4]Point2
	for i, p := range pts {
		out[i] = in.Project(transformPoint(pose, p))
	}
	return out
}
