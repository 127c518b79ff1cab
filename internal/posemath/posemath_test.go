package posemath

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

const tol = 1e-9

func randomPose(rng *rand.Rand) Pose {
	rvec := r3.Vec{X: rng.Float64()*2 - 1, Y: rng.Float64()*2 - 1, Z: rng.Float64()*2 - 1}
	rvec = r3.Scale(rng.Float64()*math.Pi*0.95, r3.Unit(rvec))
	tvec := r3.Vec{X: rng.Float64()*4 - 2, Y: rng.Float64()*4 - 2, Z: rng.Float64() * 5}
	return NewPose(rvec, tvec)
}

func TestInvert_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		p := randomPose(rng)
		got := Multiply(p, Invert(p))
		assert.True(t, ApproxEqual(got, Identity(), tol), "p * inv(p) should be identity")
	}
}

func TestCompose_EqualsInverseThenMultiply(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		a, b := randomPose(rng), randomPose(rng)
		assert.True(t, ApproxEqual(Compose(a, b), Multiply(Invert(a), b), tol))
	}
}

func TestCompose_Identity(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		p := randomPose(rng)
		rel := Compose(p, p)
		require.True(t, ApproxEqual(rel, Identity(), 1e-9))

		e := EulerXYZDegrees(rel.R)
		assert.InDelta(t, 0, e.Roll, 1e-6)
		assert.InDelta(t, 0, e.Pitch, 1e-6)
		assert.InDelta(t, 0, e.Yaw, 1e-6)
	}
}

func TestCompose_Translation(t *testing.T) {
	origin := Pose{R: eye(), T: r3.Vec{X: 1, Y: 2, Z: 3}}
	observed := Pose{R: eye(), T: r3.Vec{X: 1.5, Y: 1, Z: 3}}

	rel := Compose(origin, observed)
	assert.InDelta(t, 0.5, rel.T.X, tol)
	assert.InDelta(t, -1, rel.T.Y, tol)
	assert.InDelta(t, 0, rel.T.Z, tol)
}

func TestRotationVector_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		rvec r3.Vec
	}{
		{"zero", r3.Vec{}},
		{"x quarter turn", r3.Vec{X: math.Pi / 2}},
		{"y small", r3.Vec{Y: 0.01}},
		{"oblique", r3.Vec{X: 0.3, Y: -0.4, Z: 1.1}},
		{"near pi", r3.Vec{X: math.Pi - 1e-3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := FromRotationVector(tt.rvec)
			assert.InDelta(t, 1, mat.Det(r), 1e-9)

			back := FromRotationVector(ToRotationVector(r))
			assert.True(t, mat.EqualApprox(r, back, 1e-6), "rotation should survive round trip")
		})
	}
}

func TestEulerXYZ_RoundTrip(t *testing.T) {
	tests := []Euler{
		{Roll: 0, Pitch: 0, Yaw: 0},
		{Roll: 10, Pitch: 20, Yaw: 30},
		{Roll: -45, Pitch: 60, Yaw: 170},
		{Roll: 179, Pitch: -89, Yaw: -120},
	}

	for _, want := range tests {
		got := EulerXYZDegrees(FromEulerXYZDegrees(want))
		assert.InDelta(t, want.Roll, got.Roll, 1e-6)
		assert.InDelta(t, want.Pitch, got.Pitch, 1e-6)
		assert.InDelta(t, want.Yaw, got.Yaw, 1e-6)
	}
}

func TestEulerXYZ_ClampsPitch(t *testing.T) {
	// Slightly non-orthonormal input must not yield NaN.
	r := mat.NewDense(3, 3, []float64{
		0, 0, 1.0000001,
		0, 1, 0,
		-1, 0, 0,
	})
	e := EulerXYZDegrees(r)
	assert.False(t, math.IsNaN(e.Pitch))
	assert.InDelta(t, 90, e.Pitch, 1e-6)
}

func TestRemapMatrix_IsInvolution(t *testing.T) {
	m := RemapMatrix()
	var sq mat.Dense
	sq.Mul(m, m)
	assert.True(t, mat.EqualApprox(&sq, eye(), 0))
	assert.True(t, mat.Equal(m, m.T()), "remap matrix should be symmetric")
}

func TestRemapFrame_Involution(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for i := 0; i < 100; i++ {
		p := randomPose(rng)
		back := RemapFrame(RemapFrame(p, ENU, NED), NED, ENU)
		assert.True(t, ApproxEqual(back, p, tol))
	}
}

func TestRemapFrame_Axes(t *testing.T) {
	p := Pose{R: eye(), T: r3.Vec{X: 1, Y: 2, Z: 3}}

	ned := RemapFrame(p, ENU, NED)
	assert.Equal(t, r3.Vec{X: 2, Y: 1, Z: -3}, ned.T)
	assert.True(t, mat.EqualApprox(ned.R, eye(), tol))

	same := RemapFrame(p, NED, NED)
	assert.Equal(t, p.T, same.T)
}

func TestParseConvention(t *testing.T) {
	tests := []struct {
		in      string
		want    Convention
		wantErr bool
	}{
		{"ENU", ENU, false},
		{"ned", NED, false},
		{" Ned ", NED, false},
		{"NWU", ENU, true},
		{"", ENU, true},
	}

	for _, tt := range tests {
		got, err := ParseConvention(tt.in)
		if tt.wantErr {
			assert.True(t, errors.Is(err, ErrInvalidFrameConvention), "input %q", tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestConvention_Text(t *testing.T) {
	var c Convention
	require.NoError(t, c.UnmarshalText([]byte("NED")))
	assert.Equal(t, NED, c)

	b, err := c.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "NED", string(b))

	assert.Error(t, c.UnmarshalText([]byte("XYZ")))
	assert.Equal(t, NED, c, "failed unmarshal keeps previous value")
}
