package posemath

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidFrameConvention is returned for convention names other than ENU or NED.
var ErrInvalidFrameConvention = errors.New("invalid frame convention")

// Convention is the axis convention in which relative poses are reported.
type Convention int

const (
	// ENU is east-north-up.
	ENU Convention = iota
	// NED is north-east-down.
	NED
)

// String returns the convention name.
func (c Convention) String() string {
	switch c {
	case ENU:
		return "ENU"
	case NED:
		return "NED"
	default:
		return fmt.Sprintf("Convention(%d)", int(c))
	}
}

// ParseConvention parses "ENU" or "NED" (case-insensitive).
func ParseConvention(name string) (Convention, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "ENU":
		return ENU, nil
	case "NED":
		return NED, nil
	default:
		return ENU, fmt.Errorf("%w: %q", ErrInvalidFrameConvention, name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Convention) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Convention) UnmarshalText(text []byte) error {
	parsed, err := ParseConvention(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// enuToNED swaps the first two axes and negates the third. It is symmetric
// and its own inverse, so the same matrix converts in both directions.
var enuToNED = mat.NewDense(3, 3, []float64{
	0, 1, 0,
	1, 0, 0,
	0, 0, -1,
})

// RemapMatrix returns a copy of the ENU<->NED axis remap.
func RemapMatrix() *mat.Dense {
	return mat.DenseCopyOf(enuToNED)
}

// RemapFrame re-expresses p in the target convention. Conversions between the
// same convention return p unchanged.
func RemapFrame(p Pose, from, to Convention) Pose {
	if from == to {
		return p
	}
	var r mat.Dense
	r.Product(enuToNED, p.R, enuToNED)
	return Pose{
		R: &r,
		T: mulVec(enuToNED, p.T),
	}
}
