// Package origin holds the calibrated reference pose and expresses observed
// marker poses relative to it.
package origin

import (
	"errors"
	"log"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/ayusman/arucoloc/internal/posemath"
)

// ErrOriginUninitialized is returned when a relative pose is requested before
// any origin has been set.
var ErrOriginUninitialized = errors.New("origin not initialised")

// Recorder receives every origin that is set. It is optional; a failing
// recorder never affects the in-memory origin.
type Recorder interface {
	RecordOrigin(p posemath.Pose) error
}

// Transform owns the origin pose and the reporting convention.
type Transform struct {
	origin      posemath.Pose
	initialised bool
	convention  posemath.Convention
	recorder    Recorder
}

// New creates an uninitialised Transform reporting in the given convention.
func New(convention posemath.Convention) *Transform {
	return &Transform{
		origin:     posemath.Identity(),
		convention: convention,
	}
}

// SetRecorder attaches a Recorder. Passing nil detaches it.
func (t *Transform) SetRecorder(r Recorder) {
	t.recorder = r
}

// Set overwrites the origin and marks the transform initialised.
func (t *Transform) Set(p posemath.Pose) {
	t.origin = p
	t.initialised = true

	if t.recorder != nil {
		if err := t.recorder.RecordOrigin(p); err != nil {
			log.Printf("warning: failed to record origin: %v", err)
		}
	}
}

// Initialised reports whether Set has been called.
func (t *Transform) Initialised() bool {
	return t.initialised
}

// Origin returns the current origin pose.
func (t *Transform) Origin() posemath.Pose {
	return t.origin
}

// Convention returns the reporting convention.
func (t *Transform) Convention() posemath.Convention {
	return t.convention
}

// SetConvention changes the reporting convention from the next RelativePose call on.
func (t *Transform) SetConvention(c posemath.Convention) {
	t.convention = c
}

// SetConventionName parses and applies a convention name. On error the
// previous convention is kept.
func (t *Transform) SetConventionName(name string) error {
	c, err := posemath.ParseConvention(name)
	if err != nil {
		return err
	}
	t.convention = c
	return nil
}

// RelativePose returns the position and intrinsic XYZ angles (degrees) of the
// observed pose with respect to the origin, in the current convention.
func (t *Transform) RelativePose(observed posemath.Pose) (r3.Vec, posemath.Euler, error) {
	if !t.initialised {
		return r3.Vec{}, posemath.Euler{}, ErrOriginUninitialized
	}

	convention := t.convention
	rel := posemath.Compose(t.origin, observed)
	if convention == posemath.NED {
		rel = posemath.RemapFrame(rel, posemath.ENU, posemath.NED)
	}

	return rel.T, posemath.EulerXYZDegrees(rel.R), nil
}
