// Package vision turns camera frames into detected markers with camera-frame poses.
package vision

import (
	"context"
	"errors"
	"sort"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/arucoloc/internal/posemath"
)

// ErrFrameUnavailable is returned when no frame could be grabbed this iteration.
// The caller should skip the iteration and try again.
var ErrFrameUnavailable = errors.New("frame unavailable")

// ErrStreamClosed is returned once a provider has no more frames to deliver.
var ErrStreamClosed = errors.New("frame stream closed")

// Point2 is an image-plane point in pixels.
type Point2 struct {
	X float64
	Y float64
}

// Marker is one detected fiducial.
type Marker struct {
	ID int
	// Corners in detector order: top-left, top-right, bottom-right, bottom-left.
	Corners [4]Point2
	// Pose of the marker in the camera frame.
	Pose posemath.Pose
}

// Center returns the mean of the four corners.
func (m Marker) Center() Point2 {
	var c Point2
	for _, p := range m.Corners {
		c.X += p.X
		c.Y += p.Y
	}
	return Point2{X: c.X / 4, Y: c.Y / 4}
}

// Frame is one captured image and the markers found in it.
type Frame struct {
	// Image may be nil for synthetic frames.
	Image     *gocv.Mat
	Markers   []Marker
	Timestamp time.Time
}

// IDs returns the visible marker ids in detection order.
func (f *Frame) IDs() []int {
	ids := make([]int, len(f.Markers))
	for i, m := range f.Markers {
		ids[i] = m.ID
	}
	return ids
}

// SortedIDs returns the visible marker ids ascending.
func (f *Frame) SortedIDs() []int {
	ids := f.IDs()
	sort.Ints(ids)
	return ids
}

// Close releases the image, if any.
func (f *Frame) Close() error {
	if f.Image == nil {
		return nil
	}
	err := f.Image.Close()
	f.Image = nil
	return err
}

// Provider delivers frames with detected markers.
type Provider interface {
	// NextFrame blocks until a frame is available. It returns
	// ErrFrameUnavailable for transient failures and ErrStreamClosed
	// when no further frames will come.
	NextFrame(ctx context.Context) (*Frame, error)

	// Close releases any resources held by the provider.
	Close() error
}
