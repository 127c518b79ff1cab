// Package display renders the operator view: state border, prompt text,
// detected markers and the origin axes.
package display

import (
	"errors"

	"github.com/ayusman/arucoloc/internal/posemath"
	"github.com/ayusman/arucoloc/internal/vision"
)

// Level selects the border and prompt colour.
type Level int

// Overlay levels.
const (
	LevelInfo Level = iota
	LevelWaiting
	LevelAlert
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWaiting:
		return "waiting"
	case LevelAlert:
		return "alert"
	default:
		return "unknown"
	}
}

// Overlay is everything drawn on top of a frame.
type Overlay struct {
	State  string
	Prompt string
	Level  Level
	// Label is drawn in the top-left corner, usually the frame convention.
	Label string
	// Dim darkens the whole image, used while shutting down.
	Dim bool
	// Origin, when set, is drawn as an axis triad.
	Origin *posemath.Pose
}

// Display shows frames to an operator.
type Display interface {
	// Show presents the frame with the overlay. Frames without an image are
	// accepted and ignored by image sinks.
	Show(frame *vision.Frame, ov Overlay) error

	// QuitRequested reports whether the operator asked to stop.
	QuitRequested() bool

	// Close releases any resources held by the display.
	Close() error
}

// Nop is a headless display.
type Nop struct{}

// Show does nothing.
func (Nop) Show(*vision.Frame, Overlay) error { return nil }

// QuitRequested always returns false.
func (Nop) QuitRequested() bool { return false }

// Close does nothing.
func (Nop) Close() error { return nil }

// Recorder is a Display that keeps every overlay it is shown.
// It is used by tests and never requests a quit unless told to.
type Recorder struct {
	Overlays []Overlay
	Quit     bool
}

// Show records the overlay.
func (r *Recorder) Show(_ *vision.Frame, ov Overlay) error {
	r.Overlays = append(r.Overlays, ov)
	return nil
}

// QuitRequested returns r.Quit.
func (r *Recorder) QuitRequested() bool { return r.Quit }

// Close does nothing.
func (r *Recorder) Close() error { return nil }

// Last returns the most recent overlay.
func (r *Recorder) Last() (Overlay, bool) {
	if len(r.Overlays) == 0 {
		return Overlay{}, false
	}
	return r.Overlays[len(r.Overlays)-1], true
}

// Multi shows every frame on several displays.
type Multi []Display

// Show forwards to every display and returns the joined errors.
func (m Multi) Show(frame *vision.Frame, ov Overlay) error {
	var errs []error
	for _, d := range m {
		if err := d.Show(frame, ov); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// QuitRequested is true if any display requested a quit.
func (m Multi) QuitRequested() bool {
	for _, d := range m {
		if d.QuitRequested() {
			return true
		}
	}
	return false
}

// Close closes every display.
func (m Multi) Close() error {
	var errs []error
	for _, d := range m {
		if err := d.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
