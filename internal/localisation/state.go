// Package localisation runs the calibration state machine: it sets the origin
// from a calibration marker, then logs and broadcasts platform poses relative
// to it while obeying operator command markers.
package localisation

import (
	"fmt"
	"time"

	"github.com/ayusman/arucoloc/internal/broadcast"
	"github.com/ayusman/arucoloc/internal/command"
	"github.com/ayusman/arucoloc/internal/origin"
	"github.com/ayusman/arucoloc/internal/scheduler"
)

// State is a lifecycle state of the machine.
type State int

// Lifecycle states.
const (
	Calibrating State = iota
	Running
	ShuttingDown
	Terminated
)

func (s State) String() string {
	switch s {
	case Calibrating:
		return "CALIBRATING"
	case Running:
		return "RUNNING"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	case Terminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Reason records why the loop stopped.
type Reason int

// Stop reasons.
const (
	ReasonNone Reason = iota
	ReasonShutdownCommand
	ReasonQuitKey
	ReasonCancelled
	ReasonStreamEnded
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonShutdownCommand:
		return "shutdown command"
	case ReasonQuitKey:
		return "quit key"
	case ReasonCancelled:
		return "cancelled"
	case ReasonStreamEnded:
		return "stream ended"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// Operator prompts.
const (
	PromptCalibrate = "Please present the calibration tag"
	PromptConfirm   = "Please present the OK tag"
	PromptShutdown  = "Shutting down in %d sec"
)

// Session is all mutable state of one localisation run. It is owned by the
// goroutine driving the machine and passed to every step.
type Session struct {
	State  State
	Reason Reason
	Prompt string

	Origin    *origin.Transform
	Scheduler *scheduler.Scheduler

	// StartedAt is the elapsed-time reference, reset on entering Running.
	StartedAt time.Time
	// ShutdownAt is when the shutdown command was accepted.
	ShutdownAt time.Time

	LastCommand command.Command
	LastBatch   broadcast.Batch
	Visible     []int

	Frames     int
	Skipped    int
	// Unknown counts sightings of markers with no role.
	Unknown    int
	LogRows    int
	Broadcasts int

	// reported holds the role-less marker ids already warned about.
	reported map[int]bool
	// unavailable is set while consecutive frames fail to arrive.
	unavailable bool
}

// reportUnknown returns true the first time id is seen in this session.
func (s *Session) reportUnknown(id int) bool {
	if s.reported[id] {
		return false
	}
	if s.reported == nil {
		s.reported = make(map[int]bool)
	}
	s.reported[id] = true
	return true
}

// Elapsed returns the time since the session entered Running.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}
