package localisation

import (
	"time"

	"github.com/ayusman/arucoloc/internal/broadcast"
	"github.com/ayusman/arucoloc/internal/posemath"
)

// OriginView is a copy of the origin pose in the camera frame.
type OriginView struct {
	Position       [3]float64     `json:"position"`
	RotationVector [3]float64     `json:"rotation_vector"`
	Rotation       posemath.Euler `json:"rotation"`
}

// Snapshot is an immutable view of a session for other goroutines.
type Snapshot struct {
	State       string          `json:"state"`
	Reason      string          `json:"reason,omitempty"`
	Prompt      string          `json:"prompt"`
	Convention  string          `json:"convention"`
	FrequencyHz float64         `json:"frequency_hz"`
	Calibrated  bool            `json:"calibrated"`
	Origin      *OriginView     `json:"origin,omitempty"`
	Visible     []int           `json:"visible"`
	LastCommand string          `json:"last_command"`
	LastBatch   broadcast.Batch `json:"last_batch,omitempty"`
	Frames      int             `json:"frames"`
	Skipped     int             `json:"skipped"`
	Unknown     int             `json:"unknown"`
	LogRows     int             `json:"log_rows"`
	Broadcasts  int             `json:"broadcasts"`
	StartedAt   time.Time       `json:"started_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// newSnapshot copies everything a reader needs out of s.
func newSnapshot(s *Session, now time.Time) *Snapshot {
	snap := &Snapshot{
		State:       s.State.String(),
		Prompt:      s.Prompt,
		Convention:  s.Origin.Convention().String(),
		FrequencyHz: s.Scheduler.FrequencyHz(),
		Calibrated:  s.Origin.Initialised(),
		Visible:     append([]int(nil), s.Visible...),
		LastCommand: s.LastCommand.String(),
		Frames:      s.Frames,
		Skipped:     s.Skipped,
		Unknown:     s.Unknown,
		LogRows:     s.LogRows,
		Broadcasts:  s.Broadcasts,
		StartedAt:   s.StartedAt,
		UpdatedAt:   now,
	}
	if s.Reason != ReasonNone {
		snap.Reason = s.Reason.String()
	}
	if s.LastBatch != nil {
		snap.LastBatch = s.LastBatch.Clone()
	}
	if s.Origin.Initialised() {
		o := s.Origin.Origin()
		rv := posemath.ToRotationVector(o.R)
		snap.Origin = &OriginView{
			Position:       [3]float64{o.T.X, o.T.Y, o.T.Z},
			RotationVector: [3]float64{rv.X, rv.Y, rv.Z},
			Rotation:       posemath.EulerXYZDegrees(o.R),
		}
	}
	return snap
}
