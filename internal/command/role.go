// Package command maps the marker ids visible in a frame to at most one
// operator command, using a role table and a fixed precedence list.
package command

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDuplicateMarker is returned when one marker id is given two roles.
var ErrDuplicateMarker = errors.New("marker id already has a role")

// ErrUnknownMarker is reported for a visible marker id that has no role.
var ErrUnknownMarker = errors.New("marker id has no role")

// Kind identifies a marker role.
type Kind int

// Marker role kinds.
const (
	KindOK Kind = iota + 1
	KindCalibration
	KindShutdown
	KindBroadcastAlways
	KindBroadcastFrequency
	KindBroadcastNever
	KindFrameNED
	KindFrameENU
	KindPlatform
)

var kindNames = map[Kind]string{
	KindOK:                 "OK",
	KindCalibration:        "CALIBRATION",
	KindShutdown:           "SHUTDOWN",
	KindBroadcastAlways:    "BROADCAST_ALWAYS",
	KindBroadcastFrequency: "BROADCAST_FREQ",
	KindBroadcastNever:     "BROADCAST_NEVER",
	KindFrameNED:           "FRAME_NED",
	KindFrameENU:           "FRAME_ENU",
	KindPlatform:           "PLATFORM",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Role is the symbolic meaning of a marker id.
type Role struct {
	Kind Kind
	// Platform is the platform id for KindPlatform.
	Platform int
	// FrequencyHz is the selected rate for KindBroadcastFrequency.
	FrequencyHz float64
	// Order is the declaration order among frequency selectors.
	Order int
}

func (r Role) String() string {
	switch r.Kind {
	case KindPlatform:
		return fmt.Sprintf("PLATFORM(%d)", r.Platform)
	case KindBroadcastFrequency:
		return fmt.Sprintf("BROADCAST_FREQ(%gHz)", r.FrequencyHz)
	default:
		return r.Kind.String()
	}
}

// Registry maps raw marker ids to roles. It is built once at startup and is
// read-only afterwards.
type Registry struct {
	roles    map[int]Role
	nextFreq int
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{roles: make(map[int]Role)}
}

// Assign gives marker id the role. Frequency selectors are ordered by the
// sequence in which they are assigned.
func (r *Registry) Assign(markerID int, role Role) error {
	if existing, ok := r.roles[markerID]; ok {
		return fmt.Errorf("%w: marker %d is %s, cannot also be %s", ErrDuplicateMarker, markerID, existing, role)
	}
	if role.Kind == KindBroadcastFrequency {
		role.Order = r.nextFreq
		r.nextFreq++
	}
	r.roles[markerID] = role
	return nil
}

// RoleOf returns the role of markerID.
func (r *Registry) RoleOf(markerID int) (Role, bool) {
	role, ok := r.roles[markerID]
	return role, ok
}

// MarkerFor returns the first marker id (lowest) with the given kind.
func (r *Registry) MarkerFor(kind Kind) (int, bool) {
	ids := r.markersOf(func(role Role) bool { return role.Kind == kind })
	if len(ids) == 0 {
		return 0, false
	}
	return ids[0], true
}

// Platforms returns the platform ids known to the registry, ascending.
func (r *Registry) Platforms() []int {
	seen := make(map[int]bool)
	var ids []int
	for _, role := range r.roles {
		if role.Kind == KindPlatform && !seen[role.Platform] {
			seen[role.Platform] = true
			ids = append(ids, role.Platform)
		}
	}
	sort.Ints(ids)
	return ids
}

// Len returns the number of assigned markers.
func (r *Registry) Len() int {
	return len(r.roles)
}

func (r *Registry) markersOf(match func(Role) bool) []int {
	var ids []int
	for id, role := range r.roles {
		if match(role) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}
