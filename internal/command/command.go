package command

import (
	"fmt"
	"sort"
)

// Type is the kind of command produced by the Interpreter.
type Type int

// Command types.
const (
	None Type = iota
	SetFrequency
	SetConvention
	Shutdown
)

func (t Type) String() string {
	switch t {
	case None:
		return "None"
	case SetFrequency:
		return "SetFrequency"
	case SetConvention:
		return "SetConvention"
	case Shutdown:
		return "Shutdown"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// Command is the single outcome of interpreting one frame.
type Command struct {
	Type Type
	// FrequencyHz is set for SetFrequency; <0 always, 0 never.
	FrequencyHz float64
	// Convention is the convention name for SetConvention.
	Convention string
}

func (c Command) String() string {
	switch c.Type {
	case SetFrequency:
		return fmt.Sprintf("SetFrequency(%g)", c.FrequencyHz)
	case SetConvention:
		return fmt.Sprintf("SetConvention(%s)", c.Convention)
	default:
		return c.Type.String()
	}
}

// Frequency sentinels.
const (
	FrequencyAlways = -1.0
	FrequencyNever  = 0.0
)

// rule pairs a command marker with the command it yields.
type rule struct {
	marker  int
	role    Role
	command Command
}

// commandFor is the role-to-command lookup table.
func commandFor(role Role) (Command, bool) {
	switch role.Kind {
	case KindBroadcastAlways:
		return Command{Type: SetFrequency, FrequencyHz: FrequencyAlways}, true
	case KindBroadcastFrequency:
		return Command{Type: SetFrequency, FrequencyHz: role.FrequencyHz}, true
	case KindBroadcastNever:
		return Command{Type: SetFrequency, FrequencyHz: FrequencyNever}, true
	case KindFrameNED:
		return Command{Type: SetConvention, Convention: "NED"}, true
	case KindFrameENU:
		return Command{Type: SetConvention, Convention: "ENU"}, true
	case KindShutdown:
		return Command{Type: Shutdown}, true
	default:
		return Command{}, false
	}
}

// precedence ranks command kinds; frequency selectors are further ordered by
// their declaration order.
var precedence = map[Kind]int{
	KindBroadcastAlways:    0,
	KindBroadcastFrequency: 1,
	KindBroadcastNever:     2,
	KindFrameNED:           3,
	KindFrameENU:           4,
	KindShutdown:           5,
}

// Interpreter turns visible marker sets into commands.
type Interpreter struct {
	okMarkers map[int]bool
	rules     []rule
}

// NewInterpreter builds the precedence list from the registry.
func NewInterpreter(reg *Registry) *Interpreter {
	in := &Interpreter{okMarkers: make(map[int]bool)}

	for id, role := range reg.roles {
		if role.Kind == KindOK {
			in.okMarkers[id] = true
			continue
		}
		if cmd, ok := commandFor(role); ok {
			in.rules = append(in.rules, rule{marker: id, role: role, command: cmd})
		}
	}

	sort.Slice(in.rules, func(i, j int) bool {
		a, b := in.rules[i], in.rules[j]
		if pa, pb := precedence[a.role.Kind], precedence[b.role.Kind]; pa != pb {
			return pa < pb
		}
		if a.role.Order != b.role.Order {
			return a.role.Order < b.role.Order
		}
		return a.marker < b.marker
	})

	return in
}

// Interpret returns the highest-precedence command whose marker is visible
// together with an OK marker. Without OK it always returns None.
func (in *Interpreter) Interpret(visible []int) Command {
	set := make(map[int]bool, len(visible))
	confirmed := false
	for _, id := range visible {
		set[id] = true
		if in.okMarkers[id] {
			confirmed = true
		}
	}
	if !confirmed {
		return Command{Type: None}
	}

	for _, r := range in.rules {
		if set[r.marker] {
			return r.command
		}
	}
	return Command{Type: None}
}

// Precedence returns the command markers in evaluation order.
func (in *Interpreter) Precedence() []int {
	ids := make([]int, len(in.rules))
	for i, r := range in.rules {
		ids[i] = r.marker
	}
	return ids
}
